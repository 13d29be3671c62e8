package status

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/voodoolink/telehost/internal/host"
	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/testutil/testlog"
)

type fakeSource struct {
	info host.SessionInfo
	snap observability.Snapshot
}

func (f *fakeSource) Session() host.SessionInfo        { return f.info }
func (f *fakeSource) Counters() observability.Snapshot { return f.snap }

func get(t *testing.T, url string) []byte {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

func TestStatusRoutes(t *testing.T) {
	testlog.Start(t)
	source := &fakeSource{
		info: host.SessionInfo{
			State:             host.StateConnected,
			Remote:            "192.0.2.7:51234",
			SessionID:         42,
			NegotiatedVersion: 1,
		},
		snap: observability.Snapshot{SessionsOpened: 3, BeaconsSent: 10},
	}
	s := New("myvoodoo", source)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	base := "http://" + s.Addr()

	var health struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(get(t, base+"/health"), &health); err != nil {
		t.Fatalf("health json: %v", err)
	}
	if health.Status != "ok" || health.Service != "myvoodoo" {
		t.Fatalf("health: %+v", health)
	}

	var session struct {
		Session  host.SessionInfo       `json:"session"`
		Counters observability.Snapshot `json:"counters"`
	}
	if err := json.Unmarshal(get(t, base+"/session"), &session); err != nil {
		t.Fatalf("session json: %v", err)
	}
	if session.Session.State != host.StateConnected || session.Session.SessionID != 42 {
		t.Fatalf("session: %+v", session.Session)
	}
	if session.Counters.SessionsOpened != 3 {
		t.Fatalf("counters: %+v", session.Counters)
	}

	metrics := string(get(t, base+"/metrics"))
	if len(metrics) == 0 {
		t.Fatalf("empty metrics body")
	}
}
