// Package beacon owns UDP discovery broadcasting.
//
// The host announces its service name and TCP data port every period so
// a mobile on the same segment can find it without mDNS. Broadcasting
// runs for the whole host lifetime, independent of session state, so a
// late-joining mobile still discovers the host.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
)

const (
	DefaultBroadcastAddr = "255.255.255.255:50001"
	DefaultPeriod        = 500 * time.Millisecond
)

var (
	ErrAlreadyStarted = errors.New("beacon: already started")
	ErrServiceName    = errors.New("beacon: service name must be 1..20 bytes")
)

// Config describes one broadcaster.
type Config struct {
	ServiceName   string
	TCPPort       uint16
	BroadcastAddr string
	Period        time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BroadcastAddr) == "" {
		c.BroadcastAddr = DefaultBroadcastAddr
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	return c
}

// Broadcaster owns its UDP socket exclusively and emits one BEACON per
// period until stopped.
type Broadcaster struct {
	cfg      Config
	payload  []byte
	counters *observability.Counters

	mu   sync.Mutex
	conn net.PacketConn
	dest *net.UDPAddr
	done chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, counters *observability.Counters) (*Broadcaster, error) {
	cfg = cfg.withDefaults()
	if n := len(cfg.ServiceName); n < 1 || n > protocol.MaxServiceNameLen {
		return nil, ErrServiceName
	}
	payload, err := protocol.Encode(protocol.Beacon{Port: cfg.TCPPort, Name: cfg.ServiceName})
	if err != nil {
		return nil, fmt.Errorf("beacon: encode: %w", err)
	}
	if counters == nil {
		counters = observability.NewCounters()
	}
	return &Broadcaster{cfg: cfg, payload: payload, counters: counters}, nil
}

// Start opens the broadcast socket and begins the tick loop.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return ErrAlreadyStarted
	}

	dest, err := net.ResolveUDPAddr("udp4", b.cfg.BroadcastAddr)
	if err != nil {
		return fmt.Errorf("beacon: resolve %q: %w", b.cfg.BroadcastAddr, err)
	}
	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return fmt.Errorf("beacon: open socket: %w", err)
	}

	b.conn = conn
	b.dest = dest
	b.done = make(chan struct{})
	b.wg.Add(1)
	go b.loop(conn, dest, b.done)

	log.Info().
		Str("name", b.cfg.ServiceName).
		Uint16("tcp_port", b.cfg.TCPPort).
		Str("broadcast", b.cfg.BroadcastAddr).
		Dur("period", b.cfg.Period).
		Msg("beacon started")
	return nil
}

func (b *Broadcaster) loop(conn net.PacketConn, dest *net.UDPAddr, done chan struct{}) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.Period)
	defer ticker.Stop()

	// First beacon goes out immediately so discovery never waits a
	// full period after startup.
	b.send(conn, dest)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.send(conn, dest)
		}
	}
}

func (b *Broadcaster) send(conn net.PacketConn, dest *net.UDPAddr) {
	if _, err := conn.WriteTo(b.payload, dest); err != nil {
		log.Warn().Err(err).Msg("beacon send failed")
		return
	}
	b.counters.RecordBeaconSent()
	log.Debug().Int("bytes", len(b.payload)).Msg("beacon sent")
}

// Stop closes the socket and drains the loop. Safe to call twice.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	conn := b.conn
	done := b.done
	b.conn = nil
	b.done = nil
	b.mu.Unlock()
	if conn == nil {
		return
	}
	close(done)
	b.wg.Wait()
	_ = conn.Close()
	log.Info().Msg("beacon stopped")
}
