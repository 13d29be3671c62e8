package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
	"github.com/voodoolink/telehost/internal/protocol/frame"
)

// TCPTransport adapts a stream socket to the message-granular Transport.
// It is used unchanged for WiFi and for USB-tunneled TCP.
type TCPTransport struct {
	conn     net.Conn
	counters *observability.Counters

	writeMu sync.Mutex
	closed  atomic.Bool
}

func NewTCP(conn net.Conn, counters *observability.Counters) *TCPTransport {
	if counters == nil {
		counters = observability.NewCounters()
	}
	return &TCPTransport{conn: conn, counters: counters}
}

func (t *TCPTransport) Send(msg protocol.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed.Load() {
		return ErrClosed
	}
	if err := frame.WriteMessage(t.conn, data); err != nil {
		if t.closed.Load() {
			return ErrClosed
		}
		return err
	}
	t.counters.AddBytesOut(frame.PrefixLen + len(data))
	return nil
}

func (t *TCPTransport) Recv() (protocol.Message, error) {
	payload, err := frame.ReadMessage(t.conn)
	if err != nil {
		if t.closed.Load() {
			return nil, ErrClosed
		}
		return nil, err
	}
	t.counters.AddBytesIn(frame.PrefixLen + len(payload))

	msg, err := protocol.Decode(payload)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			t.counters.RecordUnknownType()
			return nil, &SkipError{Err: err}
		case errors.Is(err, protocol.ErrBadMagic):
			t.counters.RecordBadMagic()
		}
		return nil, err
	}
	return msg, nil
}

func (t *TCPTransport) SetRecvDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *TCPTransport) IsConnected() bool { return !t.closed.Load() }

// Close is idempotent and cancels pending reads immediately.
func (t *TCPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

func (t *TCPTransport) Remote() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

var _ Transport = (*TCPTransport)(nil)
