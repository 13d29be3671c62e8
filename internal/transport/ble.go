package transport

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/protocol"
)

// inboundDepth bounds the hand-off between the BLE write callback and
// the receive loop. Pose writes at 60-120 Hz stay far below this; if
// the consumer ever stalls the oldest sample is dropped, never the
// callback thread blocked.
const inboundDepth = 256

// SendFunc pushes one host->mobile message onto the link, typically as
// a characteristic notify.
type SendFunc func(msg protocol.Message) error

// BLETransport adapts characteristic writes and notifies to the
// message-granular Transport. The peripheral bridge feeds decoded
// inbound messages via Feed and wires Send to the notify path.
type BLETransport struct {
	in     chan protocol.Message
	send   SendFunc
	remote string

	mu       sync.Mutex
	deadline time.Time

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	onClose   func()
}

// NewBLE builds a transport for one central connection. onClose, if
// non-nil, runs once when the transport closes from either side.
func NewBLE(remote string, send SendFunc, onClose func()) *BLETransport {
	return &BLETransport{
		in:      make(chan protocol.Message, inboundDepth),
		send:    send,
		remote:  remote,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// Feed hands one decoded inbound message to the receive side. Reports
// false when the transport is closed or the buffer was full.
func (t *BLETransport) Feed(msg protocol.Message) bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	select {
	case t.in <- msg:
		return true
	default:
		log.Warn().Str("type", msg.Type().String()).Msg("ble inbound buffer full, dropping")
		return false
	}
}

func (t *BLETransport) Send(msg protocol.Message) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	return t.send(msg)
}

func (t *BLETransport) Recv() (protocol.Message, error) {
	var expire <-chan time.Time
	t.mu.Lock()
	if !t.deadline.IsZero() {
		d := time.Until(t.deadline)
		t.mu.Unlock()
		if d <= 0 {
			return nil, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		expire = timer.C
	} else {
		t.mu.Unlock()
	}

	select {
	case msg := <-t.in:
		return msg, nil
	case <-expire:
		return nil, os.ErrDeadlineExceeded
	case <-t.closed:
		// Drain anything that raced with close.
		select {
		case msg := <-t.in:
			return msg, nil
		default:
		}
		return nil, t.closeErr
	}
}

func (t *BLETransport) SetRecvDeadline(deadline time.Time) error {
	t.mu.Lock()
	t.deadline = deadline
	t.mu.Unlock()
	return nil
}

func (t *BLETransport) IsConnected() bool {
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

// Close tears the transport down locally; Recv returns ErrClosed.
func (t *BLETransport) Close() error {
	t.closeWith(ErrClosed)
	return nil
}

// CloseWithReason tears the transport down and delivers reason to the
// blocked Recv. io.EOF models a clean peer disconnect.
func (t *BLETransport) CloseWithReason(reason error) {
	if reason == nil {
		reason = io.EOF
	}
	t.closeWith(reason)
}

func (t *BLETransport) closeWith(reason error) {
	t.closeOnce.Do(func() {
		t.closeErr = reason
		close(t.closed)
		if t.onClose != nil {
			t.onClose()
		}
	})
}

func (t *BLETransport) Remote() string { return t.remote }

var _ Transport = (*BLETransport)(nil)
