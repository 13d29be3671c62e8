// Package transport owns the uniform message-granular channel consumed
// by the session machine and router.
//
// Ownership boundary:
// - the Transport capability (send/recv/is-connected/close/remote)
// - the TCP implementation over frame+protocol
// - the BLE implementation fed by the peripheral bridge
//
// Both implementations yield whole decoded messages; framing and chunk
// reassembly never leak past this package.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/voodoolink/telehost/internal/protocol"
)

var (
	ErrClosed = errors.New("transport: closed")
	// ErrLivenessTimeout is the close reason used when the peer went
	// silent past the liveness window (BLE inbound silence).
	ErrLivenessTimeout = errors.New("transport: liveness timeout")
)

// SkipError wraps a per-message decode problem the receive loop may log
// and continue past, leaving the stream intact.
type SkipError struct {
	Err error
}

func (e *SkipError) Error() string { return fmt.Sprintf("transport: skipping message: %v", e.Err) }

func (e *SkipError) Unwrap() error { return e.Err }

// Transport is one live bidirectional channel to the mobile.
//
// Recv returns io.EOF on clean peer close and ErrClosed once Close has
// been called locally. Send and Recv are safe to call from different
// goroutines; concurrent Sends serialize internally so whole messages
// never interleave on the wire.
type Transport interface {
	Send(msg protocol.Message) error
	Recv() (protocol.Message, error)
	// SetRecvDeadline bounds the next Recv calls; zero means no
	// deadline. Expired deadlines surface os.ErrDeadlineExceeded.
	SetRecvDeadline(t time.Time) error
	IsConnected() bool
	Close() error
	Remote() string
}
