package host

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
	"github.com/voodoolink/telehost/internal/transport"
)

var (
	ErrNoSession     = errors.New("host: no connected session")
	ErrBackpressured = errors.New("host: outbound config backpressured")
)

const configEnqueueTimeout = time.Second

type configReq struct {
	msg  protocol.Config
	done chan error
}

// outbound is the per-session write path. The channels die with the
// session so a late send can never leak a stale message into the next
// session.
type outbound struct {
	haptic chan protocol.Haptic
	config chan configReq
	stop   chan struct{}
}

// Router dispatches inbound messages to the application callbacks and
// serializes outbound haptic/config sends onto the active transport.
//
// Inbound dispatch runs on the session receive goroutine with no queue
// in between; outbound goes through a single writer goroutine per
// session. HAPTIC is a latest-wins slot; CONFIG is never dropped.
type Router struct {
	cb       Callbacks
	counters *observability.Counters

	mu  sync.Mutex
	out *outbound

	// POSE seq tracking; touched only on the receive goroutine.
	haveSeq bool
	lastSeq uint16
}

func newRouter(cb Callbacks, counters *observability.Counters) *Router {
	if counters == nil {
		counters = observability.NewCounters()
	}
	return &Router{cb: cb, counters: counters}
}

// attach binds the router to a freshly connected transport and starts
// its writer.
func (r *Router) attach(tr transport.Transport) {
	out := &outbound{
		haptic: make(chan protocol.Haptic, 1),
		config: make(chan configReq, 4),
		stop:   make(chan struct{}),
	}
	r.mu.Lock()
	r.out = out
	r.haveSeq = false
	r.mu.Unlock()
	go r.writerLoop(tr, out)
}

// detach unbinds the transport and stops the writer. Pending config
// sends fail with ErrNoSession.
func (r *Router) detach() {
	r.mu.Lock()
	out := r.out
	r.out = nil
	r.mu.Unlock()
	if out != nil {
		close(out.stop)
	}
}

func (r *Router) writerLoop(tr transport.Transport, out *outbound) {
	for {
		select {
		case <-out.stop:
			// Answer anything that raced with the close.
			for {
				select {
				case req := <-out.config:
					req.done <- ErrNoSession
				default:
					return
				}
			}
		case h := <-out.haptic:
			if err := tr.Send(h); err != nil {
				log.Debug().Err(err).Msg("haptic send failed")
			}
		case req := <-out.config:
			req.done <- tr.Send(req.msg)
		}
	}
}

func (r *Router) currentOut() *outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

// SendHaptic queues one feedback pulse. Safe from any goroutine. When
// the writer is behind, the queued value is replaced by the newest.
func (r *Router) SendHaptic(intensity float32, channel uint8) error {
	out := r.currentOut()
	if out == nil {
		return ErrNoSession
	}
	msg := protocol.Haptic{Intensity: clampIntensity(intensity), Channel: channel}
	for {
		select {
		case out.haptic <- msg:
			return nil
		case <-out.stop:
			return ErrNoSession
		default:
		}
		select {
		case <-out.haptic:
			r.counters.RecordHapticDropped()
		default:
		}
	}
}

// SendConfig queues one configuration payload. Safe from any
// goroutine; blocks until written or surfaces ErrBackpressured when
// the outbound queue stays full.
func (r *Router) SendConfig(payload []byte) error {
	out := r.currentOut()
	if out == nil {
		return ErrNoSession
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	req := configReq{msg: protocol.Config{Payload: buf}, done: make(chan error, 1)}

	timer := time.NewTimer(configEnqueueTimeout)
	defer timer.Stop()
	select {
	case out.config <- req:
	case <-out.stop:
		return ErrNoSession
	case <-timer.C:
		return ErrBackpressured
	}
	select {
	case err := <-req.done:
		return err
	case <-out.stop:
		// The writer drains the queue on stop; give its answer
		// precedence, then fall back to the session being gone.
		select {
		case err := <-req.done:
			return err
		case <-time.After(100 * time.Millisecond):
			return ErrNoSession
		}
	}
}

func clampIntensity(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (r *Router) handlePose(p protocol.Pose) {
	if r.haveSeq && p.Seq != r.lastSeq+1 {
		r.counters.RecordPoseSeqGap()
	}
	r.haveSeq = true
	r.lastSeq = p.Seq
	if r.cb.OnPose != nil {
		safeCall("on_pose", func() { r.cb.OnPose(poseSample(p)) })
	}
}

func (r *Router) handleCommand(c protocol.Cmd) {
	if r.cb.OnCommand != nil {
		safeCall("on_command", func() { r.cb.OnCommand(Command{Type: c.CmdType, Value: c.Value}) })
	}
}

func (r *Router) emitConnected(remote string) {
	if r.cb.OnConnected != nil {
		safeCall("on_connected", func() { r.cb.OnConnected(remote) })
	}
}

func (r *Router) emitAuthenticated() {
	if r.cb.OnAuthenticated != nil {
		safeCall("on_authenticated", func() { r.cb.OnAuthenticated() })
	}
}

func (r *Router) emitDisconnected(reason DisconnectReason) {
	if r.cb.OnDisconnected != nil {
		safeCall("on_disconnected", func() { r.cb.OnDisconnected(reason) })
	}
}

func (r *Router) emitError(err error) {
	if r.cb.OnError != nil {
		safeCall("on_error", func() { r.cb.OnError(err) })
	}
}

// safeCall shields the core from application callbacks: a panic is
// logged and the session keeps streaming.
func safeCall(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("callback", name).Any("panic", rec).Msg("application callback panicked")
		}
	}()
	fn()
}
