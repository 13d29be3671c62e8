package host

import (
	"errors"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/ble"
	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
	"github.com/voodoolink/telehost/internal/transport"
)

// DefaultHelloTimeout bounds AwaitingHello on both transports.
const DefaultHelloTimeout = 5 * time.Second

// SessionState is the host-side lifecycle phase.
type SessionState string

const (
	StateListening     SessionState = "listening"
	StateAwaitingHello SessionState = "awaiting_hello"
	StateConnected     SessionState = "connected"
	StateClosing       SessionState = "closing"
)

// session is the one live mobile<->host association. At most one
// exists at a time; the supervisor owns it and is the only component
// that transitions its state.
type session struct {
	instance          uuid.UUID
	tr                transport.Transport
	remote            string
	state             SessionState
	sessionID         uint32
	negotiatedVersion uint8
	startedAt         time.Time
}

// SessionInfo is a read-only snapshot for the status surface.
type SessionInfo struct {
	State             SessionState `json:"state"`
	Remote            string       `json:"remote,omitempty"`
	SessionID         uint32       `json:"session_id,omitempty"`
	NegotiatedVersion uint8        `json:"negotiated_version,omitempty"`
	StartedAt         time.Time    `json:"started_at,omitzero"`
}

type supervisorConfig struct {
	code          string
	helloTimeout  time.Duration
	initialConfig []byte
	backoff       BackoffConfig
}

// supervisor drives the Listening -> AwaitingHello -> Connected ->
// Closing -> Listening loop and enforces single-client exclusivity.
type supervisor struct {
	cfg       supervisorConfig
	router    *Router
	counters  *observability.Counters
	validator codeValidator
	lockout   *lockoutTable
	rng       *rand.Rand

	mu       sync.Mutex
	current  *session
	shutdown bool

	wg sync.WaitGroup
}

func newSupervisor(cfg supervisorConfig, router *Router, counters *observability.Counters) *supervisor {
	if cfg.helloTimeout <= 0 {
		cfg.helloTimeout = DefaultHelloTimeout
	}
	if cfg.backoff.InitialDelay == 0 {
		cfg.backoff = defaultBackoff()
	}
	return &supervisor{
		cfg:       cfg,
		router:    router,
		counters:  counters,
		validator: newCodeValidator(cfg.code),
		lockout:   newLockoutTable(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// runTCP accepts until the listener closes. Each conn gets its own
// handler goroutine so a newcomer can be answered BUSY while the
// active session keeps streaming.
func (s *supervisor) runTCP(ln net.Listener) {
	defer s.wg.Done()
	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}
			attempt++
			delay := nextBackoffDelay(s.cfg.backoff, attempt, s.rng)
			log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			s.router.emitError(err)
			time.Sleep(delay)
			continue
		}
		attempt = 0
		tuneConn(conn)
		tr := transport.NewTCP(conn, s.counters)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleTransport(tr)
		}()
	}
}

// runBLE accepts central links from the peripheral until it stops.
func (s *supervisor) runBLE(p *ble.Peripheral) {
	defer s.wg.Done()
	for {
		tr, err := p.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleTransport(tr)
		}()
	}
}

// handleTransport runs one connection to completion: either the full
// session lifecycle, or the short BUSY rejection path.
func (s *supervisor) handleTransport(tr transport.Transport) {
	remote := tr.Remote()

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = tr.Close()
		return
	}
	if s.current != nil {
		s.mu.Unlock()
		s.rejectBusy(tr, remote)
		return
	}
	sess := &session{
		instance:  uuid.New(),
		tr:        tr,
		remote:    remote,
		state:     StateAwaitingHello,
		startedAt: time.Now(),
	}
	s.current = sess
	s.mu.Unlock()

	log.Info().Str("session", sess.instance.String()).Str("remote", remote).Msg("connection accepted")
	s.router.emitConnected(remote)

	reason := s.runSession(sess)
	s.closeSession(sess, reason)
}

// rejectBusy answers a newcomer with ACK(BUSY) once its HELLO arrives,
// then closes. The active session is never displaced.
func (s *supervisor) rejectBusy(tr transport.Transport, remote string) {
	defer func() { _ = tr.Close() }()
	_ = tr.SetRecvDeadline(time.Now().Add(s.cfg.helloTimeout))
	msg, err := tr.Recv()
	if err != nil {
		var verr *protocol.VersionError
		if !errors.As(err, &verr) || verr.MsgType != protocol.MsgHello {
			return
		}
	} else if _, ok := msg.(protocol.Hello); !ok {
		return
	}
	_ = tr.Send(protocol.Ack{
		Status:     protocol.AckBusy,
		MinVersion: protocol.MinVersion,
		MaxVersion: protocol.MaxVersion,
	})
	log.Info().Str("remote", remote).Msg("rejected concurrent client: busy")
}

// runSession authenticates and streams. Returns the close reason.
func (s *supervisor) runSession(sess *session) DisconnectReason {
	tr := sess.tr

	// A locked-out remote is dropped before its HELLO is even read.
	if s.lockout.locked(sess.remote) {
		log.Warn().Str("remote", sess.remote).Msg("remote locked out, dropping connection")
		return ReasonBadCode
	}

	_ = tr.SetRecvDeadline(time.Now().Add(s.cfg.helloTimeout))
	msg, err := tr.Recv()
	if err != nil {
		return s.helloError(sess, err)
	}
	_ = tr.SetRecvDeadline(time.Time{})

	hello, ok := msg.(protocol.Hello)
	if !ok {
		log.Warn().Str("remote", sess.remote).Str("type", msg.Type().String()).Msg("expected HELLO")
		return ReasonProtocolError
	}
	if err := s.validator.Validate(hello.Code); err != nil {
		s.lockout.recordFailure(sess.remote)
		_ = tr.Send(protocol.Ack{
			Status:     protocol.AckBadCode,
			MinVersion: protocol.MinVersion,
			MaxVersion: protocol.MaxVersion,
		})
		log.Warn().Str("remote", sess.remote).Msg("rejected session: bad code")
		return ReasonBadCode
	}
	s.lockout.recordSuccess(sess.remote)

	s.mu.Lock()
	sess.state = StateConnected
	sess.sessionID = hello.SessionID
	sess.negotiatedVersion = protocol.Version
	s.mu.Unlock()
	if hello.Reserved != 0 {
		log.Debug().Uint16("reserved", hello.Reserved).Msg("hello carries nonzero reserved bytes")
	}

	if err := tr.Send(protocol.Ack{
		Status:     protocol.AckOK,
		MinVersion: protocol.MinVersion,
		MaxVersion: protocol.MaxVersion,
	}); err != nil {
		log.Warn().Err(err).Msg("ack send failed")
		return ReasonTransportError
	}
	if len(s.cfg.initialConfig) > 0 {
		if err := tr.Send(protocol.Config{Payload: s.cfg.initialConfig}); err != nil {
			log.Warn().Err(err).Msg("initial config send failed")
			return ReasonTransportError
		}
	}

	s.counters.RecordSessionOpened()
	s.router.attach(tr)
	defer s.router.detach()
	s.router.emitAuthenticated()
	log.Info().
		Str("session", sess.instance.String()).
		Str("remote", sess.remote).
		Uint32("session_id", sess.sessionID).
		Uint8("version", sess.negotiatedVersion).
		Msg("session connected")

	return s.receiveLoop(sess)
}

func (s *supervisor) helloError(sess *session, err error) DisconnectReason {
	var verr *protocol.VersionError
	switch {
	case errors.As(err, &verr) && verr.MsgType == protocol.MsgHello:
		s.counters.RecordVersionMismatch()
		_ = sess.tr.Send(protocol.Ack{
			Status:     protocol.AckVersionMismatch,
			MinVersion: protocol.MinVersion,
			MaxVersion: protocol.MaxVersion,
		})
		log.Warn().Str("remote", sess.remote).Uint8("client_version", verr.Got).Msg("rejected session: version mismatch")
		return ReasonVersionMismatch
	case errors.Is(err, os.ErrDeadlineExceeded):
		log.Warn().Str("remote", sess.remote).Msg("no HELLO within window")
		return ReasonHelloTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ReasonPeerClosed
	case errors.Is(err, transport.ErrClosed):
		return ReasonShutdown
	default:
		log.Warn().Err(err).Str("remote", sess.remote).Msg("handshake read failed")
		return ReasonProtocolError
	}
}

func (s *supervisor) receiveLoop(sess *session) DisconnectReason {
	tr := sess.tr
	for {
		msg, err := tr.Recv()
		if err != nil {
			var skip *transport.SkipError
			switch {
			case errors.As(err, &skip):
				log.Warn().Err(skip.Err).Msg("skipping unknown message")
				continue
			case errors.Is(err, io.EOF):
				return ReasonPeerClosed
			case errors.Is(err, transport.ErrLivenessTimeout):
				return ReasonTimeout
			case errors.Is(err, transport.ErrClosed):
				if s.isShutdown() {
					return ReasonShutdown
				}
				return ReasonTransportError
			case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
				return ReasonPeerClosed
			case errors.Is(err, syscall.ETIMEDOUT):
				// Kernel keepalive declared the peer dead.
				return ReasonTimeout
			default:
				s.router.emitError(err)
				log.Error().Err(err).Msg("stream error, closing session")
				return ReasonProtocolError
			}
		}

		switch m := msg.(type) {
		case protocol.Pose:
			s.router.handlePose(m)
		case protocol.Cmd:
			s.router.handleCommand(m)
		case protocol.Bye:
			if m.SessionID != sess.sessionID {
				log.Warn().
					Uint32("got", m.SessionID).
					Uint32("want", sess.sessionID).
					Msg("BYE with foreign session id, ignoring")
				continue
			}
			log.Info().Str("session", sess.instance.String()).Msg("peer sent BYE")
			return ReasonPeerClosed
		case protocol.Hello:
			log.Warn().Msg("HELLO on connected session, ignoring")
		default:
			log.Warn().Str("type", msg.Type().String()).Msg("unexpected host-bound message, ignoring")
		}
	}
}

// closeSession finishes the cycle and returns the slot to Listening.
// Idempotent per session because the supervisor is the only caller.
func (s *supervisor) closeSession(sess *session, reason DisconnectReason) {
	// Free the slot before draining the socket so a prompt reconnect
	// is claimed instead of bounced BUSY.
	s.mu.Lock()
	sess.state = StateClosing
	if s.current == sess {
		s.current = nil
	}
	s.mu.Unlock()
	_ = sess.tr.Close()

	s.counters.RecordSessionClosed(string(reason))
	s.router.emitDisconnected(reason)
	log.Info().
		Str("session", sess.instance.String()).
		Str("remote", sess.remote).
		Str("reason", string(reason)).
		Msg("session closed")
}

// Shutdown notifies the active peer with a best-effort BYE and closes
// the session. Idempotent.
func (s *supervisor) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	sess := s.current
	s.mu.Unlock()

	if sess != nil {
		_ = sess.tr.Send(protocol.Bye{SessionID: sess.sessionID})
		_ = sess.tr.Close()
	}
}

// Wait blocks until all connection handlers have drained.
func (s *supervisor) Wait() { s.wg.Wait() }

func (s *supervisor) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Info snapshots the current session for the status surface.
func (s *supervisor) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return SessionInfo{State: StateListening}
	}
	return SessionInfo{
		State:             s.current.state,
		Remote:            s.current.remote,
		SessionID:         s.current.sessionID,
		NegotiatedVersion: s.current.negotiatedVersion,
		StartedAt:         s.current.startedAt,
	}
}
