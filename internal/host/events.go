package host

import "github.com/voodoolink/telehost/internal/protocol"

// DisconnectReason labels why a session ended. The same strings feed
// the sessions_closed metric.
type DisconnectReason string

const (
	ReasonPeerClosed      DisconnectReason = "peer_closed"
	ReasonBadCode         DisconnectReason = "bad_code"
	ReasonVersionMismatch DisconnectReason = "version_mismatch"
	ReasonHelloTimeout    DisconnectReason = "hello_timeout"
	ReasonTimeout         DisconnectReason = "timeout"
	ReasonProtocolError   DisconnectReason = "protocol_error"
	ReasonTransportError  DisconnectReason = "transport_error"
	ReasonShutdown        DisconnectReason = "shutdown"
)

// PoseSample is one delivered 6-DoF sample. Values are forwarded
// verbatim from the wire; the quaternion is not normalized here.
type PoseSample struct {
	Seq            uint16
	TimestampUS    uint64
	MovementStart  bool
	X, Y, Z        float32
	QX, QY, QZ, QW float32
}

func poseSample(p protocol.Pose) PoseSample {
	return PoseSample{
		Seq:           p.Seq,
		TimestampUS:   p.TimestampUS,
		MovementStart: p.MovementStart(),
		X:             p.X,
		Y:             p.Y,
		Z:             p.Z,
		QX:            p.QX,
		QY:            p.QY,
		QZ:            p.QZ,
		QW:            p.QW,
	}
}

// Command is one delivered CMD toggle.
type Command struct {
	Type  protocol.CmdType
	Value uint8
}

// Callbacks is the application surface. Any field may be nil. POSE is
// delivered synchronously on the receive goroutine; a slow OnPose
// stalls the stream, never reorders it. A panicking callback is
// recovered and logged; the session continues.
type Callbacks struct {
	OnPose          func(PoseSample)
	OnCommand       func(Command)
	OnConnected     func(remote string)
	OnAuthenticated func()
	OnDisconnected  func(reason DisconnectReason)
	OnError         func(err error)
}

// Event is the sum-type alternative to Callbacks for consumers that
// prefer a single handler.
type Event interface{ isEvent() }

type PoseEvent struct{ Sample PoseSample }

type CommandEvent struct{ Command Command }

type ConnectedEvent struct{ Remote string }

type AuthenticatedEvent struct{}

type DisconnectedEvent struct{ Reason DisconnectReason }

type ErrorEvent struct{ Err error }

func (PoseEvent) isEvent()          {}
func (CommandEvent) isEvent()       {}
func (ConnectedEvent) isEvent()     {}
func (AuthenticatedEvent) isEvent() {}
func (DisconnectedEvent) isEvent()  {}
func (ErrorEvent) isEvent()         {}

// HandlerCallbacks adapts a single event handler into Callbacks.
func HandlerCallbacks(handler func(Event)) Callbacks {
	return Callbacks{
		OnPose:          func(s PoseSample) { handler(PoseEvent{Sample: s}) },
		OnCommand:       func(c Command) { handler(CommandEvent{Command: c}) },
		OnConnected:     func(remote string) { handler(ConnectedEvent{Remote: remote}) },
		OnAuthenticated: func() { handler(AuthenticatedEvent{}) },
		OnDisconnected:  func(r DisconnectReason) { handler(DisconnectedEvent{Reason: r}) },
		OnError:         func(err error) { handler(ErrorEvent{Err: err}) },
	}
}
