// Package host owns the session engine.
//
// Ownership boundary:
//   - TCP listener with low-latency socket tuning
//   - the accept/authenticate/stream/close session state machine
//   - inbound routing to application callbacks and the serialized
//     outbound haptic/config path
//   - the supervisor loop that cycles Listening -> Connected -> Listening
//
// The Host handle returned by Start is the only way the embedding
// application reaches any of this; there is no package-level state.
package host
