// Package protocol owns the telehost wire contract.
//
// Ownership boundary:
// - fixed-layout message structs and their type IDs
// - encode/decode primitives shared by the TCP and BLE transports
// - header validation (magic, version, type)
//
// All fields are little-endian. Framing (the TCP length prefix) lives in
// the frame subpackage; this package only sees whole payloads.
package protocol
