// Package frame owns TCP stream framing: a 2-byte little-endian length
// prefix in front of every payload. UDP datagrams and BLE characteristic
// writes are not framed.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// PrefixLen is the size of the length prefix.
	PrefixLen = 2
	// MaxPayloadLen bounds a single framed payload. The largest legal
	// messages (BEACON, CONFIG) stay far below this; anything bigger is
	// a corrupt stream.
	MaxPayloadLen = 4096
)

var (
	ErrZeroLength    = errors.New("frame: zero-length frame")
	ErrFrameTooLarge = errors.New("frame: frame exceeds maximum payload length")
)

// ReadMessage reads one length-prefixed payload from r.
//
// Returns io.EOF only when the stream ends cleanly before the first
// prefix byte. A stream that ends mid-frame returns io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		// Deadline and closed-connection errors pass through intact.
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(prefix[:]))
	if n == 0 {
		return nil, ErrZeroLength
	}
	if n > MaxPayloadLen {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteMessage writes payload with its length prefix as one gathered
// write, so concurrent writers serialized by the caller's lock never
// interleave a prefix with another frame's payload.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrZeroLength
	}
	if len(payload) > MaxPayloadLen {
		return ErrFrameTooLarge
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint16(buf[:PrefixLen], uint16(len(payload)))
	copy(buf[PrefixLen:], payload)
	_, err := w.Write(buf)
	return err
}
