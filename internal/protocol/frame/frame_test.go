package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestReadWriteRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x01},
		[]byte("TELE\x03\x01 pose payload"),
		bytes.Repeat([]byte{0xAB}, MaxPayloadLen),
	}
	for _, p := range payloads {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, p); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("payload mismatch: %d vs %d bytes", len(got), len(p))
		}
	}
}

func TestWriteIsSingleGatheredWrite(t *testing.T) {
	w := &countingWriter{}
	if err := WriteMessage(w, []byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if w.writes != 1 {
		t.Fatalf("expected one write call, got %d", w.writes)
	}
	want := []byte{0x03, 0x00, 'a', 'b', 'c'}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("wire bytes % X, want % X", w.Bytes(), want)
	}
}

func TestReadCleanEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadShortPrefix(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0x05}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	short := buf.Bytes()[:buf.Len()-2]
	_, err := ReadMessage(bytes.NewReader(short))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestZeroLengthFrame(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0x00, 0x00}))
	if !errors.Is(err, ErrZeroLength) {
		t.Fatalf("expected ErrZeroLength, got %v", err)
	}
	if err := WriteMessage(io.Discard, nil); !errors.Is(err, ErrZeroLength) {
		t.Fatalf("expected ErrZeroLength on write, got %v", err)
	}
}

func TestOversizedFrame(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0x01, 0x10}))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if err := WriteMessage(io.Discard, make([]byte, MaxPayloadLen+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on write, got %v", err)
	}
}

func TestBackToBackFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		if err := WriteMessage(&buf, []byte{byte(i), byte(i + 1)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		p, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if p[0] != byte(i) {
			t.Fatalf("frame %d out of order: % X", i, p)
		}
	}
	if _, err := ReadMessage(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after drain")
	}
}
