package protocol

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestRoundTripAllMessages(t *testing.T) {
	msgs := []Message{
		Hello{SessionID: 0xDEADBEEF, Code: "ABC123"},
		Ack{Status: AckOK, MinVersion: 1, MaxVersion: 1},
		Pose{Seq: 7, TimestampUS: 123456789, Flags: FlagMovementStart, X: 1.5, Y: -2.25, Z: 0.125, QX: 0, QY: 0, QZ: 0, QW: 1},
		Bye{SessionID: 42},
		Cmd{CmdType: CmdRecording, Value: 1},
		Heartbeat{Counter: 99, UptimeMS: 50500},
		Haptic{Intensity: 0.75, Channel: 0},
		Beacon{Port: 50000, Name: "myvoodoo"},
		Config{Payload: []byte(`{"scale":1.0}`)},
	}
	for _, want := range msgs {
		buf, err := Encode(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Type(), err)
		}
		if string(buf[:4]) != Magic {
			t.Fatalf("%s: magic missing", want.Type())
		}
		if buf[4] != byte(want.Type()) || buf[5] != Version {
			t.Fatalf("%s: bad header bytes % X", want.Type(), buf[:HeaderSize])
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Type(), err)
		}
		if cfg, ok := want.(Config); ok {
			gotCfg := got.(Config)
			if !bytes.Equal(cfg.Payload, gotCfg.Payload) {
				t.Fatalf("config payload mismatch: %q != %q", gotCfg.Payload, cfg.Payload)
			}
			continue
		}
		if got != want {
			t.Fatalf("%s round-trip mismatch: got=%+v want=%+v", want.Type(), got, want)
		}
	}
}

func TestEncodedSizes(t *testing.T) {
	cases := []struct {
		msg  Message
		want int
	}{
		{Hello{Code: "XYZ789"}, HelloSize},
		{Ack{}, AckSize},
		{Pose{}, PoseSize},
		{Bye{}, ByeSize},
		{Cmd{}, CmdSize},
		{Heartbeat{}, HeartbeatSize},
		{Haptic{}, HapticSize},
		{Beacon{Port: 1, Name: "ab"}, BeaconBaseSize + 2},
		{Config{Payload: []byte("{}")}, ConfigBaseSize + 2},
	}
	for _, tc := range cases {
		buf, err := Encode(tc.msg)
		if err != nil {
			t.Fatalf("encode %s: %v", tc.msg.Type(), err)
		}
		if len(buf) != tc.want {
			t.Fatalf("%s size=%d want=%d", tc.msg.Type(), len(buf), tc.want)
		}
	}
}

func TestGoldenBeaconBytes(t *testing.T) {
	buf, err := Encode(Beacon{Port: 50000, Name: "myvoodoo"})
	if err != nil {
		t.Fatalf("encode beacon: %v", err)
	}
	want := []byte{
		0x54, 0x45, 0x4C, 0x45, 0x08, 0x01,
		0x50, 0xC3,
		0x08, 0x00,
		'm', 'y', 'v', 'o', 'o', 'd', 'o', 'o',
	}
	if !bytes.Equal(buf, want) {
		t.Fatalf("beacon bytes\n got=% X\nwant=% X", buf, want)
	}
}

func TestGoldenConfigBytes(t *testing.T) {
	buf, err := Encode(Config{Payload: []byte("{}")})
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	want := []byte{0x54, 0x45, 0x4C, 0x45, 0x09, 0x01, 0x02, 0x00, 0x7B, 0x7D}
	if !bytes.Equal(buf, want) {
		t.Fatalf("config bytes\n got=% X\nwant=% X", buf, want)
	}
}

func TestGoldenPoseHeader(t *testing.T) {
	buf, err := Encode(Pose{Seq: 0, TimestampUS: 0, Flags: FlagMovementStart, X: 1, Y: 2, Z: 3, QW: 1})
	if err != nil {
		t.Fatalf("encode pose: %v", err)
	}
	if !bytes.Equal(buf[:6], []byte{0x54, 0x45, 0x4C, 0x45, 0x03, 0x01}) {
		t.Fatalf("pose header: % X", buf[:6])
	}
	if len(buf) != PoseSize {
		t.Fatalf("pose size=%d", len(buf))
	}
}

func TestPoseFloatBitsPreserved(t *testing.T) {
	specials := []uint32{
		math.Float32bits(float32(math.NaN())),
		0x00000001, // subnormal
		0x7F800000, // +inf
		0xFF800000, // -inf
		0x80000000, // -0
	}
	for _, bits := range specials {
		f := math.Float32frombits(bits)
		buf, err := Encode(Pose{X: f, QW: f})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		p := got.(Pose)
		if math.Float32bits(p.X) != bits || math.Float32bits(p.QW) != bits {
			t.Fatalf("float bits changed: in=%08x out=%08x/%08x", bits, math.Float32bits(p.X), math.Float32bits(p.QW))
		}
	}
}

func TestDecodeBadMagic(t *testing.T) {
	buf, _ := Encode(Bye{SessionID: 1})
	buf[0] = 'X'
	_, err := Decode(buf)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	buf, _ := Encode(Hello{SessionID: 1, Code: "ABC123"})
	buf[5] = 2
	_, err := Decode(buf)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VersionError, got %v", err)
	}
	if ve.Got != 2 || ve.MsgType != MsgHello {
		t.Fatalf("unexpected VersionError: %+v", ve)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf, _ := Encode(Cmd{CmdType: CmdRecording, Value: 1})
	buf[4] = 0x7F
	_, err := Decode(buf)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeWrongLength(t *testing.T) {
	buf, _ := Encode(Pose{})
	_, err := Decode(buf[:PoseSize-1])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("short pose: expected ErrTruncated, got %v", err)
	}
	_, err = Decode(append(buf, 0))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("long pose: expected ErrTruncated, got %v", err)
	}
}

func TestDecodeNonZeroReservedAccepted(t *testing.T) {
	buf, _ := Encode(Hello{SessionID: 5, Code: "ABC123"})
	buf[16] = 0xAA
	buf[17] = 0x55
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	h := got.(Hello)
	if h.Reserved != 0x55AA {
		t.Fatalf("reserved=%04x", h.Reserved)
	}
	if h.Code != "ABC123" {
		t.Fatalf("code=%q", h.Code)
	}
}

func TestDecodePoseAllFlags(t *testing.T) {
	buf, _ := Encode(Pose{})
	buf[16] = 0xFF
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := got.(Pose)
	if !p.MovementStart() {
		t.Fatalf("expected movement_start with flags=0xFF")
	}
	if p.Flags != 0xFF {
		t.Fatalf("flags not preserved: %02x", p.Flags)
	}
}

func TestBeaconNameLengthBounds(t *testing.T) {
	if _, err := Encode(Beacon{Port: 1, Name: ""}); !errors.Is(err, ErrNameLength) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := Encode(Beacon{Port: 1, Name: "123456789012345678901"}); !errors.Is(err, ErrNameLength) {
		t.Fatalf("long name: %v", err)
	}

	// name_len = 0 on the wire
	buf, _ := Encode(Beacon{Port: 1, Name: "x"})
	buf[8] = 0
	buf = buf[:BeaconBaseSize]
	if _, err := Decode(buf); !errors.Is(err, ErrNameLength) {
		t.Fatalf("name_len=0: %v", err)
	}

	// name_len = 255 with only a few bytes available
	buf2, _ := Encode(Beacon{Port: 1, Name: "short"})
	buf2[8] = 255
	if _, err := Decode(buf2); !errors.Is(err, ErrTruncated) {
		t.Fatalf("name_len=255: %v", err)
	}
}

func TestConfigLengthMismatch(t *testing.T) {
	buf, _ := Encode(Config{Payload: []byte("abcd")})
	buf[6] = 0xFF
	buf[7] = 0x00
	if _, err := Decode(buf); !errors.Is(err, ErrTruncated) {
		t.Fatalf("config_len overrun: %v", err)
	}
}

func TestDecodeRandomNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20000; i++ {
		n := rng.Intn(128)
		buf := make([]byte, n)
		rng.Read(buf)
		if rng.Intn(2) == 0 && n >= 4 {
			copy(buf, Magic)
		}
		msg, err := Decode(buf)
		if err == nil && msg == nil {
			t.Fatalf("nil message without error")
		}
	}
}
