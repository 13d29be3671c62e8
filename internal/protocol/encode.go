package protocol

import (
	"encoding/binary"
	"math"
)

// Encode serializes msg into a fresh byte slice. Reserved bytes are
// written as zero regardless of the struct's Reserved fields.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Hello:
		return encodeHello(m), nil
	case Ack:
		return encodeAck(m), nil
	case Pose:
		return encodePose(m), nil
	case Bye:
		return encodeBye(m), nil
	case Cmd:
		return encodeCmd(m), nil
	case Heartbeat:
		return encodeHeartbeat(m), nil
	case Haptic:
		return encodeHaptic(m), nil
	case Beacon:
		return encodeBeacon(m)
	case Config:
		return encodeConfig(m)
	}
	return nil, &TypeError{Got: uint8(msg.Type())}
}

func appendHeader(buf []byte, t MsgType) []byte {
	buf = append(buf, Magic...)
	buf = append(buf, byte(t), Version)
	return buf
}

func encodeHello(m Hello) []byte {
	buf := make([]byte, 0, HelloSize)
	buf = appendHeader(buf, MsgHello)
	buf = binary.LittleEndian.AppendUint32(buf, m.SessionID)
	var code [CodeLen]byte
	copy(code[:], m.Code)
	buf = append(buf, code[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	return buf
}

func encodeAck(m Ack) []byte {
	buf := make([]byte, 0, AckSize)
	buf = appendHeader(buf, MsgAck)
	buf = append(buf, byte(m.Status), 0, m.MinVersion, m.MaxVersion)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	return buf
}

func encodePose(m Pose) []byte {
	buf := make([]byte, 0, PoseSize)
	buf = appendHeader(buf, MsgPose)
	buf = binary.LittleEndian.AppendUint16(buf, m.Seq)
	buf = binary.LittleEndian.AppendUint64(buf, m.TimestampUS)
	buf = append(buf, m.Flags, 0)
	for _, f := range [7]float32{m.X, m.Y, m.Z, m.QX, m.QY, m.QZ, m.QW} {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func encodeBye(m Bye) []byte {
	buf := make([]byte, 0, ByeSize)
	buf = appendHeader(buf, MsgBye)
	buf = binary.LittleEndian.AppendUint32(buf, m.SessionID)
	return buf
}

func encodeCmd(m Cmd) []byte {
	buf := make([]byte, 0, CmdSize)
	buf = appendHeader(buf, MsgCmd)
	buf = append(buf, byte(m.CmdType), m.Value)
	return buf
}

func encodeHeartbeat(m Heartbeat) []byte {
	buf := make([]byte, 0, HeartbeatSize)
	buf = appendHeader(buf, MsgHeartbeat)
	buf = binary.LittleEndian.AppendUint32(buf, m.Counter)
	buf = binary.LittleEndian.AppendUint32(buf, m.UptimeMS)
	return buf
}

func encodeHaptic(m Haptic) []byte {
	buf := make([]byte, 0, HapticSize)
	buf = appendHeader(buf, MsgHaptic)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m.Intensity))
	buf = append(buf, m.Channel, 0)
	return buf
}

func encodeBeacon(m Beacon) ([]byte, error) {
	name := []byte(m.Name)
	if len(name) < 1 || len(name) > MaxServiceNameLen {
		return nil, ErrNameLength
	}
	buf := make([]byte, 0, BeaconBaseSize+len(name))
	buf = appendHeader(buf, MsgBeacon)
	buf = binary.LittleEndian.AppendUint16(buf, m.Port)
	buf = append(buf, byte(len(name)), 0)
	buf = append(buf, name...)
	return buf, nil
}

func encodeConfig(m Config) ([]byte, error) {
	if len(m.Payload) > int(^uint16(0)) {
		return nil, ErrConfigTooLarge
	}
	buf := make([]byte, 0, ConfigBaseSize+len(m.Payload))
	buf = appendHeader(buf, MsgConfig)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Payload)))
	buf = append(buf, m.Payload...)
	return buf, nil
}
