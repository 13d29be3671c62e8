package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Decode parses one whole message payload. The payload must start with
// the common header; framing is the caller's concern.
//
// Non-zero reserved bytes are accepted (a newer peer may assign them);
// HELLO keeps the raw value so the caller can log it.
func Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:4], []byte(Magic)) {
		return nil, ErrBadMagic
	}
	t := data[4]
	ver := data[5]
	if t < uint8(MsgHello) || t > uint8(MsgConfig) {
		return nil, &TypeError{Got: t}
	}
	if ver < MinVersion || ver > MaxVersion {
		return nil, &VersionError{Got: ver, MsgType: MsgType(t)}
	}

	switch MsgType(t) {
	case MsgHello:
		return decodeHello(data)
	case MsgAck:
		return decodeAck(data)
	case MsgPose:
		return decodePose(data)
	case MsgBye:
		return decodeBye(data)
	case MsgCmd:
		return decodeCmd(data)
	case MsgHeartbeat:
		return decodeHeartbeat(data)
	case MsgHaptic:
		return decodeHaptic(data)
	case MsgBeacon:
		return decodeBeacon(data)
	default:
		return decodeConfig(data)
	}
}

func fixedSize(t MsgType, data []byte, want int) error {
	if len(data) != want {
		return &LengthError{MsgType: t, Got: len(data), Want: want}
	}
	return nil
}

func decodeHello(data []byte) (Message, error) {
	if err := fixedSize(MsgHello, data, HelloSize); err != nil {
		return nil, err
	}
	code := bytes.TrimRight(data[10:10+CodeLen], "\x00")
	return Hello{
		SessionID: binary.LittleEndian.Uint32(data[6:10]),
		Code:      string(code),
		Reserved:  binary.LittleEndian.Uint16(data[16:18]),
	}, nil
}

func decodeAck(data []byte) (Message, error) {
	if err := fixedSize(MsgAck, data, AckSize); err != nil {
		return nil, err
	}
	return Ack{
		Status:     AckStatus(data[6]),
		MinVersion: data[8],
		MaxVersion: data[9],
	}, nil
}

func decodePose(data []byte) (Message, error) {
	if err := fixedSize(MsgPose, data, PoseSize); err != nil {
		return nil, err
	}
	var f [7]float32
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[18+4*i : 22+4*i]))
	}
	return Pose{
		Seq:         binary.LittleEndian.Uint16(data[6:8]),
		TimestampUS: binary.LittleEndian.Uint64(data[8:16]),
		Flags:       data[16],
		X:           f[0],
		Y:           f[1],
		Z:           f[2],
		QX:          f[3],
		QY:          f[4],
		QZ:          f[5],
		QW:          f[6],
	}, nil
}

func decodeBye(data []byte) (Message, error) {
	if err := fixedSize(MsgBye, data, ByeSize); err != nil {
		return nil, err
	}
	return Bye{SessionID: binary.LittleEndian.Uint32(data[6:10])}, nil
}

func decodeCmd(data []byte) (Message, error) {
	if err := fixedSize(MsgCmd, data, CmdSize); err != nil {
		return nil, err
	}
	return Cmd{CmdType: CmdType(data[6]), Value: data[7]}, nil
}

func decodeHeartbeat(data []byte) (Message, error) {
	if err := fixedSize(MsgHeartbeat, data, HeartbeatSize); err != nil {
		return nil, err
	}
	return Heartbeat{
		Counter:  binary.LittleEndian.Uint32(data[6:10]),
		UptimeMS: binary.LittleEndian.Uint32(data[10:14]),
	}, nil
}

func decodeHaptic(data []byte) (Message, error) {
	if err := fixedSize(MsgHaptic, data, HapticSize); err != nil {
		return nil, err
	}
	return Haptic{
		Intensity: math.Float32frombits(binary.LittleEndian.Uint32(data[6:10])),
		Channel:   data[10],
	}, nil
}

func decodeBeacon(data []byte) (Message, error) {
	if len(data) < BeaconBaseSize {
		return nil, &LengthError{MsgType: MsgBeacon, Got: len(data), Want: BeaconBaseSize}
	}
	nameLen := int(data[8])
	if nameLen == 0 {
		return nil, ErrNameLength
	}
	if len(data) != BeaconBaseSize+nameLen {
		return nil, &LengthError{MsgType: MsgBeacon, Got: len(data), Want: BeaconBaseSize + nameLen}
	}
	if nameLen > MaxServiceNameLen {
		return nil, ErrNameLength
	}
	return Beacon{
		Port: binary.LittleEndian.Uint16(data[6:8]),
		Name: string(data[10 : 10+nameLen]),
	}, nil
}

func decodeConfig(data []byte) (Message, error) {
	if len(data) < ConfigBaseSize {
		return nil, &LengthError{MsgType: MsgConfig, Got: len(data), Want: ConfigBaseSize}
	}
	cfgLen := int(binary.LittleEndian.Uint16(data[6:8]))
	if len(data) != ConfigBaseSize+cfgLen {
		return nil, &LengthError{MsgType: MsgConfig, Got: len(data), Want: ConfigBaseSize + cfgLen}
	}
	payload := make([]byte, cfgLen)
	copy(payload, data[8:])
	return Config{Payload: payload}, nil
}
