package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/voodoolink/telehost/internal/host"
	"github.com/voodoolink/telehost/internal/protocol"
)

// emitter prints host events as JSON lines, one per event, matching
// the shape the example integrations parse.
type emitter struct {
	mu    sync.Mutex
	quiet bool
}

func newEmitter(quiet bool) *emitter {
	return &emitter{quiet: quiet}
}

func (e *emitter) emit(event map[string]any) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	e.mu.Lock()
	fmt.Println(string(line))
	e.mu.Unlock()
}

func (e *emitter) callbacks() host.Callbacks {
	return host.Callbacks{
		OnPose: func(p host.PoseSample) {
			if e.quiet {
				return
			}
			e.emit(map[string]any{
				"type":           "pose",
				"seq":            p.Seq,
				"timestamp_us":   p.TimestampUS,
				"movement_start": p.MovementStart,
				"position":       []float32{p.X, p.Y, p.Z},
				"quaternion":     []float32{p.QX, p.QY, p.QZ, p.QW},
			})
		},
		OnCommand: func(c host.Command) {
			e.emit(map[string]any{
				"type":  "command",
				"name":  commandName(c),
				"value": c.Value,
			})
		},
		OnConnected: func(remote string) {
			e.emit(map[string]any{"type": "connection_accepted", "client": remote})
		},
		OnAuthenticated: func() {
			e.emit(map[string]any{"type": "connected"})
		},
		OnDisconnected: func(reason host.DisconnectReason) {
			e.emit(map[string]any{"type": "disconnected", "reason": string(reason)})
		},
		OnError: func(err error) {
			e.emit(map[string]any{"type": "error", "message": err.Error()})
		},
	}
}

func commandName(c host.Command) string {
	switch c.Type {
	case protocol.CmdRecording:
		return "recording"
	case protocol.CmdKeepRecording:
		return "keep_recording"
	default:
		return fmt.Sprintf("cmd_%d", c.Type)
	}
}
