package ble

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
	"github.com/voodoolink/telehost/internal/transport"
)

const (
	DefaultHeartbeatPeriod = 500 * time.Millisecond
	DefaultSilenceTimeout  = 3 * time.Second
)

// Config describes the advertised peripheral.
type Config struct {
	LocalName       string
	HeartbeatPeriod time.Duration
	SilenceTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	return c
}

// Peripheral bridges the GATT characteristics to the message-granular
// transport. One central at a time; a fresh transport is produced per
// central connection and handed out through Accept.
type Peripheral struct {
	adapter  Adapter
	cfg      Config
	counters *observability.Counters

	mu        sync.Mutex
	active    *link
	startedAt time.Time

	accepted chan *transport.BLETransport
	stopped  chan struct{}
	stopOnce sync.Once
}

// link is the per-central connection state.
type link struct {
	tr          *transport.BLETransport
	remote      string
	done        chan struct{}
	closeOnce   sync.Once
	lastInbound struct {
		mu sync.Mutex
		at time.Time
	}
}

func (l *link) touch() {
	l.lastInbound.mu.Lock()
	l.lastInbound.at = time.Now()
	l.lastInbound.mu.Unlock()
}

func (l *link) sinceInbound() (time.Duration, bool) {
	l.lastInbound.mu.Lock()
	defer l.lastInbound.mu.Unlock()
	if l.lastInbound.at.IsZero() {
		return 0, false
	}
	return time.Since(l.lastInbound.at), true
}

func NewPeripheral(adapter Adapter, cfg Config, counters *observability.Counters) *Peripheral {
	if counters == nil {
		counters = observability.NewCounters()
	}
	return &Peripheral{
		adapter:  adapter,
		cfg:      cfg.withDefaults(),
		counters: counters,
		accepted: make(chan *transport.BLETransport, 1),
		stopped:  make(chan struct{}),
	}
}

// Start registers the service table and begins advertising.
func (p *Peripheral) Start() error {
	p.startedAt = time.Now()
	err := p.adapter.Configure(AdapterConfig{
		ServiceUUID: ServiceUUID,
		LocalName:   p.cfg.LocalName,
		Characteristics: []CharacteristicConfig{
			{UUID: CharAuthUUID, Properties: PropWrite, OnWrite: p.onAuthWrite},
			{UUID: CharPoseUUID, Properties: PropWrite | PropWriteWithoutResponse, OnWrite: p.onDataWrite},
			{UUID: CharHeartbeatUUID, Properties: PropRead | PropNotify},
			{UUID: CharCommandUUID, Properties: PropWrite | PropWriteWithoutResponse, OnWrite: p.onDataWrite},
			{UUID: CharHapticUUID, Properties: PropRead | PropNotify},
			{UUID: CharConfigUUID, Properties: PropRead | PropNotify},
		},
		OnConnect:    p.onConnect,
		OnDisconnect: p.onDisconnect,
	})
	if err != nil {
		return err
	}
	if err := p.adapter.Advertise(); err != nil {
		return err
	}
	log.Info().Str("name", p.cfg.LocalName).Str("service", ServiceUUID).Msg("ble peripheral advertising")
	return nil
}

// Accept blocks until a central connects and yields its transport, or
// until Stop.
func (p *Peripheral) Accept() (*transport.BLETransport, error) {
	select {
	case tr := <-p.accepted:
		return tr, nil
	case <-p.stopped:
		return nil, ErrStopped
	}
}

// Stop tears down advertising and any live link. Idempotent.
func (p *Peripheral) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		_ = p.adapter.StopAdvertising()
		p.mu.Lock()
		l := p.active
		p.mu.Unlock()
		if l != nil {
			l.tr.CloseWithReason(transport.ErrClosed)
		}
	})
}

func (p *Peripheral) onConnect(remote string) {
	if mtu := p.adapter.MTU(); mtu > 0 && mtu < MinMTU {
		log.Error().Err(ErrMTUTooSmall).Int("mtu", mtu).Int("min", MinMTU).Msg("disconnecting central")
		_ = p.adapter.Disconnect()
		return
	}

	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		log.Warn().Str("remote", remote).Msg("second central while link active, dropping")
		_ = p.adapter.Disconnect()
		return
	}
	l := &link{remote: remote, done: make(chan struct{})}
	l.tr = transport.NewBLE(remote, p.send, func() { p.onTransportClose(l) })
	p.active = l
	p.mu.Unlock()

	go p.heartbeatLoop(l)
	go p.silenceLoop(l)

	select {
	case p.accepted <- l.tr:
	default:
		log.Warn().Str("remote", remote).Msg("no acceptor for central, dropping")
		l.tr.CloseWithReason(transport.ErrClosed)
		return
	}
	log.Info().Str("remote", remote).Msg("central connected")
}

func (p *Peripheral) onDisconnect(remote string) {
	p.mu.Lock()
	l := p.active
	p.mu.Unlock()
	if l == nil || l.remote != remote {
		return
	}
	l.tr.CloseWithReason(io.EOF)
}

// onTransportClose runs once per link, whichever side closed first.
func (p *Peripheral) onTransportClose(l *link) {
	l.closeOnce.Do(func() {
		close(l.done)
		p.mu.Lock()
		if p.active == l {
			p.active = nil
		}
		p.mu.Unlock()
		_ = p.adapter.Disconnect()

		select {
		case <-p.stopped:
		default:
			// Re-advertise so the mobile can reconnect.
			if err := p.adapter.Advertise(); err != nil {
				log.Warn().Err(err).Msg("re-advertise failed")
			}
		}
		log.Info().Str("remote", l.remote).Msg("central link closed")
	})
}

// send routes host->mobile messages onto notify characteristics. ACK
// and BYE have no BLE mapping; the link-level write response stands in
// for them.
func (p *Peripheral) send(msg protocol.Message) error {
	var charUUID string
	switch msg.Type() {
	case protocol.MsgHeartbeat:
		charUUID = CharHeartbeatUUID
	case protocol.MsgHaptic:
		charUUID = CharHapticUUID
	case protocol.MsgConfig:
		charUUID = CharConfigUUID
	default:
		log.Debug().Str("type", msg.Type().String()).Msg("no ble mapping for outbound message")
		return nil
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := p.adapter.Notify(charUUID, data); err != nil {
		return err
	}
	p.counters.AddBytesOut(len(data))
	return nil
}

// onAuthWrite accepts either a full HELLO payload or the bare 6-char
// code, which it wraps into a synthetic HELLO.
func (p *Peripheral) onAuthWrite(data []byte) {
	l := p.currentLink()
	if l == nil {
		return
	}
	l.touch()
	p.counters.AddBytesIn(len(data))

	if bytes.HasPrefix(data, []byte(protocol.Magic)) {
		p.feedDecoded(l, data)
		return
	}
	code := strings.TrimRight(string(data), "\x00")
	l.tr.Feed(protocol.Hello{SessionID: 0, Code: code})
}

func (p *Peripheral) onDataWrite(data []byte) {
	l := p.currentLink()
	if l == nil {
		return
	}
	l.touch()
	p.counters.AddBytesIn(len(data))
	p.feedDecoded(l, data)
}

func (p *Peripheral) feedDecoded(l *link, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrBadMagic):
			p.counters.RecordBadMagic()
		case errors.Is(err, protocol.ErrUnknownType):
			p.counters.RecordUnknownType()
		}
		log.Warn().Err(err).Int("len", len(data)).Msg("dropping undecodable characteristic write")
		return
	}
	l.tr.Feed(msg)
}

func (p *Peripheral) currentLink() *link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Peripheral) heartbeatLoop(l *link) {
	ticker := time.NewTicker(p.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	var counter uint32
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			counter++
			hb := protocol.Heartbeat{
				Counter:  counter,
				UptimeMS: uint32(time.Since(p.startedAt).Milliseconds()),
			}
			if err := p.send(hb); err != nil {
				log.Debug().Err(err).Msg("heartbeat notify failed")
			}
		}
	}
}

// silenceLoop enforces the inbound-silence window. It arms only after
// the first write so the authentication window is governed by the
// session machine, not by this timer.
func (p *Peripheral) silenceLoop(l *link) {
	ticker := time.NewTicker(p.cfg.SilenceTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			since, armed := l.sinceInbound()
			if armed && since >= p.cfg.SilenceTimeout {
				log.Warn().Str("remote", l.remote).Dur("silence", since).Msg("ble inbound silence, closing link")
				l.tr.CloseWithReason(transport.ErrLivenessTimeout)
				return
			}
		}
	}
}
