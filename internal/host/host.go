package host

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/beacon"
	"github.com/voodoolink/telehost/internal/ble"
	"github.com/voodoolink/telehost/internal/observability"
	"github.com/voodoolink/telehost/internal/protocol"
)

// TransportSelector picks the physical transport at Start. USB is
// TCP over a tunneled local port, so it shares the TCP stack.
type TransportSelector string

const (
	TransportWifi   TransportSelector = "wifi"
	TransportUsbTcp TransportSelector = "usb"
	TransportBle    TransportSelector = "ble"
)

const (
	DefaultTCPPort    uint16 = 50000
	DefaultBeaconPort uint16 = 50001
)

var (
	ErrInvalidAuthCode    = errors.New("host: auth code must be 6 chars of A-Z0-9")
	ErrInvalidServiceName = errors.New("host: service name must be 1..20 utf-8 bytes")
	ErrInvalidTransport   = errors.New("host: unknown transport selector")
)

var authCodeRe = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Config is everything the embedding application supplies.
type Config struct {
	Transport   TransportSelector
	ServiceName string
	AuthCode    string

	TCPPort    uint16
	BeaconPort uint16
	// BeaconAddr overrides the broadcast destination; empty means the
	// limited broadcast address on BeaconPort.
	BeaconAddr string

	// InitialConfig is sent verbatim in one CONFIG message right after
	// ACK(OK). Empty means no initial CONFIG.
	InitialConfig []byte

	HelloTimeout time.Duration

	// BLEAdapter overrides the platform adapter; nil selects the
	// tinygo-bluetooth stack. Only used with TransportBle.
	BLEAdapter ble.Adapter

	// BLEHeartbeatPeriod and BLESilenceTimeout tune the BLE link
	// supervision; zero keeps the defaults.
	BLEHeartbeatPeriod time.Duration
	BLESilenceTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportWifi
	}
	if c.TCPPort == 0 {
		c.TCPPort = DefaultTCPPort
	}
	if c.BeaconPort == 0 {
		c.BeaconPort = DefaultBeaconPort
	}
	if strings.TrimSpace(c.BeaconAddr) == "" {
		c.BeaconAddr = fmt.Sprintf("255.255.255.255:%d", c.BeaconPort)
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	return c
}

func (c Config) validate() error {
	if !authCodeRe.MatchString(c.AuthCode) {
		return ErrInvalidAuthCode
	}
	if n := len(c.ServiceName); n < 1 || n > protocol.MaxServiceNameLen {
		return ErrInvalidServiceName
	}
	switch c.Transport {
	case TransportWifi, TransportUsbTcp, TransportBle:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
}

// Host owns the beacon, the listener or peripheral, and the session
// supervisor. Everything it starts is torn down by Stop.
type Host struct {
	cfg      Config
	counters *observability.Counters
	router   *Router
	sup      *supervisor

	listener   net.Listener
	peripheral *ble.Peripheral
	beacon     *beacon.Broadcaster

	stopOnce sync.Once
}

// Start validates the config, brings up the selected transport plus
// discovery, and returns the live handle.
func Start(cfg Config, cb Callbacks) (*Host, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	counters := observability.NewCounters()
	router := newRouter(cb, counters)
	sup := newSupervisor(supervisorConfig{
		code:          cfg.AuthCode,
		helloTimeout:  cfg.HelloTimeout,
		initialConfig: cfg.InitialConfig,
	}, router, counters)

	h := &Host{cfg: cfg, counters: counters, router: router, sup: sup}

	switch cfg.Transport {
	case TransportWifi, TransportUsbTcp:
		ln, err := listenTCP(cfg.TCPPort)
		if err != nil {
			return nil, err
		}
		bc, err := beacon.New(beacon.Config{
			ServiceName:   cfg.ServiceName,
			TCPPort:       cfg.TCPPort,
			BroadcastAddr: cfg.BeaconAddr,
		}, counters)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		if err := bc.Start(); err != nil {
			_ = ln.Close()
			return nil, err
		}
		h.listener = ln
		h.beacon = bc
		sup.wg.Add(1)
		go sup.runTCP(ln)
		log.Info().
			Str("transport", string(cfg.Transport)).
			Uint16("tcp_port", cfg.TCPPort).
			Str("name", cfg.ServiceName).
			Msg("host listening")

	case TransportBle:
		adapter := cfg.BLEAdapter
		if adapter == nil {
			adapter = ble.NewTinyGoAdapter()
		}
		p := ble.NewPeripheral(adapter, ble.Config{
			LocalName:       cfg.ServiceName,
			HeartbeatPeriod: cfg.BLEHeartbeatPeriod,
			SilenceTimeout:  cfg.BLESilenceTimeout,
		}, counters)
		if err := p.Start(); err != nil {
			return nil, err
		}
		h.peripheral = p
		sup.wg.Add(1)
		go sup.runBLE(p)
		log.Info().Str("transport", "ble").Str("name", cfg.ServiceName).Msg("host advertising")
	}

	return h, nil
}

// Stop tears everything down. Idempotent; an already-stopped host is a
// no-op.
func (h *Host) Stop() {
	h.stopOnce.Do(func() {
		h.sup.Shutdown()
		if h.listener != nil {
			_ = h.listener.Close()
		}
		if h.peripheral != nil {
			h.peripheral.Stop()
		}
		if h.beacon != nil {
			h.beacon.Stop()
		}
		h.sup.Wait()
		log.Info().Msg("host stopped")
	})
}

// SendHaptic queues feedback for the connected mobile. Thread-safe.
func (h *Host) SendHaptic(intensity float32, channel uint8) error {
	return h.router.SendHaptic(intensity, channel)
}

// SendConfig pushes a configuration update to the connected mobile.
// Thread-safe; never dropped.
func (h *Host) SendConfig(payload []byte) error {
	return h.router.SendConfig(payload)
}

// Counters snapshots the host's observable counters.
func (h *Host) Counters() observability.Snapshot {
	return h.counters.Snapshot()
}

// Session snapshots the current session state.
func (h *Host) Session() SessionInfo {
	return h.sup.Info()
}

// Addr reports the bound TCP address, or empty for BLE.
func (h *Host) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
