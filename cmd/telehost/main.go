package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/config"
	"github.com/voodoolink/telehost/internal/host"
	"github.com/voodoolink/telehost/internal/logging"
	"github.com/voodoolink/telehost/internal/status"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "telehost: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to TOML config file")
		name       = flag.String("name", "", "service name (default: randomly generated)")
		code       = flag.String("code", "", "6-char auth code (default: randomly generated)")
		connection = flag.String("connection", "", "connection type: auto, ble, wifi or usb")
		tcpPort    = flag.Uint("tcp-port", 0, "TCP data port (default 50000)")
		beaconPort = flag.Uint("beacon-port", 0, "UDP beacon port (default 50001)")
		statusAddr = flag.String("status-addr", "", "optional HTTP status/metrics address")
		quiet      = flag.Bool("quiet", false, "suppress high-frequency events (pose, heartbeat)")
	)
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg, *name, *code, *connection, *tcpPort, *beaconPort, *statusAddr, *quiet)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	selector, err := resolveTransport(cfg.Connection)
	if err != nil {
		return err
	}

	emit := newEmitter(cfg.Quiet)
	h, err := host.Start(host.Config{
		Transport:     selector,
		ServiceName:   cfg.Name,
		AuthCode:      cfg.Code,
		TCPPort:       cfg.TCPPort,
		BeaconPort:    cfg.BeaconPort,
		BeaconAddr:    cfg.BeaconAddr,
		InitialConfig: []byte(cfg.InitialConfig),
	}, emit.callbacks())
	if err != nil {
		return err
	}
	defer h.Stop()

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.New(cfg.Name, h)
		if err := statusSrv.Start(cfg.StatusAddr); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer statusSrv.Stop()
	}

	printSessionInfo(cfg, selector)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	return nil
}

func applyFlagOverrides(cfg *config.HostConfig, name, code, connection string, tcpPort, beaconPort uint, statusAddr string, quiet bool) {
	if name != "" {
		cfg.Name = name
	}
	if code != "" {
		cfg.Code = code
	}
	if connection != "" {
		cfg.Connection = connection
	}
	if tcpPort != 0 {
		cfg.TCPPort = uint16(tcpPort)
	}
	if beaconPort != 0 {
		cfg.BeaconPort = uint16(beaconPort)
	}
	if statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}
	if quiet {
		cfg.Quiet = true
	}
}

func resolveTransport(connection string) (host.TransportSelector, error) {
	switch strings.ToLower(strings.TrimSpace(connection)) {
	case "", "auto", "wifi":
		// WiFi is the recommended default: lower latency than BLE and
		// no platform BLE dependencies.
		return host.TransportWifi, nil
	case "usb":
		return host.TransportUsbTcp, nil
	case "ble":
		return host.TransportBle, nil
	default:
		return "", fmt.Errorf("unknown connection type %q", connection)
	}
}

// printSessionInfo emits one machine-readable line the pairing flow
// (QR generator, phone app tooling) consumes.
func printSessionInfo(cfg config.HostConfig, selector host.TransportSelector) {
	info := map[string]any{
		"type":      "session",
		"name":      cfg.Name,
		"code":      cfg.Code,
		"transport": string(selector),
	}
	if selector != host.TransportBle {
		info["port"] = cfg.TCPPort
		info["ip"] = localIP()
	}
	line, _ := json.Marshal(info)
	fmt.Println(string(line))
}

// localIP reports the primary outbound interface address, best effort.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
