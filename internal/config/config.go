// Package config owns host configuration loading and session
// credential generation.
package config

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTCPPort    uint16 = 50000
	DefaultBeaconPort uint16 = 50001
	DefaultConnection        = "wifi"
)

var (
	authCodeRe    = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	credentialSet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// HostConfig is the file-loadable host configuration.
type HostConfig struct {
	Name          string
	Code          string
	Connection    string
	TCPPort       uint16
	BeaconPort    uint16
	BeaconAddr    string
	StatusAddr    string
	InitialConfig string
	Quiet         bool
}

type fileConfig struct {
	Name          string `toml:"name"`
	Code          string `toml:"code"`
	Connection    string `toml:"connection"`
	TCPPort       uint16 `toml:"tcp_port"`
	BeaconPort    uint16 `toml:"beacon_port"`
	BeaconAddr    string `toml:"beacon_addr"`
	StatusAddr    string `toml:"status_addr"`
	InitialConfig string `toml:"initial_config"`
	Quiet         bool   `toml:"quiet"`
}

// Default returns a config with generated credentials.
func Default() HostConfig {
	name, code := GenerateCredentials()
	return HostConfig{
		Name:       name,
		Code:       code,
		Connection: DefaultConnection,
		TCPPort:    DefaultTCPPort,
		BeaconPort: DefaultBeaconPort,
	}
}

// Load overlays a TOML file onto the defaults. Only keys present in
// the file override; absent credentials stay generated.
func Load(path string) (HostConfig, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return HostConfig{}, fmt.Errorf("load host config: %w", err)
	}

	if meta.IsDefined("name") && strings.TrimSpace(raw.Name) != "" {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("code") && strings.TrimSpace(raw.Code) != "" {
		cfg.Code = strings.TrimSpace(raw.Code)
	}
	if meta.IsDefined("connection") {
		cfg.Connection = strings.TrimSpace(raw.Connection)
	}
	if meta.IsDefined("tcp_port") {
		cfg.TCPPort = raw.TCPPort
	}
	if meta.IsDefined("beacon_port") {
		cfg.BeaconPort = raw.BeaconPort
	}
	if meta.IsDefined("beacon_addr") {
		cfg.BeaconAddr = strings.TrimSpace(raw.BeaconAddr)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("initial_config") {
		cfg.InitialConfig = raw.InitialConfig
	}
	if meta.IsDefined("quiet") {
		cfg.Quiet = raw.Quiet
	}

	if err := Validate(cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the credential and name contracts.
func Validate(cfg HostConfig) error {
	if n := len(cfg.Name); n < 1 || n > 20 {
		return fmt.Errorf("config: name must be 1..20 bytes, got %d", n)
	}
	if !authCodeRe.MatchString(cfg.Code) {
		return fmt.Errorf("config: code must match [A-Z0-9]{6}, got %q", cfg.Code)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Connection)) {
	case "auto", "wifi", "usb", "ble":
	default:
		return fmt.Errorf("config: unknown connection %q", cfg.Connection)
	}
	return nil
}

// GenerateCredentials produces a random peripheral name like
// "voodooXX" and a 6-char auth code.
func GenerateCredentials() (name, code string) {
	return "voodoo" + randomChars(2), randomChars(6)
}

func randomChars(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(credentialSet[rand.Intn(len(credentialSet))])
	}
	return b.String()
}
