package config

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telehost.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
name = "myvoodoo"
code = "ABC123"
connection = "usb"
tcp_port = 50010
beacon_port = 50011
status_addr = "127.0.0.1:9100"
initial_config = "{}"
quiet = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "myvoodoo" || cfg.Code != "ABC123" || cfg.Connection != "usb" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.TCPPort != 50010 || cfg.BeaconPort != 50011 {
		t.Fatalf("ports: %+v", cfg)
	}
	if !cfg.Quiet || cfg.StatusAddr != "127.0.0.1:9100" || cfg.InitialConfig != "{}" {
		t.Fatalf("extras: %+v", cfg)
	}
}

func TestLoadGeneratesMissingCredentials(t *testing.T) {
	path := writeConfig(t, `connection = "wifi"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !regexp.MustCompile(`^voodoo[A-Z0-9]{2}$`).MatchString(cfg.Name) {
		t.Fatalf("generated name %q", cfg.Name)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(cfg.Code) {
		t.Fatalf("generated code %q", cfg.Code)
	}
	if cfg.TCPPort != DefaultTCPPort || cfg.BeaconPort != DefaultBeaconPort {
		t.Fatalf("default ports: %+v", cfg)
	}
}

func TestLoadRejectsBadCode(t *testing.T) {
	path := writeConfig(t, `
name = "myvoodoo"
code = "abc"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for short lowercase code")
	}
}

func TestLoadRejectsLongName(t *testing.T) {
	path := writeConfig(t, `
name = "123456789012345678901"
code = "ABC123"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for 21-byte name")
	}
}

func TestLoadRejectsUnknownConnection(t *testing.T) {
	path := writeConfig(t, `
name = "myvoodoo"
code = "ABC123"
connection = "serial"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown connection")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGenerateCredentialsShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		name, code := GenerateCredentials()
		if len(name) != 8 || name[:6] != "voodoo" {
			t.Fatalf("name %q", name)
		}
		if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(code) {
			t.Fatalf("code %q", code)
		}
	}
}
