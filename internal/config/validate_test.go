package config

import (
	"strings"
	"testing"
)

func TestFromTOMLValidSSHOnly(t *testing.T) {
	cfg, err := FromTOML(`
[ssh]
host = "10.0.0.5"
username = "root"
password = "secret"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SSH.Port != 22 {
		t.Fatalf("expected default port 22, got %d", cfg.SSH.Port)
	}
	if cfg.SSH.TimeoutSeconds != 10 {
		t.Fatalf("expected default timeout 10, got %d", cfg.SSH.TimeoutSeconds)
	}
}

func TestFromTOMLSSHMissingHostIsFatal(t *testing.T) {
	_, err := FromTOML(`
[ssh]
username = "root"
password = "secret"
`)
	if err == nil {
		t.Fatal("expected error for missing ssh.host")
	}
	if !strings.Contains(err.Error(), "ssh.host") {
		t.Fatalf("expected ssh.host in error, got: %v", err)
	}
}

func TestFromTOMLSSHBothAuthMethodsIsFatal(t *testing.T) {
	_, err := FromTOML(`
[ssh]
host = "10.0.0.5"
username = "root"
password = "secret"
private_key_path = "/home/root/.ssh/id_ed25519"
`)
	if err == nil {
		t.Fatal("expected error for ambiguous ssh auth")
	}
}

func TestFromTOMLSerialDefaultsBaudRate(t *testing.T) {
	cfg, err := FromTOML(`
[serial]
device = "/dev/ttyUSB0"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Fatalf("expected default baud rate 115200, got %d", cfg.Serial.BaudRate)
	}
}

func TestFromTOMLSerialAutoLoginRequiresUsername(t *testing.T) {
	_, err := FromTOML(`
[serial]
device = "/dev/ttyUSB0"
auto_login = true
`)
	if err == nil {
		t.Fatal("expected error for auto_login without username")
	}
}

func TestFromTOMLVNCDefaultsPort(t *testing.T) {
	cfg, err := FromTOML(`
[vnc]
host = "10.0.0.5"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VNC.Port != 5900 {
		t.Fatalf("expected default vnc port 5900, got %d", cfg.VNC.Port)
	}
}

func TestFromTOMLEmptyConfigHasNoConsolesWarningButNotFatal(t *testing.T) {
	cfg, err := FromTOML(`log_dir = "/var/log/autotestd"`)
	if err != nil {
		t.Fatalf("empty console config should not be fatal: %v", err)
	}
	result := cfg.Validate()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning about no consoles configured")
	}
}

func TestFromTOMLAllThreeConsoles(t *testing.T) {
	cfg, err := FromTOML(`
log_dir = "/var/log/autotestd"

[env]
TERM = "xterm"

[ssh]
host = "10.0.0.5"
username = "root"
password = "secret"

[serial]
device = "/dev/ttyUSB0"

[vnc]
host = "10.0.0.5"
needle_dir = "/etc/autotestd/needles"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env["TERM"] != "xterm" {
		t.Fatalf("expected env TERM=xterm, got %q", cfg.Env["TERM"])
	}
	if cfg.LogDir != "/var/log/autotestd" {
		t.Fatalf("unexpected log_dir: %q", cfg.LogDir)
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	result := ValidationResult{}
	result.Fatals = append(result.Fatals, errFatal("fatal one"))
	result.Warnings = append(result.Warnings, errFatal("warn one"))
	all := result.AllErrors()
	if len(all) != 2 {
		t.Fatalf("expected 2 combined errors, got %d", len(all))
	}
}

type errFatal string

func (e errFatal) Error() string { return string(e) }
