// Package config holds the shape of configuration the coordinator consumes.
// Parsing a config file from disk and wiring it to a CLI is an external
// collaborator's job; this package only decodes an already-produced TOML
// string (as arrives on a SetConfig request) into a validated value.
package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Config mirrors the external configuration contract: optional ssh, serial,
// and vnc console sections, a log directory, and an environment map threaded
// through to consoles that spawn a login shell.
type Config struct {
	SSH    *SSHConfig    `toml:"ssh"`
	Serial *SerialConfig `toml:"serial"`
	VNC    *VNCConfig    `toml:"vnc"`

	LogDir string            `toml:"log_dir"`
	Env    map[string]string `toml:"env"`
}

// SSHConfig describes how to reach an interactive SSH shell. Auth is either
// a private key path or a password, never both.
type SSHConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	PrivateKeyPath string `toml:"private_key_path"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	LogPath        string `toml:"log_path"`
}

// SerialConfig describes a local serial device and optional auto-login.
type SerialConfig struct {
	Device    string `toml:"device"`
	BaudRate  int    `toml:"baud_rate"`
	AutoLogin bool   `toml:"auto_login"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	LogPath   string `toml:"log_path"`
}

// VNCConfig describes the RFB endpoint and optional needle/screenshot dirs.
type VNCConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Password      string `toml:"password"`
	NeedleDir     string `toml:"needle_dir"`
	ScreenshotDir string `toml:"screenshot_dir"`
}

// FromTOML decodes and validates a raw config string, the payload carried on
// a coordinator SetConfig request.
func FromTOML(s string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	result := cfg.Validate()
	if result.HasFatals() {
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return &cfg, nil
}
