package config

import (
	"fmt"
)

// ValidationResult separates fatal problems (config rejected outright) from
// warnings (auto-corrected in place; the config is still accepted). Nothing
// in this package logs them.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors concatenates fatals and warnings for display.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// Validate checks the decoded config. Missing required fields inside a
// configured section are fatal; out-of-range numeric fields are clamped to a
// safe default and reported as warnings.
func (c *Config) Validate() ValidationResult {
	var r ValidationResult

	if c.SSH == nil && c.Serial == nil && c.VNC == nil {
		r.Warnings = append(r.Warnings, fmt.Errorf("no console configured (ssh, serial, vnc all absent)"))
	}

	if c.SSH != nil {
		r.validateSSH(c.SSH)
	}
	if c.Serial != nil {
		r.validateSerial(c.Serial)
	}
	if c.VNC != nil {
		r.validateVNC(c.VNC)
	}

	return r
}

func (r *ValidationResult) validateSSH(s *SSHConfig) {
	if s.Host == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("ssh.host is required"))
	}
	if s.Username == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("ssh.username is required"))
	}
	if s.PrivateKeyPath == "" && s.Password == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("ssh requires private_key_path or password"))
	}
	if s.PrivateKeyPath != "" && s.Password != "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("ssh accepts only one of private_key_path or password"))
	}

	if s.Port <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("ssh.port unset, defaulting to 22"))
		s.Port = 22
	}
	if s.TimeoutSeconds <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("ssh.timeout_seconds unset, defaulting to 10"))
		s.TimeoutSeconds = 10
	}
}

func (r *ValidationResult) validateSerial(s *SerialConfig) {
	if s.Device == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("serial.device is required"))
	}
	if s.BaudRate <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("serial.baud_rate unset, defaulting to 115200"))
		s.BaudRate = 115200
	}
	if s.AutoLogin && s.Username == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("serial.auto_login requires serial.username"))
	}
}

func (r *ValidationResult) validateVNC(v *VNCConfig) {
	if v.Host == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("vnc.host is required"))
	}
	if v.Port <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("vnc.port unset, defaulting to 5900"))
		v.Port = 5900
	}
}
