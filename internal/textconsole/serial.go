package textconsole

import (
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/autotestd/autotestd/internal/bytestream"
	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/term"
)

// loginWaitTimeout bounds how long DialSerial waits for a login prompt
// before giving up when auto-login is configured.
const loginWaitTimeout = 30 * time.Second

// ttyDiscoveryTimeout bounds the "tty" exec used to learn the device's own
// path, which is stored on the console as Tty.
const ttyDiscoveryTimeout = 10 * time.Second

// postEOTSettle and postCredentialSettle give a freshly-spawned login shell
// (or the getty responding to EOT) time to print its next prompt before the
// subsequent write lands, mirroring the original's fixed sleeps around
// logout/login.
const (
	postEOTSettle        = 2 * time.Second
	postCredentialSettle = 1 * time.Second
)

// SerialConsole is a Console bound to a local serial device.
type SerialConsole struct {
	*Console
	Tty string
}

// DialSerial opens cfg.Device at cfg.BaudRate, optionally bootstraps a login
// session, and discovers the device's own tty path. Grounded on serial.rs /
// evloop/serial.rs: EOT (0x04) to force a fresh login prompt, wait for
// "login", write username and password lines, then exec("tty") to learn the
// controlling terminal name.
func DialSerial(ctx context.Context, cfg *config.SerialConfig) (*SerialConsole, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, consoleerr.New(consoleerr.ConfigInvalid, "serial device not configured")
	}

	baud := cfg.BaudRate
	if baud == 0 {
		baud = 115200
	}

	port, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: baud})
	if err != nil {
		return nil, consoleerr.WrapConsole("serial", "open failed", err)
	}

	stream := bytestream.New(port)
	console := newConsole("serial", stream, term.NewVT102())
	sc := &SerialConsole{Console: console}

	if cfg.AutoLogin {
		if err := sc.bootstrapLogin(ctx, cfg.Username, cfg.Password); err != nil {
			stream.Stop(ctx)
			return nil, err
		}
	}

	code, tty, err := sc.Exec(ctx, "tty", ttyDiscoveryTimeout)
	if err != nil {
		stream.Stop(ctx)
		return nil, fmt.Errorf("discover serial tty: %w", err)
	}
	if code != 0 {
		stream.Stop(ctx)
		return nil, consoleerr.Newf(consoleerr.ConsoleError, "tty discovery exited %d", code)
	}
	sc.Tty = tty

	return sc, nil
}

func (sc *SerialConsole) bootstrapLogin(ctx context.Context, username, password string) error {
	if err := sc.Write(ctx, []byte{0x04}, 5*time.Second); err != nil {
		return consoleerr.WrapConsole("serial", "logout write failed", err)
	}
	time.Sleep(postEOTSettle)

	if _, err := sc.WaitFor(ctx, "login", 1, loginWaitTimeout); err != nil {
		return fmt.Errorf("wait for login prompt: %w", err)
	}

	if err := sc.WriteString(ctx, username+"\n", 5*time.Second); err != nil {
		return consoleerr.WrapConsole("serial", "username write failed", err)
	}
	time.Sleep(postCredentialSettle)

	if err := sc.WriteString(ctx, password+"\n", 5*time.Second); err != nil {
		return consoleerr.WrapConsole("serial", "password write failed", err)
	}
	time.Sleep(postCredentialSettle)

	return nil
}
