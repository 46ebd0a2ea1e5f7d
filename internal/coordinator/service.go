package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/needle"
	"github.com/autotestd/autotestd/internal/textconsole"
	"github.com/autotestd/autotestd/internal/vnc"
)

// Service owns the three console slots plus the needle directory, replaced
// atomically on reconfiguration. Grounded on server.rs's Service, but unlike
// the source (which stops the old session before the new one is known to
// connect, orphaning it on failure) this builds every replacement session
// first and only swaps in the new slots once all of them succeed, so a
// partial failure never leaves a stopped-but-still-referenced session
// behind.
type Service struct {
	enableScreenshot bool
	screenshots      chan<- vnc.ScreenshotLog

	reconfigureMu sync.Mutex

	cfg     atomic.Pointer[config.Config]
	ssh     atomic.Pointer[textconsole.SSHConsole]
	serial  atomic.Pointer[textconsole.SerialConsole]
	vnc     atomic.Pointer[vnc.Client]
	needles atomic.Pointer[needle.Manager]
}

func newService(enableScreenshot bool, screenshots chan<- vnc.ScreenshotLog) *Service {
	s := &Service{enableScreenshot: enableScreenshot, screenshots: screenshots}
	s.needles.Store(needle.NewManager("."))
	return s
}

// connectWithConfig stops the sessions no longer wanted and atomically
// replaces every slot with a freshly built session for the new config. If
// any new session fails to connect, every session built so far in this call
// is stopped and the old slots are left untouched.
func (s *Service) connectWithConfig(ctx context.Context, cfg *config.Config) error {
	s.reconfigureMu.Lock()
	defer s.reconfigureMu.Unlock()

	var newSerial *textconsole.SerialConsole
	var newSSH *textconsole.SSHConsole
	var newVNC *vnc.Client
	var err error

	if cfg.Serial != nil {
		newSerial, err = textconsole.DialSerial(ctx, cfg.Serial)
		if err != nil {
			return consoleerr.WrapConsole("serial", "connect failed", err)
		}
	}

	if cfg.SSH != nil {
		newSSH, err = textconsole.DialSSH(cfg.SSH)
		if err != nil {
			if newSerial != nil {
				newSerial.Stop(ctx)
			}
			return consoleerr.WrapConsole("ssh", "connect failed", err)
		}
	}

	if cfg.VNC != nil {
		newVNC, err = vnc.Dial(cfg.VNC, s.screenshots)
		if err != nil {
			if newSerial != nil {
				newSerial.Stop(ctx)
			}
			if newSSH != nil {
				newSSH.Stop(ctx)
			}
			return consoleerr.WrapConsole("vnc", "connect failed", err)
		}
	}

	if old := s.serial.Swap(newSerial); old != nil {
		old.Stop(ctx)
	}
	if old := s.ssh.Swap(newSSH); old != nil {
		old.Stop(ctx)
	}
	if old := s.vnc.Swap(newVNC); old != nil {
		old.Stop(ctx)
	}

	needleDir := "."
	if cfg.VNC != nil && cfg.VNC.NeedleDir != "" {
		needleDir = cfg.VNC.NeedleDir
	}
	s.needles.Store(needle.NewManager(needleDir))
	s.cfg.Store(cfg)

	log.Info("reconfigured",
		"serial", newSerial != nil, "ssh", newSSH != nil, "vnc", newVNC != nil, "needleDir", needleDir)
	return nil
}

// stopAll stops every owned session, used on coordinator shutdown.
func (s *Service) stopAll(ctx context.Context) {
	if c := s.serial.Load(); c != nil {
		c.Stop(ctx)
	}
	if c := s.ssh.Load(); c != nil {
		c.Stop(ctx)
	}
	if c := s.vnc.Load(); c != nil {
		c.Stop(ctx)
	}
}

func (s *Service) getConfigValue(key string) Response {
	cfg := s.cfg.Load()
	if cfg == nil || cfg.Env == nil {
		return ConfigValue{Ok: false}
	}
	v, ok := cfg.Env[key]
	return ConfigValue{Value: v, Ok: ok}
}

// selectConsole implements the console-selection table: an explicit tag
// wins when that console exists; otherwise prefer serial, fall back to ssh.
func (s *Service) selectConsole(tag TextConsole) (*textconsole.Console, string, error) {
	ssh := s.ssh.Load()
	serial := s.serial.Load()

	if tag == ConsoleSerial && serial != nil {
		return serial.Console, "serial", nil
	}
	if tag == ConsoleSSH && ssh != nil {
		return ssh.Console, "ssh", nil
	}
	if serial != nil {
		return serial.Console, "serial", nil
	}
	if ssh != nil {
		return ssh.Console, "ssh", nil
	}
	return nil, "", consoleerr.New(consoleerr.NoConnection, "no console supported")
}
