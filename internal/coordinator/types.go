// Package coordinator implements the public face of the core: a single
// request-dispatching actor that owns the three console sessions (serial,
// SSH, VNC) plus the needle directory, and turns typed requests into calls
// against the right sub-component. Grounded on t-runner/src/server.rs's
// Server/Service pair.
package coordinator

import (
	"time"

	"github.com/autotestd/autotestd/internal/pixbuf"
)

// TextConsole selects which text console a request targets. The zero value
// (Unspecified) lets the coordinator apply its serial-first selection rule.
type TextConsole int

const (
	ConsoleUnspecified TextConsole = iota
	ConsoleSerial
	ConsoleSSH
)

func (t TextConsole) String() string {
	switch t {
	case ConsoleSerial:
		return "serial"
	case ConsoleSSH:
		return "ssh"
	default:
		return "unspecified"
	}
}

// Mouse button masks, matching the RFB PointerEvent bit layout: bit 0 is the
// left button, bit 2 is the right button.
const (
	mouseButtonLeft  byte = 1
	mouseButtonRight byte = 1 << 2
)

// Request is the tagged union of operations the coordinator accepts. Each
// concrete type below is one variant.
type Request interface{ isRequest() }

// GetConfigValue looks up a key in the active config's env map.
type GetConfigValue struct{ Key string }

// SetConfig decodes toml and atomically reconnects the console slots to it.
type SetConfig struct{ TOML string }

// ScriptRun runs cmd through the selected text console's shared shell.
type ScriptRun struct {
	Console TextConsole
	Cmd     string
	Timeout time.Duration
}

// WriteString writes raw bytes (no implied enter key) to the selected console.
type WriteString struct {
	Console TextConsole
	Bytes   []byte
	Timeout time.Duration
}

// WaitString blocks until substring has appeared at least n times.
type WaitString struct {
	Console   TextConsole
	Substring string
	N         int
	Timeout   time.Duration
}

// DumpHistory returns the selected console's entire accumulated, dialect-
// decoded byte history, matching BEL's DumpHistory request (spec §4.1).
type DumpHistory struct{ Console TextConsole }

// SSHExecSeparate runs cmd on a dedicated SSH exec channel, independent of
// the persistent interactive shell.
type SSHExecSeparate struct {
	Cmd     string
	Timeout time.Duration
}

// TakeScreenshot forwards the current frame to the configured screenshot
// sink under name, then replies once persistence completes.
type TakeScreenshot struct{ Name string }

// GetScreenshot returns the latest frame from the VNC mirror's deque.
type GetScreenshot struct{}

// Refresh requests a full non-incremental framebuffer update.
type Refresh struct{}

// CheckScreen polls the live framebuffer against a needle until it matches
// or the deadline passes, optionally moving and/or clicking a hot-spot.
type CheckScreen struct {
	Tag       string
	Threshold float64
	Timeout   time.Duration
	Click     bool
	Move      bool
	Delay     time.Duration
}

type MouseMove struct{ X, Y int }
type MouseDrag struct{ X, Y int }
type MouseHide struct{}
type MouseClick struct{}
type MouseRClick struct{}
type MouseKeyDown struct{ Down bool }
type SendKey struct{ Keys string }
type TypeString struct{ Text string }

func (GetConfigValue) isRequest()  {}
func (SetConfig) isRequest()       {}
func (ScriptRun) isRequest()       {}
func (WriteString) isRequest()     {}
func (WaitString) isRequest()      {}
func (DumpHistory) isRequest()     {}
func (SSHExecSeparate) isRequest() {}
func (TakeScreenshot) isRequest()  {}
func (GetScreenshot) isRequest()   {}
func (Refresh) isRequest()         {}
func (CheckScreen) isRequest()     {}
func (MouseMove) isRequest()       {}
func (MouseDrag) isRequest()       {}
func (MouseHide) isRequest()       {}
func (MouseClick) isRequest()      {}
func (MouseRClick) isRequest()     {}
func (MouseKeyDown) isRequest()    {}
func (SendKey) isRequest()         {}
func (TypeString) isRequest()      {}

// Response is the tagged union of successful results. Failures are returned
// as a plain error (a *consoleerr.Error) rather than an Error variant.
type Response interface{ isResponse() }

type Done struct{}
type ConfigValue struct {
	Value string
	Ok    bool
}
type ScriptRunResult struct {
	Code  int
	Value string
}
type Screenshot struct{ Buffer *pixbuf.Buffer }
type HistoryDump struct{ Text string }

func (Done) isResponse()            {}
func (ConfigValue) isResponse()     {}
func (ScriptRunResult) isResponse() {}
func (Screenshot) isResponse()      {}
func (HistoryDump) isResponse()     {}
