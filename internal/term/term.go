// Package term implements the two terminal dialects a text console can be
// built on: a full VT-100 screen-model parser (for PTYs that emit full
// cursor control, typically SSH with xterm) and a lighter VT-102
// escape-stripping variant (for serial, where wrapping is less invasive).
//
// Exit-code extraction in textconsole.Console.Exec operates on the decoded
// text these dialects produce, never on raw escape sequences directly — the
// dialect only controls how bytes become searchable text.
package term

import (
	"regexp"
	"strings"

	headlessterm "github.com/danielgatis/go-headless-term"
)

// Dialect turns accumulated raw bytes into searchable text and knows the
// line terminator its remote expects after a transmitted command.
type Dialect interface {
	// Decode renders the full byte window as text.
	Decode(raw []byte) string
	// Enter is the bytes to send after a command to submit it.
	Enter() []byte
	// Linebreak is the line separator this dialect's Decode output uses.
	Linebreak() string
}

const (
	vt100Rows  = 24
	vt100Cols  = 80
	vt100Enter = "\n"

	vt102Enter = "\r\n"
)

// VT100 feeds bytes through a stateful full-screen parser and reports the
// screen's rendered contents, 80x24. Grounded on term.rs's vt100::Parser
// wrapper; here backed by github.com/danielgatis/go-headless-term.
type VT100 struct {
	term *headlessterm.Terminal
}

// NewVT100 constructs a fresh 80x24 screen-model dialect.
func NewVT100() *VT100 {
	return &VT100{term: headlessterm.New(headlessterm.WithSize(vt100Rows, vt100Cols))}
}

func (v *VT100) Decode(raw []byte) string {
	// The parser is stateful and cursor-addressed: feed it the whole window
	// from scratch each time into a freshly constructed terminal, since Decode is
	// always called against the full search window, never incrementally.
	v.term = headlessterm.New(headlessterm.WithSize(vt100Rows, vt100Cols))
	v.term.Write(raw)

	var b strings.Builder
	rows := v.term.Rows()
	cols := v.term.Cols()
	for row := 0; row < rows; row++ {
		line := make([]rune, 0, cols)
		for col := 0; col < cols; col++ {
			cell := v.term.Cell(row, col)
			if cell == nil || cell.Char == 0 {
				line = append(line, ' ')
				continue
			}
			line = append(line, cell.Char)
		}
		b.WriteString(strings.TrimRight(string(line), " "))
		if row < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (v *VT100) Enter() []byte     { return []byte(vt100Enter) }
func (v *VT100) Linebreak() string { return "\n" }

// vt102Escape strips ESC [ ? params letter, optionally followed by a CRLF,
// matching the original's regex dialect exactly.
var vt102Escape = regexp.MustCompile(`\x1b\[\??([\d]+(;)?)+[lhmk](\r\n)?`)

// VT102 is a lighter escape-stripping variant: decode is just regex removal
// of cursor/mode control sequences, leaving printable text (and any CRs/LFs
// the remote actually sent) intact. Used for serial where a full screen
// model is unnecessary overhead.
type VT102 struct{}

// NewVT102 constructs the stateless VT102 dialect.
func NewVT102() *VT102 { return &VT102{} }

func (VT102) Decode(raw []byte) string {
	return vt102Escape.ReplaceAllString(string(raw), "")
}

func (VT102) Enter() []byte     { return []byte(vt102Enter) }
func (VT102) Linebreak() string { return "\r\n" }
