// Package consoleerr defines the error taxonomy shared by every console and
// by the coordinator. Kinds are compared with errors.Is, not type assertions,
// so wrapping (fmt.Errorf("%w", ...)) composes normally.
package consoleerr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure. It is never the whole story — pair
// it with a message via New or wrap an underlying error via Wrap.
type Kind int

const (
	// ServerStopped means the coordinator or an owned session has been shut down.
	ServerStopped Kind = iota
	// ServerInvalidResponse means an unexpected response variant arrived (bug indicator).
	ServerInvalidResponse
	// Timeout means a request's deadline elapsed before satisfaction.
	Timeout
	// AssertFailed means a screen-check or script-run exit-code assertion did not hold.
	AssertFailed
	// NoConnection means the targeted sub-component is unconfigured or currently disconnected.
	NoConnection
	// ConsoleError means an I/O failure in a specific console (connection broken,
	// handshake failure, authentication failure, protocol error).
	ConsoleError
	// ConfigInvalid means a reconfiguration request was rejected.
	ConfigInvalid
	// Other is a free-form terminal descriptive error, used sparingly.
	Other
)

func (k Kind) String() string {
	switch k {
	case ServerStopped:
		return "ServerStopped"
	case ServerInvalidResponse:
		return "ServerInvalidResponse"
	case Timeout:
		return "Timeout"
	case AssertFailed:
		return "AssertFailed"
	case NoConnection:
		return "NoConnection"
	case ConsoleError:
		return "ConsoleError"
	case ConfigInvalid:
		return "ConfigInvalid"
	default:
		return "Other"
	}
}

// Error is the concrete error type carrying a Kind, a message, an optional
// console sub-reason (only meaningful for ConsoleError), and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Console string // sub-reason for ConsoleError, e.g. "handshake", "auth", "protocol"
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ConsoleError && e.Console != "":
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Console, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Console, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, consoleerr.New(Timeout, "")) match any *Error of
// the same Kind, ignoring Message/Console/Cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WrapConsole constructs a ConsoleError for a specific console sub-reason
// (e.g. "connection broken", "handshake failure", "authentication failure",
// "protocol error").
func WrapConsole(console, message string, cause error) *Error {
	return &Error{Kind: ConsoleError, Console: console, Message: message, Cause: cause}
}

// Is reports whether err is (or wraps) a consoleerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning (Other, false) if err is not
// a consoleerr.Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Other, false
}
