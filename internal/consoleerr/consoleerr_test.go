package consoleerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindAcrossWrapping(t *testing.T) {
	base := New(Timeout, "deadline elapsed")
	wrapped := fmt.Errorf("exec: %w", base)

	if !Is(wrapped, Timeout) {
		t.Fatal("expected Is to match Timeout through fmt.Errorf wrapping")
	}
	if Is(wrapped, AssertFailed) {
		t.Fatal("did not expect Is to match a different kind")
	}
}

func TestErrorsIsWorksWithSentinelOfSameKind(t *testing.T) {
	err := Wrap(ConsoleError, "connection reset", errors.New("EOF"))
	sentinel := New(ConsoleError, "")

	if !errors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to match same-kind Error values")
	}
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	if ok {
		t.Fatal("expected ok=false for a plain error")
	}
}

func TestConsoleErrorIncludesSubReason(t *testing.T) {
	err := WrapConsole("ssh", "handshake failure", errors.New("EOF"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	kind, ok := KindOf(err)
	if !ok || kind != ConsoleError {
		t.Fatalf("expected ConsoleError kind, got %v (ok=%v)", kind, ok)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(Other, "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
