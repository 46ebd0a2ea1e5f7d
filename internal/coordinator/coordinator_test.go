package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/autotestd/autotestd/internal/consoleerr"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	co, err := New(ctx, nil, false, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		co.Stop(ctx)
	})
	return co
}

func TestGetConfigValueBeforeSetConfigReturnsNotOk(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := co.Do(ctx, GetConfigValue{Key: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cv, ok := res.(ConfigValue)
	if !ok || cv.Ok {
		t.Fatalf("expected ConfigValue{Ok:false}, got %#v", res)
	}
}

func TestSetConfigRejectsInvalidTOML(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, SetConfig{TOML: "not valid toml :::: ["})
	if !consoleerr.Is(err, consoleerr.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestSetConfigAndGetConfigValueRoundTrip(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	toml := "[env]\nfoo = \"bar\"\n"
	if _, err := co.Do(ctx, SetConfig{TOML: toml}); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}

	res, err := co.Do(ctx, GetConfigValue{Key: "foo"})
	if err != nil {
		t.Fatalf("GetConfigValue failed: %v", err)
	}
	cv, ok := res.(ConfigValue)
	if !ok || !cv.Ok || cv.Value != "bar" {
		t.Fatalf("expected ConfigValue{bar,true}, got %#v", res)
	}
}

func TestScriptRunErrorsWithNoConsoleConfigured(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, ScriptRun{Cmd: "echo hi", Timeout: time.Second})
	if !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection, got %v", err)
	}
}

func TestDumpHistoryErrorsWithNoConsoleConfigured(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, DumpHistory{})
	if !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection, got %v", err)
	}
}

func TestSSHExecSeparateErrorsWithNoSSHConfigured(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, SSHExecSeparate{Cmd: "echo hi", Timeout: time.Second})
	if !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection, got %v", err)
	}
}

func TestMouseMoveErrorsWithNoVNCConfigured(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, MouseMove{X: 1, Y: 1})
	if !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection, got %v", err)
	}
}

func TestCheckScreenErrorsWithNoVNCConfigured(t *testing.T) {
	co := newTestCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := co.Do(ctx, CheckScreen{Tag: "anything", Threshold: 0.99, Timeout: time.Second})
	if !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection, got %v", err)
	}
}

func TestDoReturnsServerStoppedAfterStop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	co, err := New(ctx, nil, false, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := co.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	doCtx, doCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer doCancel()
	_, err = co.Do(doCtx, GetConfigValue{Key: "x"})
	if !consoleerr.Is(err, consoleerr.ServerStopped) {
		t.Fatalf("expected ServerStopped, got %v", err)
	}
}

func TestSelectConsoleWithNothingConfiguredReturnsNoConnection(t *testing.T) {
	svc := newService(false, nil)

	if _, _, err := svc.selectConsole(ConsoleUnspecified); !consoleerr.Is(err, consoleerr.NoConnection) {
		t.Fatalf("expected NoConnection with nothing configured, got %v", err)
	}
}

func TestTextConsoleStringValues(t *testing.T) {
	cases := map[TextConsole]string{
		ConsoleUnspecified: "unspecified",
		ConsoleSerial:      "serial",
		ConsoleSSH:         "ssh",
	}
	for tag, want := range cases {
		if got := tag.String(); got != want {
			t.Fatalf("TextConsole(%d).String() = %q, want %q", tag, got, want)
		}
	}
}
