package consoleutil

import "testing"

func TestCaptureBetweenBasic(t *testing.T) {
	cmd := "whoami\n"
	prompt := "pi@raspberrypi:~$ "
	src := "whoami\npi\npi@raspberrypi:~$ "

	got, ok := CaptureBetween(src, cmd, prompt)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "pi\n" {
		t.Fatalf("got %q, want %q", got, "pi\n")
	}
}

func TestCaptureBetweenEmpty(t *testing.T) {
	cmd := "whoami\n"
	prompt := "pi@raspberrypi:~$ "
	src := "whoami\npi@raspberrypi:~$ "

	got, ok := CaptureBetween(src, cmd, prompt)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestCaptureBetweenEscapesDelimiters(t *testing.T) {
	cmd := "export A=1\n"
	prompt := "pi@raspberrypi:~$ "
	src := "export A=1\npi@raspberrypi:~$ "

	got, ok := CaptureBetween(src, cmd, prompt)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestCaptureBetweenNoMatch(t *testing.T) {
	_, ok := CaptureBetween("no delimiters here", "LEFT", "RIGHT")
	if ok {
		t.Fatal("expected no match")
	}
}
