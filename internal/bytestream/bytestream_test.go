package bytestream

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/autotestd/autotestd/internal/consoleerr"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	s := New(local)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		remote.Write(buf[:n])
	}()

	if err := s.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := s.Read(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestReadReturnsNilOnDeadlineWithoutError(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(local)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := s.Read(ctx, time.Now().Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("expected no error on deadline expiry, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil slice on deadline expiry, got %q", got)
	}
}

func TestHistoryMonotonicity(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(local)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		remote.Write([]byte("AAAA"))
		time.Sleep(20 * time.Millisecond)
		remote.Write([]byte("BBBB"))
	}()

	time.Sleep(50 * time.Millisecond)
	first, err := s.DumpHistory(ctx)
	if err != nil {
		t.Fatalf("dump 1: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	second, err := s.DumpHistory(ctx)
	if err != nil {
		t.Fatalf("dump 2: %v", err)
	}

	if !bytes.HasPrefix(second, first) {
		t.Fatalf("second dump %q is not an extension of first %q", second, first)
	}
}

func TestStopCausesServerStopped(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(local)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	_, werr := s.DumpHistory(ctx)
	if !consoleerr.Is(werr, consoleerr.ServerStopped) {
		t.Fatalf("expected ServerStopped after Stop, got %v", werr)
	}
}

func TestConnectionLossSurfacesConsoleError(t *testing.T) {
	local, remote := net.Pipe()
	s := New(local)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	remote.Close()
	local.Close()

	// Give the reader goroutine a moment to observe the closed pipe.
	time.Sleep(50 * time.Millisecond)

	_, err := s.DumpHistory(ctx)
	if err == nil {
		t.Fatal("expected an error after connection loss")
	}
}
