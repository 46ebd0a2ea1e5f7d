// Package bytestream implements the byte-stream event loop: a single
// goroutine owning one bidirectional byte stream (a serial port or an SSH
// shell channel), accumulating everything the stream produces into an
// append-only history and answering Write/Read/Dump/Stop requests over a
// request channel.
//
// The underlying stream's own blocking Read is driven from a dedicated
// reader goroutine that only ever forwards chunks (or a terminal error) to
// the owner; the owner goroutine is the sole writer of the history buffer,
// which keeps the ordering and monotonicity guarantees of the original
// non-blocking-poll design without needing a non-blocking read primitive
// from every transport (tarm/serial read-deadlines and
// golang.org/x/crypto/ssh's Channel, which has none, both fit this shape).
package bytestream

import (
	"context"
	"io"
	"time"

	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/logging"
)

var log = logging.L("bytestream")

// pollInterval bounds how often the owner re-checks history/deadline while
// servicing a Read that found nothing yet. Spec: wake interval >= 1ms, <= 1s.
const pollInterval = 50 * time.Millisecond

const scratchSize = 4096

type opKind int

const (
	opWrite opKind = iota
	opRead
	opDump
	opStop
)

type request struct {
	kind        opKind
	data        []byte
	deadline    time.Time
	hasDeadline bool
	reply       chan response
}

type response struct {
	value []byte
	err   error
}

// Stream owns one bidirectional byte connection. Zero value is not usable;
// construct with New.
type Stream struct {
	rw io.ReadWriter

	reqCh chan request

	readCh chan []byte
	errCh  chan error
	doneCh chan struct{} // closed once the owner goroutine exits

	stopped chan struct{} // closed by Stop to signal the reader goroutine
}

// New starts the owner and reader goroutines over rw and returns a handle.
// rw is never read from or written to outside these goroutines. If rw also
// implements io.Closer, Stop closes it to unblock a reader goroutine parked
// in a blocking Read.
func New(rw io.ReadWriter) *Stream {
	s := &Stream{
		rw:      rw,
		reqCh:   make(chan request),
		readCh:  make(chan []byte, 16),
		errCh:   make(chan error, 1),
		doneCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.readLoop(rw)
	go s.run(rw)
	return s
}

func (s *Stream) readLoop(r io.Reader) {
	buf := make([]byte, scratchSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.readCh <- chunk:
			case <-s.stopped:
				return
			}
		}
		if err != nil {
			select {
			case s.errCh <- err:
			case <-s.stopped:
			}
			return
		}
	}
}

func (s *Stream) run(w io.Writer) {
	defer close(s.doneCh)

	var history []byte
	var lastReadCursor int
	var ioErr error

	fail := func(req request, err error) {
		if req.reply != nil {
			req.reply <- response{err: err}
		}
	}

	for {
		if ioErr != nil {
			// Terminal: drain remaining requests with ServerStopped and exit.
			select {
			case req := <-s.reqCh:
				fail(req, consoleerr.Wrap(consoleerr.ServerStopped, "bytestream worker has exited", ioErr))
				if req.kind == opStop {
					return
				}
				continue
			default:
				return
			}
		}

		select {
		case chunk := <-s.readCh:
			history = append(history, chunk...)

		case err := <-s.errCh:
			log.Warn("stream closed", "error", err)
			ioErr = err

		case req := <-s.reqCh:
			switch req.kind {
			case opWrite:
				if _, err := w.Write(req.data); err != nil {
					ioErr = err
					fail(req, consoleerr.WrapConsole("bytestream", "write failed", err))
					continue
				}
				req.reply <- response{}

			case opRead:
				value, readErr := s.serviceRead(req, &history, &lastReadCursor, &ioErr)
				req.reply <- response{value: value, err: readErr}
				if ioErr != nil {
					continue
				}

			case opDump:
				cp := make([]byte, len(history))
				copy(cp, history)
				req.reply <- response{value: cp}

			case opStop:
				req.reply <- response{}
				return
			}
		}
	}
}

// serviceRead blocks (within the single owner goroutine, serializing against
// other requests exactly as the spec's single-worker model requires) until
// new bytes are available past lastReadCursor or the deadline passes.
func (s *Stream) serviceRead(req request, history *[]byte, cursor *int, ioErr *error) ([]byte, error) {
	if *cursor < len(*history) {
		out := append([]byte(nil), (*history)[*cursor:]...)
		*cursor = len(*history)
		return out, nil
	}

	var deadlineCh <-chan time.Time
	if req.hasDeadline {
		d := time.Until(req.deadline)
		if d <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadlineCh = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-s.readCh:
			*history = append(*history, chunk...)
			if *cursor < len(*history) {
				out := append([]byte(nil), (*history)[*cursor:]...)
				*cursor = len(*history)
				return out, nil
			}
		case err := <-s.errCh:
			*ioErr = err
			return nil, consoleerr.WrapConsole("bytestream", "stream closed", err)
		case <-deadlineCh:
			return nil, nil
		case <-ticker.C:
			if *cursor < len(*history) {
				out := append([]byte(nil), (*history)[*cursor:]...)
				*cursor = len(*history)
				return out, nil
			}
		}
	}
}

func (s *Stream) send(ctx context.Context, req request) ([]byte, error) {
	req.reply = make(chan response, 1)
	select {
	case s.reqCh <- req:
	case <-s.doneCh:
		return nil, consoleerr.New(consoleerr.ServerStopped, "bytestream worker has exited")
	case <-ctx.Done():
		return nil, consoleerr.Wrap(consoleerr.Timeout, "request not accepted", ctx.Err())
	}

	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-s.doneCh:
		// The worker may have replied just before exiting (opStop does).
		select {
		case res := <-req.reply:
			return res.value, res.err
		default:
		}
		return nil, consoleerr.New(consoleerr.ServerStopped, "bytestream worker has exited")
	case <-ctx.Done():
		return nil, consoleerr.Wrap(consoleerr.Timeout, "request timed out", ctx.Err())
	}
}

// Write transmits data and waits for the underlying stream to flush it.
func (s *Stream) Write(ctx context.Context, data []byte) error {
	_, err := s.send(ctx, request{kind: opWrite, data: data})
	return err
}

// Read returns H[lastReadCursor:] if non-empty, advancing the cursor;
// otherwise it waits until new bytes arrive or deadline passes. A zero
// deadline means no deadline (wait indefinitely, bounded by ctx). On
// deadline expiry it returns (nil, nil) — not an error, per spec — callers
// treat an empty result as "try again later".
func (s *Stream) Read(ctx context.Context, deadline time.Time) ([]byte, error) {
	req := request{kind: opRead}
	if !deadline.IsZero() {
		req.deadline = deadline
		req.hasDeadline = true
	}
	return s.send(ctx, req)
}

// DumpHistory returns the entire accumulated history.
func (s *Stream) DumpHistory(ctx context.Context) ([]byte, error) {
	return s.send(ctx, request{kind: opDump})
}

// Stop terminates the owner and reader goroutines. Further requests fail
// with ServerStopped.
func (s *Stream) Stop(ctx context.Context) error {
	_, err := s.send(ctx, request{kind: opStop})
	close(s.stopped)
	if closer, ok := s.rw.(io.Closer); ok {
		closer.Close()
	}
	return err
}
