// Package textconsole implements the text console: exec/wait_for/write on
// top of a byte-stream event loop and a terminal dialect. Console is shared
// machinery; Serial and SSH (in serial.go and ssh.go) only differ in how
// they dial and bootstrap a session before handing their stream to it.
package textconsole

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autotestd/autotestd/internal/bytestream"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/consoleutil"
	"github.com/autotestd/autotestd/internal/logging"
	"github.com/autotestd/autotestd/internal/term"
)

var log = logging.L("textconsole")

// promptSettleDelay is slept before every write that expects a response,
// giving a freshly-printed prompt time to appear so the written command
// isn't interleaved with it (and its regex-matched echo broken).
const promptSettleDelay = 70 * time.Millisecond

// pollInterval is how often Console re-polls the underlying stream while
// waiting for a pattern to appear or a deadline to pass.
const pollInterval = 200 * time.Millisecond

// Console drives exec/wait_for/write against a byte-stream event loop,
// decoding accumulated bytes through a terminal dialect. Grounded on
// t-console/src/base/tty.rs's Tty<T: Term>.
//
// opMu serializes Exec/WaitFor/Write against one another: the original
// guards every text-console operation with a session-wide mutex
// (server.rs's Arc<Mutex<Option<_>>>::map_mut), so two concurrent exec/
// write calls against the same session never interleave their writes or
// race on history/lastMatchStart. Without it, the coordinator's worker
// pool (one goroutine per in-flight request) could run two ops against
// the same Console at once.
type Console struct {
	name    string // "serial" or "ssh", used as the ConsoleError sub-reason
	stream  *bytestream.Stream
	dialect term.Dialect

	opMu sync.Mutex

	history        []byte
	lastMatchStart int
}

func newConsole(name string, stream *bytestream.Stream, dialect term.Dialect) *Console {
	return &Console{name: name, stream: stream, dialect: dialect}
}

// Stop tears down the underlying byte stream.
func (c *Console) Stop(ctx context.Context) error {
	return c.stream.Stop(ctx)
}

// Write transmits raw bytes with no trailing enter sequence appended,
// serialized against any other in-flight Exec/WaitFor/Write on this console.
func (c *Console) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.write(ctx, data, timeout)
}

// write is Write's body without locking, for callers (Exec) that already
// hold opMu across a larger sequence of operations.
func (c *Console) write(ctx context.Context, data []byte, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.stream.Write(wctx, data); err != nil {
		if consoleerr.Is(err, consoleerr.Timeout) {
			return err
		}
		return consoleerr.WrapConsole(c.name, "write failed", err)
	}
	return nil
}

// WriteString transmits s as-is (no dialect-specific enter appended; callers
// that want a submitted command should append dialect.Enter() themselves or
// use Exec).
func (c *Console) WriteString(ctx context.Context, s string, timeout time.Duration) error {
	log.Debug("write_string", "s", s)
	return c.Write(ctx, []byte(s), timeout)
}

// consumeUntil polls the stream for new bytes until f reports a value or the
// deadline passes, appending every chunk read to c.history. f sees the
// unconsumed tail of history (from the last consumeUntil cut point) and the
// chunk just appended; it returns (value, true) to stop, or a zero value and
// false to keep waiting.
func (c *Console) consumeUntil(ctx context.Context, deadline time.Time, f func(tail, newChunk []byte) (string, bool)) (string, error) {
	for {
		if time.Now().After(deadline) {
			return "", consoleerr.New(consoleerr.Timeout, "pattern not found before deadline")
		}

		readDeadline := deadline
		if remaining := time.Until(deadline); remaining > pollInterval {
			readDeadline = time.Now().Add(pollInterval)
		}

		chunk, err := c.stream.Read(ctx, readDeadline)
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			continue
		}

		c.history = append(c.history, chunk...)

		tail := c.history[c.lastMatchStart:]
		if v, ok := f(tail, chunk); ok {
			c.lastMatchStart = len(c.history)
			return v, nil
		}
	}
}

// WaitFor blocks until pattern appears in the decoded output at least
// repeat times, returning the decoded text seen so far once it does.
// Grounded on tty.rs's wait_string_ntimes / count_substring.
func (c *Console) WaitFor(ctx context.Context, pattern string, repeat int, timeout time.Duration) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log.Debug("wait_string_ntimes", "pattern", pattern, "repeat", repeat)
	deadline := time.Now().Add(timeout)

	return c.consumeUntil(ctx, deadline, func(tail, _ []byte) (string, bool) {
		decoded := c.dialect.Decode(tail)
		if countSubstring(decoded, pattern) >= repeat {
			return decoded, true
		}
		return "", false
	})
}

func countSubstring(s, substr string) int {
	if substr == "" {
		return 0
	}
	count := 0
	for {
		idx := strings.Index(s, substr)
		if idx < 0 {
			return count
		}
		count++
		s = s[idx+len(substr):]
	}
}

// Exec runs cmd through the remote shell, echoing a 6-character nonce and
// exit status after it so the output and exit code can be recovered by
// capturing between matching delimiters. Grounded on tty.rs's exec: a
// 70ms settle sleep, "<cmd>; echo $?<nonce><enter>" composition, and a
// capture-between-delimiters loop terminated by rsplitting at the last
// linebreak to separate output from exit status.
func (c *Console) Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log.Debug("exec", "cmd", cmd)
	time.Sleep(promptSettleDelay)

	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	full := fmt.Sprintf("%s; echo $?%s%s", cmd, nonce, string(c.dialect.Enter()))

	deadline := time.Now().Add(timeout)
	if err := c.write(ctx, []byte(full), timeout); err != nil {
		return 1, "", err
	}

	lb := c.dialect.Linebreak()
	matchLeft := nonce + lb + string(c.dialect.Enter())
	matchRight := nonce + lb

	result, err := c.consumeUntil(ctx, deadline, func(tail, _ []byte) (string, bool) {
		decoded := c.dialect.Decode(tail)
		captured, ok := consoleutil.CaptureBetween(decoded, matchLeft, matchRight)
		if !ok {
			return "", false
		}
		return captured, true
	})
	if err != nil {
		return 1, "", err
	}

	if res, flag, ok := reverseCut(result, lb); ok {
		if code, perr := strconv.Atoi(flag); perr == nil {
			return code, res, nil
		}
	}
	if code, perr := strconv.Atoi(strings.TrimSpace(result)); perr == nil {
		return code, "", nil
	}
	return 1, result, nil
}

// reverseCut splits s at its last occurrence of sep, returning (before,
// after) — the exec() equivalent of Rust's rsplit_once.
func reverseCut(s, sep string) (string, string, bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

// DecodedHistory returns the entire accumulated history, decoded. Serialized
// against Exec/WaitFor/Write like every other Console operation, so a dump
// never interleaves with an in-flight command's effects.
func (c *Console) DecodedHistory(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	raw, err := c.stream.DumpHistory(ctx)
	if err != nil {
		return "", err
	}
	return c.dialect.Decode(raw), nil
}
