package vnc

import (
	"context"
	"sync"
	"time"

	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/logging"
	"github.com/autotestd/autotestd/internal/pixbuf"
)

var log = logging.L("vnc")

// frameBudget is the owner loop's per-tick time budget (~60 Hz), matching
// vnc.rs's FRAME_MS constant.
const frameBudget = time.Second / 60

// ScreenshotLog is forwarded to an optional sink when TakeScreenshot is
// asked to persist a frame; DoneCh is closed once persistence completes (or
// is abandoned). TakeScreenshot waits for DoneCh on the owner goroutine, so
// the owner loop serves no other request until the sink closes it.
type ScreenshotLog struct {
	Screen *pixbuf.Buffer
	Name   string
	Span   string
	DoneCh chan struct{}
}

// Client is a VNC console: a single goroutine owning one RFB connection,
// a mirrored framebuffer, and a bounded screenshot history, grounded on
// vnc.rs's VNC/VncClientInner split.
type Client struct {
	reqCh   chan clientRequest
	stopCh  chan chan struct{}
	closeWG sync.WaitGroup
}

type clientRequest struct {
	op    func(*clientInner) (Response, error)
	reply chan clientReply
}

type clientReply struct {
	res Response
	err error
}

// Response is what a request against the VNC console resolves to.
type Response interface{ isResponse() }

type Done struct{}
type Screen struct{ Buffer *pixbuf.Buffer }

func (Done) isResponse()   {}
func (Screen) isResponse() {}

// Dial opens the RFB connection and starts the owner goroutine. Subsequent
// reconnects are handled internally by the owner loop using the same
// address/password.
func Dial(cfg *config.VNCConfig, screenshots chan<- ScreenshotLog) (*Client, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, consoleerr.New(consoleerr.ConfigInvalid, "vnc host not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 5900
	}
	addr := netJoin(cfg.Host, port)

	conn, err := dialRFB(addr, cfg.Password)
	if err != nil {
		return nil, err
	}

	c := &Client{
		reqCh:  make(chan clientRequest),
		stopCh: make(chan chan struct{}),
	}

	inner := &clientInner{
		addr:        addr,
		password:    cfg.Password,
		conn:        conn,
		reqCh:       c.reqCh,
		stopCh:      c.stopCh,
		screenshots: screenshots,
	}

	c.closeWG.Add(1)
	go func() {
		defer c.closeWG.Done()
		inner.run()
	}()

	return c, nil
}

// Stop signals the owner loop to exit, closing its connection, and waits
// for it to finish.
func (c *Client) Stop(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.stopCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.closeWG.Wait()
	return nil
}

func (c *Client) request(ctx context.Context, op func(*clientInner) (Response, error)) (Response, error) {
	reply := make(chan clientReply, 1)
	select {
	case c.reqCh <- clientRequest{op: op, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TypeString presses and releases each ASCII byte of s in order.
func (c *Client) TypeString(ctx context.Context, s string) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.typeString(s) })
}

// SendKey presses every keysym in order, then releases them in reverse.
func (c *Client) SendKey(ctx context.Context, keysyms []uint32) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.sendKey(keysyms) })
}

func (c *Client) MouseMove(ctx context.Context, x, y int) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.mouseMove(x, y) })
}

func (c *Client) MouseDrag(ctx context.Context, x, y int) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.mouseDrag(x, y) })
}

func (c *Client) MouseDown(ctx context.Context, button byte) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.mouseDown(button) })
}

func (c *Client) MouseUp(ctx context.Context, button byte) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.mouseUp(button) })
}

func (c *Client) MouseClick(ctx context.Context, button byte) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) {
		if _, err := st.mouseDown(button); err != nil {
			return nil, err
		}
		return st.mouseUp(button)
	})
}

func (c *Client) MouseHide(ctx context.Context) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.mouseHide() })
}

func (c *Client) GetScreenshot(ctx context.Context) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.getScreenshot() })
}

func (c *Client) TakeScreenshot(ctx context.Context, name, span string) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.takeScreenshot(name, span) })
}

func (c *Client) Refresh(ctx context.Context) (Response, error) {
	return c.request(ctx, func(st *clientInner) (Response, error) { return st.refresh() })
}
