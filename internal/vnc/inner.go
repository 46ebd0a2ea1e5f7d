package vnc

import (
	"net"
	"strconv"
	"time"

	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/consoleutil"
	"github.com/autotestd/autotestd/internal/pixbuf"
)

const maxScreenshotHistory = 10

// clientInner is the owner goroutine's private state: the live (or absent)
// RFB connection, the mirrored framebuffer and input state, and the bounded
// screenshot deque. Only the goroutine started by Dial ever touches it.
type clientInner struct {
	addr     string
	password string

	conn *rfbConn

	width, height  int
	mouseX, mouseY int
	buttons        byte
	count          int
	format         consoleutil.PixelFormat
	screen         *pixbuf.Buffer
	updatedInFrame bool

	history []*pixbuf.Buffer

	reqCh       chan clientRequest
	stopCh      chan chan struct{}
	screenshots chan<- ScreenshotLog
}

func (ci *clientInner) initFromServer(init serverInit) {
	ci.width, ci.height = init.width, init.height
	ci.mouseX, ci.mouseY = init.width, init.height
	ci.format = init.format
	ci.screen = pixbuf.New(init.width, init.height)
	ci.updatedInFrame = true
	ci.buttons = 0
}

// run is the 16ms-budget event loop: reconnect, request an update, drain
// server events, drain user requests until the budget is spent, then sleep
// to the boundary. Grounded on vnc.rs's VncClientInner::pool.
func (ci *clientInner) run() {
	ci.initFromServer(ci.conn.init)

	for {
		select {
		case done := <-ci.stopCh:
			if ci.conn != nil {
				ci.conn.close()
			}
			close(done)
			return
		default:
		}

		if ci.conn == nil {
			conn, err := dialRFB(ci.addr, ci.password)
			if err == nil {
				ci.conn = conn
				ci.initFromServer(conn.init)
			} else {
				log.Warn("vnc reconnect failed", "error", err)
			}
		}

		if ci.conn != nil {
			if err := ci.conn.requestUpdate(0, 0, ci.width, ci.height, true); err != nil {
				log.Warn("vnc update request failed", "error", err)
				ci.conn.close()
				ci.conn = nil
			}
		}

		deadline := time.Now().Add(frameBudget)

		for ci.conn != nil {
			event, ok := ci.conn.pollEvent(deadline)
			if !ok {
				break
			}
			if err := ci.handleEvent(event); err != nil {
				log.Warn("vnc disconnected", "error", err)
				ci.conn.close()
				ci.conn = nil
				break
			}
		}

	drainRequests:
		for {
			select {
			case req := <-ci.reqCh:
				res, err := req.op(ci)
				req.reply <- clientReply{res: res, err: err}
			default:
				break drainRequests
			}
			if time.Now().After(deadline) {
				break
			}
		}

		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
	}
}

// handleEvent applies one decoded server event to the mirrored state.
func (ci *clientInner) handleEvent(event Event) error {
	switch e := event.(type) {
	case EventDisconnected:
		ci.updatedInFrame = true
		ci.screen.SetZero()
		ci.pushScreenshot()
		return e.Err

	case EventResize:
		log.Info("vnc resize", "width", e.Width, "height", e.Height)
		ci.updatedInFrame = true
		newScreen := pixbuf.New(e.Width, e.Height)
		newScreen.SetRect(0, 0, ci.screen)
		ci.width, ci.height = e.Width, e.Height
		ci.screen = newScreen

	case EventPutPixels:
		if len(e.Pixels) > 0 {
			ci.updatedInFrame = true
		}
		region := pixbuf.NewWithData(e.Rect.Width, e.Rect.Height, e.Pixels)
		ci.screen.SetRect(e.Rect.Left, e.Rect.Top, region)

	case EventCopyPixels:
		if e.Src != e.Dst {
			ci.updatedInFrame = true
		}
		region := pixbuf.NewWithData(e.Dst.Width, e.Dst.Height, ci.screen.GetRect(e.Src))
		ci.screen.SetRect(e.Dst.Left, e.Dst.Top, region)

	case EventEndOfFrame:
		if !ci.updatedInFrame {
			return nil
		}
		ci.count++
		ci.updatedInFrame = false
		ci.pushScreenshot()

	case EventClipboard, EventSetCursor, EventSetColourMap, EventBell:
		ci.updatedInFrame = true
	}
	return nil
}

func (ci *clientInner) pushScreenshot() {
	ci.history = append(ci.history, ci.screen.Clone())
	if len(ci.history) > maxScreenshotHistory {
		ci.history = ci.history[len(ci.history)-maxScreenshotHistory:]
	}
}

func (ci *clientInner) latestScreenshot() *pixbuf.Buffer {
	if len(ci.history) == 0 {
		return nil
	}
	return ci.history[len(ci.history)-1]
}

func (ci *clientInner) typeString(s string) (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return nil, consoleerr.New(consoleerr.ConfigInvalid, "type_string requires ASCII input")
		}
	}
	for i := 0; i < len(s); i++ {
		key := uint32(s[i])
		if err := ci.conn.sendKeyEvent(true, key); err != nil {
			return nil, err
		}
		if err := ci.conn.sendKeyEvent(false, key); err != nil {
			return nil, err
		}
	}
	return Done{}, nil
}

func (ci *clientInner) sendKey(keysyms []uint32) (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	for _, k := range keysyms {
		if err := ci.conn.sendKeyEvent(true, k); err != nil {
			return nil, err
		}
	}
	for i := len(keysyms) - 1; i >= 0; i-- {
		if err := ci.conn.sendKeyEvent(false, keysyms[i]); err != nil {
			return nil, err
		}
	}
	return Done{}, nil
}

func (ci *clientInner) mouseMoved(x, y int) bool {
	return ci.mouseX != x || ci.mouseY != y
}

func (ci *clientInner) mouseMove(x, y int) (Response, error) {
	if !ci.mouseMoved(x, y) {
		return Done{}, nil
	}
	if ci.conn == nil {
		return noConnection()
	}
	if err := ci.conn.sendPointerEvent(ci.buttons, x, y); err != nil {
		return nil, err
	}
	ci.mouseX, ci.mouseY = x, y
	return Done{}, nil
}

// mouseDrag interpolates linearly from the current position to (x,y),
// issuing one pointer event per step and landing exactly on the target.
func (ci *clientInner) mouseDrag(x, y int) (Response, error) {
	if !ci.mouseMoved(x, y) {
		return Done{}, nil
	}
	startX, startY := ci.mouseX, ci.mouseY
	steps := maxAbs(x-startX, y-startY)
	for i := 1; i < steps; i++ {
		ix := startX + (x-startX)*i/steps
		iy := startY + (y-startY)*i/steps
		if _, err := ci.mouseMove(ix, iy); err != nil {
			return nil, err
		}
	}
	return ci.mouseMove(x, y)
}

func maxAbs(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	if b == 0 {
		return 1
	}
	return b
}

func (ci *clientInner) mouseDown(button byte) (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	newButtons := ci.buttons | button
	if err := ci.conn.sendPointerEvent(newButtons, ci.mouseX, ci.mouseY); err != nil {
		return nil, err
	}
	ci.buttons = newButtons
	return Done{}, nil
}

func (ci *clientInner) mouseUp(button byte) (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	newButtons := ci.buttons &^ button
	if err := ci.conn.sendPointerEvent(newButtons, ci.mouseX, ci.mouseY); err != nil {
		return nil, err
	}
	ci.buttons = newButtons
	return Done{}, nil
}

func (ci *clientInner) mouseHide() (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	if err := ci.conn.sendPointerEvent(ci.buttons, ci.width, ci.height); err != nil {
		return nil, err
	}
	ci.mouseX, ci.mouseY = ci.width, ci.height
	return Done{}, nil
}

func (ci *clientInner) getScreenshot() (Response, error) {
	if s := ci.latestScreenshot(); s != nil {
		return Screen{Buffer: s}, nil
	}
	return noConnection()
}

func (ci *clientInner) takeScreenshot(name, span string) (Response, error) {
	s := ci.latestScreenshot()
	if s == nil || ci.screenshots == nil {
		return noConnection()
	}
	done := make(chan struct{})
	ci.screenshots <- ScreenshotLog{Screen: s, Name: name, Span: span, DoneCh: done}
	<-done
	return Done{}, nil
}

func (ci *clientInner) refresh() (Response, error) {
	if ci.conn == nil {
		return noConnection()
	}
	if err := ci.conn.requestUpdate(0, 0, ci.width, ci.height, false); err != nil {
		return nil, err
	}
	return Done{}, nil
}

func noConnection() (Response, error) {
	return nil, consoleerr.New(consoleerr.NoConnection, "vnc connection not established")
}

func netJoin(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
