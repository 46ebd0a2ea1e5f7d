package coordinator

import (
	"context"
	"sync"

	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/logging"
	"github.com/autotestd/autotestd/internal/vnc"
	"github.com/autotestd/autotestd/internal/workerpool"
)

var log = logging.L("coordinator")

// dispatchWorkers and dispatchQueueSize bound the short-lived worker pool
// the dispatcher spawns requests onto, so a single slow request cannot
// starve unrelated ones but an unbounded flood of requests still backs up
// somewhere observable instead of spawning unbounded goroutines.
const (
	dispatchWorkers   = 8
	dispatchQueueSize = 64
)

type pendingRequest struct {
	ctx   context.Context
	req   Request
	reply chan requestReply
}

type requestReply struct {
	res Response
	err error
}

// Coordinator is the single request-dispatching actor described by the
// core: one multi-producer request channel, one dispatcher goroutine that
// spawns a short-lived worker per request. Grounded on server.rs's Server.
type Coordinator struct {
	svc   *Service
	reqCh chan pendingRequest
	pool  *workerpool.Pool

	stopCh   chan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a coordinator. If cfg is non-nil, its console sections are
// connected before New returns; a connection failure is returned directly
// rather than leaving the coordinator half-started. screenshots, if
// non-nil, receives every VNC screenshot (debug and user-requested) for an
// external persister to consume.
func New(ctx context.Context, cfg *config.Config, enableScreenshot bool, screenshots chan<- vnc.ScreenshotLog) (*Coordinator, error) {
	svc := newService(enableScreenshot, screenshots)
	if cfg != nil {
		if err := svc.connectWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	co := &Coordinator{
		svc:    svc,
		reqCh:  make(chan pendingRequest, dispatchQueueSize),
		pool:   workerpool.New(dispatchWorkers, dispatchQueueSize),
		stopCh: make(chan chan struct{}),
		done:   make(chan struct{}),
	}
	go co.dispatch()
	return co, nil
}

// Do submits req and waits for its response, honoring ctx's deadline both
// while the request queues and while it executes — the per-request timeout
// is enforced by the coordinator, the sender, not by the sub-component.
func (co *Coordinator) Do(ctx context.Context, req Request) (Response, error) {
	reply := make(chan requestReply, 1)

	select {
	case co.reqCh <- pendingRequest{ctx: ctx, req: req, reply: reply}:
	case <-co.done:
		return nil, consoleerr.New(consoleerr.ServerStopped, "coordinator stopped")
	case <-ctx.Done():
		return nil, consoleerr.Wrap(consoleerr.Timeout, "request not accepted before deadline", ctx.Err())
	}

	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, consoleerr.Wrap(consoleerr.Timeout, "request timed out", ctx.Err())
	}
}

// Stop drains the dispatcher, stops every owned console session, and
// returns once the dispatcher goroutine has exited.
func (co *Coordinator) Stop(ctx context.Context) error {
	var err error
	co.stopOnce.Do(func() {
		ack := make(chan struct{})
		co.stopCh <- ack
		select {
		case <-ack:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// dispatch is the single owner goroutine: pop one request, spawn a
// short-lived worker to execute it against the service, repeat. Go's select
// lets this block on either channel natively, so unlike the source's
// 16ms-poll + try_recv loop (a workaround for Rust mpsc's lack of a
// multi-channel select without pulling in an async runtime) this dispatcher
// simply blocks until there is work or a stop signal.
func (co *Coordinator) dispatch() {
	defer close(co.done)
	log.Info("coordinator dispatcher started")

	for {
		select {
		case ack := <-co.stopCh:
			co.svc.stopAll(context.Background())
			co.pool.Shutdown(context.Background())
			close(ack)
			log.Info("coordinator dispatcher stopped")
			return

		case pr := <-co.reqCh:
			pr := pr
			submitted := co.pool.Submit(func() {
				res, err := handle(pr.ctx, co.svc, pr.req)
				pr.reply <- requestReply{res, err}
			})
			if !submitted {
				pr.reply <- requestReply{nil, consoleerr.New(consoleerr.ServerStopped, "dispatch queue full")}
			}
		}
	}
}
