package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/needle"
	"github.com/autotestd/autotestd/internal/vnc"
)

// checkScreenPollInterval is how often CheckScreen re-fetches a screenshot
// and re-compares against the needle while waiting for a match.
const checkScreenPollInterval = 200 * time.Millisecond

// checkScreenSettleDelay is the fixed wait between each step of the
// move-wait-move-wait-click-wait click sequence, matching the source's
// three hard-coded 1s sleeps.
const checkScreenSettleDelay = time.Second

// checkScreen implements the Polling -> Matched -> ActOnClick -> Settle ->
// Done / TimedOut state machine. Grounded on server.rs's handle_vnc_req's
// CheckScreen arm.
func (s *Service) checkScreen(ctx context.Context, req CheckScreen) (Response, error) {
	client := s.vnc.Load()
	if client == nil {
		return nil, consoleerr.New(consoleerr.NoConnection, "vnc not configured")
	}

	debugSpan := fmt.Sprintf("checkscreen-%s", req.Tag)
	deadline := time.Now().Add(req.Timeout)
	var similarity float64
	var attempt int

	for {
		attempt++
		if time.Now().After(deadline) {
			return nil, consoleerr.Newf(consoleerr.Timeout, "check screen %q timed out, last similarity %.4f", req.Tag, similarity)
		}

		vres, err := client.GetScreenshot(ctx)
		if err != nil {
			return nil, err
		}
		screen, ok := vres.(vnc.Screen)
		if !ok {
			return nil, consoleerr.New(consoleerr.ServerInvalidResponse, "expected a screenshot response")
		}

		n, found := s.needles.Load().Load(req.Tag)
		if !found {
			msg := "assert screen failed, needle file not found"
			log.Error(msg, "tag", req.Tag)
			s.debugScreenshot(ctx, client, fmt.Sprintf("%d-failed-noneedle", attempt), debugSpan)
			if time.Now().After(deadline) {
				return nil, consoleerr.Newf(consoleerr.Other, "%s: %s", msg, req.Tag)
			}
			time.Sleep(checkScreenSettleDelay)
			continue
		}

		sim, matched := needle.Cmp(screen.Buffer, n, req.Threshold)
		similarity = sim

		if matched {
			log.Info("match success", "tag", req.Tag, "similarity", similarity)
			if req.Delay > 0 {
				time.Sleep(req.Delay)
			}
			if req.Click || req.Move {
				if err := s.actOnClick(ctx, client, n, req.Click, req.Move); err != nil {
					return nil, err
				}
			}
			return Done{}, nil
		}

		log.Warn("match failed", "tag", req.Tag, "similarity", similarity)
		s.debugScreenshot(ctx, client, fmt.Sprintf("%d-failed", attempt), debugSpan)
		time.Sleep(checkScreenPollInterval)
	}
}

func (s *Service) debugScreenshot(ctx context.Context, client *vnc.Client, name, span string) {
	if !s.enableScreenshot {
		return
	}
	if _, err := client.TakeScreenshot(ctx, name, span); err != nil {
		log.Warn("take screenshot failed, vnc server may have stopped unexpectedly", "error", err)
	}
}

// actOnClick finds the first region with a click hot-spot and, per move/click
// flags, issues MouseMove / MouseMove-wait-MouseMove-wait-MouseClick-wait /
// MouseHide against it, matching the source's exact step-by-step sleeps.
func (s *Service) actOnClick(ctx context.Context, client *vnc.Client, n *needle.Needle, click, move bool) error {
	_, x, y, ok := needle.FirstClickArea(n)
	if !ok {
		if !move {
			if _, err := client.MouseHide(ctx); err != nil {
				return consoleerr.Wrap(consoleerr.Other, "check screen success, but mouse hide failed", err)
			}
		}
		return nil
	}

	if move {
		if _, err := client.MouseMove(ctx, x, y); err != nil {
			return consoleerr.Wrap(consoleerr.Other, "check screen success, but mouse move failed", err)
		}
	}

	if click {
		if _, err := client.MouseMove(ctx, x, y); err != nil {
			return consoleerr.Wrap(consoleerr.Other, "check screen success, but mouse move failed", err)
		}
		time.Sleep(checkScreenSettleDelay)
		if _, err := client.MouseMove(ctx, x, y); err != nil {
			return consoleerr.Wrap(consoleerr.Other, "check screen success, but mouse move failed", err)
		}
		time.Sleep(checkScreenSettleDelay)
		if _, err := client.MouseClick(ctx, mouseButtonLeft); err != nil {
			return consoleerr.Wrap(consoleerr.Other, "check screen and mouse move success, but mouse click failed", err)
		}
		time.Sleep(checkScreenSettleDelay)
	}

	if !move {
		if _, err := client.MouseHide(ctx); err != nil {
			return consoleerr.Wrap(consoleerr.Other, "check screen success, but mouse hide after click failed", err)
		}
	}
	return nil
}
