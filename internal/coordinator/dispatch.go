package coordinator

import (
	"context"
	"fmt"

	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/consoleutil"
	"github.com/autotestd/autotestd/internal/vnc"
)

// handle executes one request synchronously against the service and
// returns its response, mirroring server.rs's Service::handle_req.
func handle(ctx context.Context, svc *Service, req Request) (Response, error) {
	switch r := req.(type) {
	case GetConfigValue:
		return svc.getConfigValue(r.Key), nil

	case SetConfig:
		cfg, err := config.FromTOML(r.TOML)
		if err != nil {
			return nil, consoleerr.Wrap(consoleerr.ConfigInvalid, "config invalid", err)
		}
		if err := svc.connectWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return Done{}, nil

	case ScriptRun:
		console, name, err := svc.selectConsole(r.Console)
		if err != nil {
			return nil, err
		}
		code, value, err := console.Exec(ctx, r.Cmd, r.Timeout)
		if err != nil {
			return nil, consoleerr.Wrap(consoleerr.Timeout, fmt.Sprintf("script run on %s", name), err)
		}
		return ScriptRunResult{Code: code, Value: value}, nil

	case WriteString:
		console, name, err := svc.selectConsole(r.Console)
		if err != nil {
			return nil, err
		}
		if err := console.WriteString(ctx, string(r.Bytes), r.Timeout); err != nil {
			return nil, consoleerr.Wrap(consoleerr.Timeout, fmt.Sprintf("write on %s", name), err)
		}
		return Done{}, nil

	case WaitString:
		console, name, err := svc.selectConsole(r.Console)
		if err != nil {
			return nil, err
		}
		if _, err := console.WaitFor(ctx, r.Substring, r.N, r.Timeout); err != nil {
			return nil, consoleerr.Wrap(consoleerr.Timeout, fmt.Sprintf("wait on %s", name), err)
		}
		return Done{}, nil

	case DumpHistory:
		console, name, err := svc.selectConsole(r.Console)
		if err != nil {
			return nil, err
		}
		text, err := console.DecodedHistory(ctx)
		if err != nil {
			return nil, consoleerr.Wrap(consoleerr.Timeout, fmt.Sprintf("dump history on %s", name), err)
		}
		return HistoryDump{Text: text}, nil

	case SSHExecSeparate:
		return svc.sshExecSeparate(r)

	case TakeScreenshot, GetScreenshot, Refresh, CheckScreen,
		MouseMove, MouseDrag, MouseHide, MouseClick, MouseRClick,
		MouseKeyDown, SendKey, TypeString:
		return svc.handleVNCRequest(ctx, req)

	default:
		return nil, consoleerr.Newf(consoleerr.Other, "unsupported request %T", req)
	}
}

func (s *Service) sshExecSeparate(r SSHExecSeparate) (Response, error) {
	client := s.ssh.Load()
	if client == nil {
		return nil, consoleerr.New(consoleerr.NoConnection, "ssh not configured")
	}

	type result struct {
		code  int
		value string
		err   error
	}
	res, err := consoleutil.RunWithTimeout(func() result {
		code, value, err := client.ExecSeparate(r.Cmd)
		return result{code, value, err}
	}, r.Timeout)
	if err != nil {
		return nil, consoleerr.New(consoleerr.Timeout, "ssh exec separate timed out")
	}
	if res.err != nil {
		return nil, res.err
	}
	return ScriptRunResult{Code: res.code, Value: res.value}, nil
}

// handleVNCRequest dispatches one VNC-tagged request against the active
// client, then fires an optional debug screenshot after the action (all
// variants except TakeScreenshot and CheckScreen, which manage their own
// screenshots), mirroring handle_vnc_req's post-action screenshot.
func (s *Service) handleVNCRequest(ctx context.Context, req Request) (Response, error) {
	if cs, ok := req.(CheckScreen); ok {
		return s.checkScreen(ctx, cs)
	}

	client := s.vnc.Load()
	if client == nil {
		return nil, consoleerr.New(consoleerr.NoConnection, "vnc not configured")
	}

	var name string
	var vres vnc.Response
	var err error

	switch r := req.(type) {
	case TakeScreenshot:
		return convertVNCResult(client.TakeScreenshot(ctx, r.Name, ""))
	case GetScreenshot:
		name = "user"
		vres, err = client.GetScreenshot(ctx)
	case Refresh:
		name = "refresh"
		vres, err = client.Refresh(ctx)
	case MouseMove:
		name = "mousemove"
		vres, err = client.MouseMove(ctx, r.X, r.Y)
	case MouseDrag:
		name = "mousedrag"
		vres, err = client.MouseDrag(ctx, r.X, r.Y)
	case MouseHide:
		name = "mousehide"
		vres, err = client.MouseHide(ctx)
	case MouseClick:
		name = "mouseclick"
		vres, err = client.MouseClick(ctx, mouseButtonLeft)
	case MouseRClick:
		name = "mouseclick"
		vres, err = client.MouseClick(ctx, mouseButtonRight)
	case MouseKeyDown:
		if r.Down {
			name = "mousekeydown"
			vres, err = client.MouseDown(ctx, mouseButtonLeft)
		} else {
			name = "mousekeyup"
			vres, err = client.MouseUp(ctx, mouseButtonLeft)
		}
	case SendKey:
		name = "sendkey"
		vres, err = client.SendKey(ctx, vnc.KeysFromSpec(r.Keys))
	case TypeString:
		name = "typestring"
		vres, err = client.TypeString(ctx, r.Text)
	default:
		return nil, consoleerr.Newf(consoleerr.Other, "unsupported vnc request %T", req)
	}

	if err == nil && s.enableScreenshot {
		if _, serr := client.TakeScreenshot(ctx, name, ""); serr != nil {
			log.Warn("post-action screenshot failed", "error", serr)
		}
	}

	return convertVNCResult(vres, err)
}

func convertVNCResult(res vnc.Response, err error) (Response, error) {
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case vnc.Screen:
		return Screenshot{Buffer: v.Buffer}, nil
	default:
		return Done{}, nil
	}
}
