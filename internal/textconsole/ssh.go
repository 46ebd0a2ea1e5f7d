package textconsole

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/autotestd/autotestd/internal/bytestream"
	"github.com/autotestd/autotestd/internal/config"
	"github.com/autotestd/autotestd/internal/consoleerr"
	"github.com/autotestd/autotestd/internal/term"
)

// shellSettleDelay is slept once after requesting a shell, giving the
// remote's login banner and first prompt time to arrive before exec("tty")
// runs, matching the original's fixed 3s post-shell sleep.
const shellSettleDelay = 3 * time.Second

const defaultSSHTimeout = 10 * time.Second

// SSHConsole is a Console bound to a persistent SSH shell channel, plus the
// underlying client for opening short-lived exec channels.
type SSHConsole struct {
	*Console
	Tty string

	client *ssh.Client
}

// shellPipe adapts a session's stdin/stdout pipes to an io.ReadWriter the
// byte-stream event loop can own; closing it closes the owning session.
type shellPipe struct {
	io.Reader
	io.WriteCloser
	session *ssh.Session
}

func (p *shellPipe) Close() error {
	return p.session.Close()
}

// DialSSH opens a TCP connection to cfg.Host:cfg.Port, authenticates with
// either a private key or a password, requests a PTY and starts an
// interactive shell, and discovers the remote's controlling tty. Grounded
// on ssh.rs / evloop/ssh.rs's SSHClient::connect.
func DialSSH(cfg *config.SSHConfig) (*SSHConsole, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, consoleerr.New(consoleerr.ConfigInvalid, "ssh host not configured")
	}

	authMethod, err := sshAuthMethod(cfg)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, consoleerr.WrapConsole("ssh", "dial failed", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, consoleerr.WrapConsole("ssh", "handshake failed", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, consoleerr.WrapConsole("ssh", "session open failed", err)
	}

	if err := session.RequestPty("xterm", 24, 80, ssh.TerminalModes{}); err != nil {
		session.Close()
		client.Close()
		return nil, consoleerr.WrapConsole("ssh", "pty request failed", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, consoleerr.WrapConsole("ssh", "stdin pipe failed", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, consoleerr.WrapConsole("ssh", "stdout pipe failed", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, consoleerr.WrapConsole("ssh", "shell request failed", err)
	}

	time.Sleep(shellSettleDelay)

	pipe := &shellPipe{Reader: stdout, WriteCloser: stdin, session: session}
	stream := bytestream.New(pipe)
	console := newConsole("ssh", stream, term.NewVT100())
	sc := &SSHConsole{Console: console, client: client}

	ctx := context.Background()
	code, tty, err := sc.Exec(ctx, "tty", ttyDiscoveryTimeout)
	if err != nil {
		stream.Stop(ctx)
		client.Close()
		return nil, fmt.Errorf("discover ssh tty: %w", err)
	}
	if code != 0 {
		stream.Stop(ctx)
		client.Close()
		return nil, consoleerr.Newf(consoleerr.ConsoleError, "tty discovery exited %d", code)
	}
	sc.Tty = tty

	return sc, nil
}

func sshAuthMethod(cfg *config.SSHConfig) (ssh.AuthMethod, error) {
	hasKey := cfg.PrivateKeyPath != ""
	hasPassword := cfg.Password != ""
	if hasKey == hasPassword {
		return nil, consoleerr.New(consoleerr.ConfigInvalid, "ssh requires exactly one of private_key_path or password")
	}

	if hasKey {
		keyBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, consoleerr.WrapConsole("ssh", "read private key", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, consoleerr.WrapConsole("ssh", "parse private key", err)
		}
		return ssh.PublicKeys(signer), nil
	}

	return ssh.Password(cfg.Password), nil
}

// Stop tears down the interactive shell and the underlying SSH connection;
// the embedded Console.Stop alone only closes the shell session, leaving
// the TCP connection itself open.
func (sc *SSHConsole) Stop(ctx context.Context) error {
	err := sc.Console.Stop(ctx)
	sc.client.Close()
	return err
}

// ExecSeparate runs command on its own short-lived exec channel rather than
// the persistent shell, returning its combined output and exit status.
// Grounded on evloop/ssh.rs's exec_seperate (there implemented as two
// sequential exec round trips; golang.org/x/crypto/ssh instead exposes the
// exit status directly from a single Session.Run, avoiding the second
// round trip).
func (sc *SSHConsole) ExecSeparate(command string) (int, string, error) {
	session, err := sc.client.NewSession()
	if err != nil {
		return 1, "", consoleerr.WrapConsole("ssh", "exec session open failed", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err == nil {
		return 0, string(out), nil
	}
	var exitErr *ssh.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitStatus(), string(out), nil
	}
	return 1, string(out), consoleerr.WrapConsole("ssh", "exec failed", err)
}

func asExitError(err error, target **ssh.ExitError) bool {
	if e, ok := err.(*ssh.ExitError); ok {
		*target = e
		return true
	}
	return false
}

// UploadFile pushes localPath to remotePath over a dedicated exec channel
// speaking the minimal SCP sink protocol (no SFTP subsystem assumed).
func (sc *SSHConsole) UploadFile(localPath, remotePath string, mode os.FileMode) error {
	f, err := os.Open(localPath)
	if err != nil {
		return consoleerr.WrapConsole("ssh", "open local file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return consoleerr.WrapConsole("ssh", "stat local file", err)
	}

	session, err := sc.client.NewSession()
	if err != nil {
		return consoleerr.WrapConsole("ssh", "scp session open failed", err)
	}
	defer session.Close()

	w, err := session.StdinPipe()
	if err != nil {
		return consoleerr.WrapConsole("ssh", "scp stdin pipe failed", err)
	}

	remoteDir, remoteName := splitRemotePath(remotePath)
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(fmt.Sprintf("scp -qt %s", shellQuote(remoteDir)))
	}()

	fmt.Fprintf(w, "C%04o %d %s\n", mode.Perm(), info.Size(), remoteName)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return consoleerr.WrapConsole("ssh", "scp write failed", err)
	}
	fmt.Fprint(w, "\x00")
	w.Close()

	if err := <-errCh; err != nil {
		return consoleerr.WrapConsole("ssh", "scp transfer failed", err)
	}
	return nil
}

func splitRemotePath(remotePath string) (dir, name string) {
	dir = path.Dir(remotePath)
	name = path.Base(remotePath)
	return dir, name
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
