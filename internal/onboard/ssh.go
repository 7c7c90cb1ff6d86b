package onboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ryanmadzima/onboarder/internal/config"
	"github.com/ryanmadzima/onboarder/internal/inventory"
)

// Junos CLI prompts. The operational prompt follows "user@host", the
// configuration prompt appears after entering configure mode, and the
// shell prompt shows up when an account lands in csh instead of the CLI.
const (
	promptOperational = "> "
	promptConfig      = "# "
	promptShell       = "% "
)

// readResult is one chunk of device output from the pump goroutine. Both
// data and err can be set on the same result.
type readResult struct {
	data []byte
	err  error
}

// NewSSHFactory returns a Factory producing interactive Junos SSH sessions.
// Every staging and commit exchange is written to cmdLog keyed by device
// address.
func NewSSHFactory(cfg config.OnboardConfig, cmdLog *slog.Logger) Factory {
	return func(dev inventory.Device) Session {
		return &sshSession{
			dev:            dev,
			port:           cfg.SSHPort,
			connectTimeout: cfg.GetConnectTimeout(),
			applyTimeout:   cfg.GetApplyTimeout(),
			commitTimeout:  cfg.GetCommitTimeout(),
			cmdLog:         cmdLog,
		}
	}
}

type sshSession struct {
	dev            inventory.Device
	port           int
	connectTimeout time.Duration
	applyTimeout   time.Duration
	commitTimeout  time.Duration
	cmdLog         *slog.Logger

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	netConn net.Conn
	reads   chan readResult
	done    chan struct{}
}

func (s *sshSession) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(s.dev.Address, strconv.Itoa(s.port))
	sshConfig := &ssh.ClientConfig{
		User:            s.dev.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.dev.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.connectTimeout,
	}

	dialer := &net.Dialer{Timeout: s.connectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(rawConn, addr, sshConfig)
	if err != nil {
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}
	client := ssh.NewClient(clientConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 9600,
		ssh.TTY_OP_OSPEED: 9600,
	}
	if err := session.RequestPty("vt100", 80, 40, modes); err != nil {
		session.Close()
		client.Close()
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: fmt.Errorf("pty request failed: %w", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		rawConn.Close()
		return &ConnectionError{Device: s.dev.Address, Err: err}
	}

	s.client = client
	s.session = session
	s.stdin = stdin
	s.netConn = rawConn
	s.reads = make(chan readResult)
	s.done = make(chan struct{})
	go readPump(stdout, s.reads, s.done)

	// Confirm the session is actually at a command-ready prompt before
	// declaring the connection good.
	banner, err := s.readUntilAny(ctx, []string{promptOperational, promptConfig, promptShell}, s.connectTimeout)
	if err != nil {
		s.Close()
		return &ConnectionError{Device: s.dev.Address, Err: fmt.Errorf("no command prompt: %w", err)}
	}

	// Root logins land in the shell; switch to the CLI first.
	if !strings.Contains(banner, promptOperational) && strings.Contains(banner, promptShell) {
		if _, err := s.exchange(ctx, "cli", []string{promptOperational}, s.connectTimeout); err != nil {
			s.Close()
			return &ConnectionError{Device: s.dev.Address, Err: fmt.Errorf("could not enter CLI: %w", err)}
		}
	}

	return nil
}

func (s *sshSession) Apply(ctx context.Context, commands []string) error {
	if s.client == nil {
		return &ApplyError{Device: s.dev.Address, Err: errors.New("session not connected")}
	}

	out, err := s.exchange(ctx, "configure", []string{promptConfig}, s.applyTimeout)
	s.logExchange(ctx, "configure", out)
	if err != nil {
		return &ApplyError{Device: s.dev.Address, Err: fmt.Errorf("could not enter configuration mode: %w", err)}
	}
	if reason := rejectionIn(out); reason != "" {
		return &ApplyError{Device: s.dev.Address, Err: errors.New(reason)}
	}

	for _, line := range nonBlank(commands) {
		out, err := s.exchange(ctx, line, []string{promptConfig}, s.applyTimeout)
		s.logExchange(ctx, line, out)
		if err != nil {
			return &ApplyError{Device: s.dev.Address, Line: line, Err: err}
		}
		if reason := rejectionIn(out); reason != "" {
			return &ApplyError{Device: s.dev.Address, Line: line, Err: errors.New(reason)}
		}
	}
	return nil
}

func (s *sshSession) Commit(ctx context.Context) error {
	if s.client == nil {
		return &CommitError{Device: s.dev.Address, Err: errors.New("session not connected")}
	}

	// A successful commit prints "commit complete" and drops back to the
	// operational prompt; a rejected one reports errors and stays in
	// configuration mode.
	out, err := s.exchange(ctx, "commit and-quit", []string{promptOperational, promptConfig}, s.commitTimeout)
	s.logExchange(ctx, "commit and-quit", out)
	if err != nil {
		// The link died mid-commit. The device may or may not have
		// activated the candidate config.
		return &CommitError{Device: s.dev.Address, StateUnknown: true, Err: err}
	}
	if !strings.Contains(strings.ToLower(out), "commit complete") {
		reason := rejectionIn(out)
		if reason == "" {
			reason = "device did not confirm the commit"
		}
		return &CommitError{Device: s.dev.Address, Err: errors.New(reason)}
	}
	return nil
}

func (s *sshSession) Close() error {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.netConn != nil {
		s.netConn.Close()
		s.netConn = nil
	}
	s.stdin = nil
	return nil
}

func (s *sshSession) logExchange(ctx context.Context, command, output string) {
	s.cmdLog.DebugContext(ctx, "Device exchange",
		slog.String("device", s.dev.Address),
		slog.String("command", command),
		slog.String("output", output),
	)
}

// exchange sends one command line and waits for any of the given prompts.
func (s *sshSession) exchange(ctx context.Context, command string, prompts []string, timeout time.Duration) (string, error) {
	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("failed to send %q: %w", command, err)
	}
	return s.readUntilAny(ctx, prompts, timeout)
}

// readUntilAny consumes device output from the pump until any of the given
// prompts appears. The conn underneath the SSH mux is never touched: a read
// deadline there would tear down the whole transport while the device is
// quietly working (Junos commits can sit silent for seconds).
func (s *sshSession) readUntilAny(ctx context.Context, prompts []string, timeout time.Duration) (string, error) {
	var output strings.Builder
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case res := <-s.reads:
			if len(res.data) > 0 {
				output.Write(res.data)
				text := output.String()
				for _, prompt := range prompts {
					if strings.Contains(text, prompt) {
						return text, nil
					}
				}
			}
			if res.err != nil {
				return output.String(), fmt.Errorf("read error: %w", res.err)
			}
		case <-timer.C:
			return output.String(), fmt.Errorf("timeout waiting for prompt %s", strings.Join(prompts, " or "))
		case <-ctx.Done():
			return output.String(), ctx.Err()
		}
	}
}

// readPump moves stdout chunks onto reads until the stream ends or done
// closes. It owns the blocking Read so readUntilAny can enforce timeouts
// without deadlines on the underlying conn.
func readPump(r io.Reader, reads chan<- readResult, done <-chan struct{}) {
	buffer := make([]byte, 4096)
	for {
		n, err := r.Read(buffer)
		res := readResult{err: err}
		if n > 0 {
			res.data = append([]byte(nil), buffer[:n]...)
		}
		select {
		case reads <- res:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
