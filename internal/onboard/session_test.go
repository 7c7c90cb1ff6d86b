package onboard

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ryanmadzima/onboarder/internal/inventory"
)

func scriptedSession(t *testing.T, transcript string) *sshSession {
	t.Helper()
	s := &sshSession{
		dev:   testDevices("10.0.0.1")[0],
		reads: make(chan readResult),
		done:  make(chan struct{}),
	}
	done := s.done
	t.Cleanup(func() { close(done) })
	go readPump(strings.NewReader(transcript), s.reads, s.done)
	return s
}

func TestReadUntilAnyFindsPrompt(t *testing.T) {
	s := scriptedSession(t, "Last login: Mon Apr 13 09:00:00 2020\nuser@sw1> ")

	out, err := s.readUntilAny(context.Background(), []string{promptOperational}, time.Second)
	if err != nil {
		t.Fatalf("readUntilAny failed: %v", err)
	}
	if !strings.Contains(out, "user@sw1> ") {
		t.Errorf("prompt not captured in output: %q", out)
	}
}

func TestReadUntilAnyMatchesAnyPrompt(t *testing.T) {
	s := scriptedSession(t, "commit complete\nExiting configuration mode\nuser@sw1> ")

	out, err := s.readUntilAny(context.Background(), []string{promptOperational, promptConfig}, time.Second)
	if err != nil {
		t.Fatalf("readUntilAny failed: %v", err)
	}
	if !strings.Contains(strings.ToLower(out), "commit complete") {
		t.Errorf("output truncated: %q", out)
	}
}

func TestReadUntilAnySessionDrop(t *testing.T) {
	// Transcript ends before any prompt appears, as when the connection
	// drops mid-exchange.
	s := scriptedSession(t, "commit\n")

	_, err := s.readUntilAny(context.Background(), []string{promptOperational}, time.Second)
	if err == nil {
		t.Fatal("expected read error on dropped session")
	}
	if !strings.Contains(err.Error(), "read error") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadUntilAnyTimesOut(t *testing.T) {
	// The pump never delivers anything; the overall timeout must fire.
	s := &sshSession{
		dev:   testDevices("10.0.0.1")[0],
		reads: make(chan readResult),
		done:  make(chan struct{}),
	}

	start := time.Now()
	_, err := s.readUntilAny(context.Background(), []string{promptOperational}, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout waiting for prompt") {
		t.Errorf("unexpected error: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout fired far too late")
	}
}

func TestReadUntilAnyCancelled(t *testing.T) {
	s := &sshSession{
		dev:   testDevices("10.0.0.1")[0],
		reads: make(chan readResult),
		done:  make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.readUntilAny(ctx, []string{promptOperational}, time.Second); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// mockJunos is an in-process SSH server speaking just enough Junos CLI for
// the session lifecycle: operational prompt on login, configuration mode,
// staged set lines, and a commit that can be slow or drop the connection.
type mockJunos struct {
	listener     net.Listener
	commitDelay  time.Duration
	dropOnCommit bool

	mu     sync.Mutex
	staged []string
}

func startMockJunos(t *testing.T, commitDelay time.Duration, dropOnCommit bool) *mockJunos {
	t.Helper()

	m := &mockJunos{commitDelay: commitDelay, dropOnCommit: dropOnCommit}

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("failed to build host signer: %v", err)
	}
	serverConfig.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	m.listener = listener
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go m.serveConn(conn, serverConfig)
		}
	}()

	return m
}

func (m *mockJunos) addr() string {
	return m.listener.Addr().String()
}

func (m *mockJunos) stagedLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.staged...)
}

func (m *mockJunos) serveConn(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		// Accept pty-req, shell and friends.
		go func(in <-chan *ssh.Request) {
			for req := range in {
				if req.WantReply {
					req.Reply(true, nil)
				}
			}
		}(requests)
		go m.serveShell(sconn, channel)
	}
}

func (m *mockJunos) serveShell(sconn *ssh.ServerConn, channel ssh.Channel) {
	defer channel.Close()

	fmt.Fprint(channel, "Last login: Mon Apr 13 09:00:00 2020\nadmin@sw1> ")

	scanner := bufio.NewScanner(channel)
	for scanner.Scan() {
		switch line := strings.TrimSpace(scanner.Text()); line {
		case "":
			fmt.Fprint(channel, "admin@sw1# ")
		case "configure":
			fmt.Fprint(channel, "Entering configuration mode\n[edit]\nadmin@sw1# ")
		case "commit and-quit":
			if m.dropOnCommit {
				sconn.Close()
				return
			}
			time.Sleep(m.commitDelay)
			fmt.Fprint(channel, "commit complete\nExiting configuration mode\nadmin@sw1> ")
		default:
			m.mu.Lock()
			m.staged = append(m.staged, line)
			m.mu.Unlock()
			fmt.Fprint(channel, "[edit]\nadmin@sw1# ")
		}
	}
}

func newLiveSession(t *testing.T, addr, password string) *sshSession {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad mock address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad mock port %q: %v", portStr, err)
	}
	return &sshSession{
		dev: inventory.Device{
			Address:  host,
			Username: "admin",
			Password: password,
			Kind:     inventory.KindJuniper,
		},
		port:           port,
		connectTimeout: 5 * time.Second,
		applyTimeout:   5 * time.Second,
		commitTimeout:  15 * time.Second,
		cmdLog:         testLogger(),
	}
}

func TestSSHSessionSlowCommit(t *testing.T) {
	// The device goes silent for two seconds between receiving the commit
	// and confirming it, which is normal Junos behavior. The session must
	// wait it out instead of reporting the device state as unknown.
	mock := startMockJunos(t, 2*time.Second, false)
	sess := newLiveSession(t, mock.addr(), "secret")
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	commands := []string{"set system host-name sw1", "", "set interfaces ge-0/0/0 disable"}
	if err := sess.Apply(ctx, commands); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	staged := mock.stagedLines()
	want := []string{"set system host-name sw1", "set interfaces ge-0/0/0 disable"}
	if len(staged) != len(want) {
		t.Fatalf("device staged %d lines, want %d: %v", len(staged), len(want), staged)
	}
	for i := range want {
		if staged[i] != want[i] {
			t.Errorf("staged line %d: got %q, want %q", i, staged[i], want[i])
		}
	}
}

func TestSSHSessionCommitConnectionDrop(t *testing.T) {
	mock := startMockJunos(t, 0, true)
	sess := newLiveSession(t, mock.addr(), "secret")
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := sess.Apply(ctx, []string{"set system host-name sw1"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	err := sess.Commit(ctx)
	var ce *CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommitError, got %v", err)
	}
	if !ce.StateUnknown {
		t.Error("connection loss during commit must flag the device state as unknown")
	}
}

func TestSSHSessionAuthRejected(t *testing.T) {
	mock := startMockJunos(t, 0, false)
	sess := newLiveSession(t, mock.addr(), "wrong-password")
	defer sess.Close()

	err := sess.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
}
