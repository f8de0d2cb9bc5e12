package sshtransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/beauremus/pacsys/pacsyserr"
)

// HopSpec names one leg of a (possibly multi-hop) jump chain: the host
// to dial and the credential used to authenticate to it.
type HopSpec struct {
	Host string
	Port int
	Auth Auth
}

func (h HopSpec) addr() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", h.Host, port)
}

// Client is a lazily-connected chain of SSH hops. The first hop is
// dialed directly; every subsequent hop is dialed through the
// previous hop's own Dial, so a Client transparently supports
// jump-host chains of any depth. Nothing is dialed until the first
// Exec/RemoteProcess/Forward/SFTPClient call.
type Client struct {
	hops    []HopSpec
	timeout time.Duration

	mu        sync.Mutex
	connected bool
	clients   []*ssh.Client // one per hop, in order; clients[len-1] is the final hop
}

// New returns a Client for the given hop chain. hops must have at
// least one entry; hops[0] is dialed from the local host, hops[1:]
// are dialed through the preceding hop. timeout bounds each dial and
// handshake; zero means no deadline.
func New(hops []HopSpec, timeout time.Duration) *Client {
	return &Client{hops: hops, timeout: timeout}
}

func (c *Client) ensureConnected(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return c.clients[len(c.clients)-1], nil
	}
	if len(c.hops) == 0 {
		return nil, &pacsyserr.SSHConnectionError{Message: "no hops configured"}
	}

	clients := make([]*ssh.Client, 0, len(c.hops))
	var last *ssh.Client

	for _, hop := range c.hops {
		cfg, err := hop.Auth.clientConfig()
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		if c.timeout > 0 {
			cfg.Timeout = c.timeout
		}

		var next *ssh.Client
		if last == nil {
			dialer := net.Dialer{Timeout: c.timeout}
			conn, err := dialer.DialContext(ctx, "tcp", hop.addr())
			if err != nil {
				closeAll(clients)
				return nil, &pacsyserr.SSHConnectionError{Host: hop.Host, Message: "dial failed", Cause: err}
			}
			sshConn, chans, reqs, err := ssh.NewClientConn(conn, hop.addr(), cfg)
			if err != nil {
				conn.Close()
				closeAll(clients)
				return nil, &pacsyserr.SSHConnectionError{Host: hop.Host, Message: "handshake failed", Cause: err}
			}
			next = ssh.NewClient(sshConn, chans, reqs)
		} else {
			conn, err := last.Dial("tcp", hop.addr())
			if err != nil {
				closeAll(clients)
				return nil, &pacsyserr.SSHConnectionError{Host: hop.Host, Message: "jump dial failed", Cause: err}
			}
			sshConn, chans, reqs, err := ssh.NewClientConn(conn, hop.addr(), cfg)
			if err != nil {
				conn.Close()
				closeAll(clients)
				return nil, &pacsyserr.SSHConnectionError{Host: hop.Host, Message: "jump handshake failed", Cause: err}
			}
			next = ssh.NewClient(sshConn, chans, reqs)
		}

		clients = append(clients, next)
		last = next
	}

	c.clients = clients
	c.connected = true
	return last, nil
}

func closeAll(clients []*ssh.Client) {
	for i := len(clients) - 1; i >= 0; i-- {
		clients[i].Close()
	}
}

// ExecResult is the outcome of a single non-interactive command.
type ExecResult struct {
	Cmd      string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Exec runs cmd to completion on the final hop and collects its
// output. ctx cancellation closes the session early.
func (c *Client) Exec(ctx context.Context, cmd string) (ExecResult, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return ExecResult{Cmd: cmd}, err
	}
	session, err := client.NewSession()
	if err != nil {
		return ExecResult{Cmd: cmd}, &pacsyserr.SSHError{Message: "failed to open session", Cause: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		return ExecResult{Cmd: cmd}, ctx.Err()
	case runErr := <-done:
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return ExecResult{Cmd: cmd, Stdout: stdout.String(), Stderr: stderr.String(), Err: runErr},
					&pacsyserr.SSHError{Message: "command execution failed", Cause: runErr}
			}
		}
		return ExecResult{Cmd: cmd, Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
	}
}

// ExecWithInput runs cmd to completion like Exec, but first writes input
// to its stdin and closes it, for commands like "cat > path" that read
// their payload from standard input.
func (c *Client) ExecWithInput(ctx context.Context, cmd string, input string) (ExecResult, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return ExecResult{Cmd: cmd}, err
	}
	session, err := client.NewSession()
	if err != nil {
		return ExecResult{Cmd: cmd}, &pacsyserr.SSHError{Message: "failed to open session", Cause: err}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return ExecResult{Cmd: cmd}, &pacsyserr.SSHError{Message: "failed to open stdin pipe", Cause: err}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(cmd); err != nil {
		return ExecResult{Cmd: cmd}, &pacsyserr.SSHError{Message: "failed to start command", Cause: err}
	}
	go func() {
		io.WriteString(stdin, input)
		stdin.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Close()
		return ExecResult{Cmd: cmd}, ctx.Err()
	case waitErr := <-done:
		exitCode := 0
		if waitErr != nil {
			if exitErr, ok := waitErr.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return ExecResult{Cmd: cmd, Stdout: stdout.String(), Stderr: stderr.String(), Err: waitErr},
					&pacsyserr.SSHError{Message: "command execution failed", Cause: waitErr}
			}
		}
		return ExecResult{Cmd: cmd, Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
	}
}

// ExecMany runs each command in sequence on its own session, short
// of bailing out on the first failure: every command always runs.
func (c *Client) ExecMany(ctx context.Context, cmds []string) ([]ExecResult, error) {
	results := make([]ExecResult, 0, len(cmds))
	for _, cmd := range cmds {
		r, err := c.Exec(ctx, cmd)
		if err != nil {
			r.Err = err
		}
		results = append(results, r)
	}
	return results, nil
}

// ExecStream runs cmd and streams its stdout line by line on the
// returned channel, which is closed when the command exits or the
// context is cancelled.
func (c *Client) ExecStream(ctx context.Context, cmd string) (<-chan string, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to open session", Cause: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, &pacsyserr.SSHError{Message: "failed to open stdout pipe", Cause: err}
	}
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, &pacsyserr.SSHError{Message: "failed to start command", Cause: err}
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		defer session.Close()
		scanLines(stdout, lines)
		session.Wait()
	}()
	return lines, nil
}

// Close tears down every hop in reverse connection order. Safe to
// call more than once or on a Client that never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	closeAll(c.clients)
	c.clients = nil
	c.connected = false
	return nil
}
