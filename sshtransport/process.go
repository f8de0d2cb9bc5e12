package sshtransport

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/beauremus/pacsys/pacsyserr"
)

// Session is the slice of *ssh.Session that RemoteProcess needs.
// Narrowing to an interface lets callers (and tests) drive
// RemoteProcess against a hand-rolled fake instead of a live network
// session.
type Session interface {
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	StderrPipe() (io.Reader, error)
	Start(cmd string) error
	Wait() error
	Close() error
}

var _ Session = (*ssh.Session)(nil)

// RemoteProcess is an interactive byte-stream wrapper around one
// remote command: an accumulating read buffer fed by a background
// pump goroutine, so ReadUntil/ReadFor never block the pump even
// while a caller is between calls. Stderr is drained continuously in
// its own goroutine to avoid the remote side blocking on a full pipe.
type RemoteProcess struct {
	session Session
	stdin   io.WriteCloser

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	exited bool

	notify chan struct{}
	doneCh chan struct{}
}

// NewRemoteProcess starts cmd on session and begins pumping its
// output. session.Start has already been validated by the caller's
// choice of cmd; this function owns session from here on.
func NewRemoteProcess(session Session, cmd string) (*RemoteProcess, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to open stdin pipe", Cause: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to open stdout pipe", Cause: err}
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to open stderr pipe", Cause: err}
	}
	if err := session.Start(cmd); err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to start command", Cause: err}
	}

	rp := &RemoteProcess{
		session: session,
		stdin:   stdin,
		notify:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}

	go rp.pump(stdout)
	go drainStderr(stderr)
	go rp.waitExit()

	return rp, nil
}

func (rp *RemoteProcess) pump(stdout io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			rp.mu.Lock()
			rp.buf.Write(chunk[:n])
			rp.mu.Unlock()
			select {
			case rp.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// drainStderr reads and discards stderr for as long as the session
// lives, so the remote process never deadlocks writing to a full pipe.
func drainStderr(stderr io.Reader) {
	io.Copy(io.Discard, stderr)
}

func (rp *RemoteProcess) waitExit() {
	rp.session.Wait()
	rp.mu.Lock()
	rp.exited = true
	rp.mu.Unlock()
	close(rp.doneCh)
}

// SendLine writes s followed by a newline to the remote process's stdin.
func (rp *RemoteProcess) SendLine(s string) error {
	return rp.SendBytes(append([]byte(s), '\n'))
}

// SendBytes writes b verbatim to the remote process's stdin.
func (rp *RemoteProcess) SendBytes(b []byte) error {
	if _, err := rp.stdin.Write(b); err != nil {
		return &pacsyserr.SSHError{Message: "write to remote process failed", Cause: err}
	}
	return nil
}

// ReadUntil returns everything received before the first occurrence
// of marker, consuming the marker. A marker split across several
// underlying reads is still found, since the search runs against the
// accumulated buffer rather than a single chunk. timeout <= 0 blocks
// indefinitely.
func (rp *RemoteProcess) ReadUntil(marker []byte, timeout time.Duration) ([]byte, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		rp.mu.Lock()
		if idx := bytes.Index(rp.buf.Bytes(), marker); idx >= 0 {
			data := make([]byte, idx)
			copy(data, rp.buf.Bytes()[:idx])
			remaining := rp.buf.Bytes()[idx+len(marker):]
			rp.buf.Reset()
			rp.buf.Write(remaining)
			rp.mu.Unlock()
			return data, nil
		}
		exited := rp.exited
		rp.mu.Unlock()

		if exited {
			return nil, &pacsyserr.SSHError{Message: "process exited before marker was found"}
		}

		select {
		case <-rp.notify:
			continue
		case <-rp.doneCh:
			continue
		case <-timeoutCh:
			return nil, &pacsyserr.SSHTimeoutError{Message: "timed out waiting for marker"}
		}
	}
}

// ReadFor accumulates every byte received over d and returns it.
func (rp *RemoteProcess) ReadFor(d time.Duration) []byte {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return rp.drain()
		case <-rp.doneCh:
			return rp.drain()
		case <-rp.notify:
			continue
		}
	}
}

func (rp *RemoteProcess) drain() []byte {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	data := make([]byte, rp.buf.Len())
	copy(data, rp.buf.Bytes())
	rp.buf.Reset()
	return data
}

// Alive reports whether the process has neither been explicitly
// closed nor exited on its own.
func (rp *RemoteProcess) Alive() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return !rp.closed && !rp.exited
}

// Close terminates the session. Idempotent.
func (rp *RemoteProcess) Close() error {
	rp.mu.Lock()
	if rp.closed {
		rp.mu.Unlock()
		return nil
	}
	rp.closed = true
	rp.mu.Unlock()
	return rp.session.Close()
}

// RemoteProcess opens a new session on client's final hop and starts
// cmd interactively.
func (c *Client) RemoteProcess(ctx context.Context, cmd string) (*RemoteProcess, error) {
	client, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, &pacsyserr.SSHError{Message: "failed to open session", Cause: err}
	}
	return NewRemoteProcess(session, cmd)
}
