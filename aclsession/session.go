// Package aclsession keeps a persistent ACL interpreter process alive
// over an sshtransport.Client, avoiding per-command process startup
// overhead. Each Send is a separate script execution inside the shared
// process — variables and symbols do not persist between calls; combine
// dependent commands with semicolons in a single Send.
package aclsession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/sshtransport"
)

// Real ACL prompt is "\nACL> " — anchored on the leading newline so it
// never false-matches inside command output.
const prompt = "\nACL> "

// Session is a persistent ACL interpreter session. Not safe for
// concurrent use by multiple goroutines — callers needing concurrent
// access should open one Session per goroutine.
type Session struct {
	proc    *sshtransport.RemoteProcess
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Open starts an "acl" process on client and blocks until its initial
// prompt appears, confirming the interpreter started.
func Open(ctx context.Context, client *sshtransport.Client, timeout time.Duration) (*Session, error) {
	proc, err := client.RemoteProcess(ctx, "acl")
	if err != nil {
		return nil, err
	}
	if _, err := proc.ReadUntil([]byte(prompt), timeout); err != nil {
		proc.Close()
		return nil, &pacsyserr.ACLError{Message: "failed to start ACL session", Cause: err}
	}
	return &Session{proc: proc, timeout: timeout}, nil
}

// Send submits command to the interpreter and returns its output with
// the echoed command and surrounding prompts stripped. timeout <= 0
// uses the session's default.
func (s *Session) Send(command string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", &pacsyserr.ACLError{Message: "ACL session is closed"}
	}

	effective := s.timeout
	if timeout > 0 {
		effective = timeout
	}

	if err := s.proc.SendLine(command); err != nil {
		return "", &pacsyserr.ACLError{Message: err.Error(), Cause: err}
	}
	raw, err := s.proc.ReadUntil([]byte(prompt), effective)
	if err != nil {
		var aclErr *pacsyserr.ACLError
		if errors.As(err, &aclErr) {
			return "", err
		}
		return "", &pacsyserr.ACLError{Message: err.Error(), Cause: err}
	}

	// The first line is the echoed command; everything after it is
	// the command's actual output.
	text := strings.TrimSpace(string(raw))
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:]), nil
	}
	return "", nil
}

// Close ends the ACL process. Does not affect the underlying
// sshtransport.Client, which may host other sessions. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.proc.Close()
}

// stripACLOutput removes ACL prompt and echoed-command lines from the
// raw output of a one-shot script run.
func stripACLOutput(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.HasPrefix(line, "ACL>") {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Run executes a single ACL command as a one-shot script on client,
// with no session kept alive afterward.
func Run(ctx context.Context, client *sshtransport.Client, command string, timeout time.Duration) (string, error) {
	return RunScript(ctx, client, []string{command}, timeout)
}

// RunScript writes commands to a temporary remote file, runs it through
// the acl interpreter, and removes the file regardless of outcome.
// This is the teacher-equivalent of the Python bindings' always-script-
// mode one-shot execution: no interactive process is kept around.
func RunScript(ctx context.Context, client *sshtransport.Client, commands []string, timeout time.Duration) (string, error) {
	if len(commands) == 0 {
		return "", errors.New("commands list cannot be empty")
	}

	scriptPath := fmt.Sprintf("/tmp/pacsys-acl-%s", randomSuffix())
	content := strings.Join(commands, "\n") + "\n"

	writeResult, err := client.ExecWithInput(ctx, fmt.Sprintf("cat > %s", scriptPath), content)
	if err != nil || writeResult.ExitCode != 0 {
		msg := "failed to write ACL script"
		if writeResult.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(writeResult.Stderr))
		}
		return "", &pacsyserr.ACLError{Message: msg, Cause: err}
	}

	defer client.Exec(ctx, fmt.Sprintf("rm -f %s", scriptPath))

	result, err := client.Exec(ctx, fmt.Sprintf("acl %s", scriptPath))
	if err != nil {
		return "", &pacsyserr.ACLError{Message: "ACL script failed", Cause: err}
	}
	if result.ExitCode != 0 {
		return "", &pacsyserr.ACLError{Message: fmt.Sprintf("ACL script failed: %s", strings.TrimSpace(result.Stderr))}
	}

	return stripACLOutput(result.Stdout), nil
}

func randomSuffix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "tmp"
	}
	return hex.EncodeToString(b)
}
