package aclsession

import (
	"time"

	"github.com/beauremus/pacsys/sshtransport"
)

// NewSessionForTest builds a Session around an already-started
// RemoteProcess, skipping the initial-prompt handshake so tests can
// drive Send/Close directly against a fake process.
func NewSessionForTest(proc *sshtransport.RemoteProcess, timeout time.Duration) *Session {
	return &Session{proc: proc, timeout: timeout}
}

// StripACLOutputForTest exposes stripACLOutput to the external test package.
func StripACLOutputForTest(text string) string { return stripACLOutput(text) }
