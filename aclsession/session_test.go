package aclsession_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beauremus/pacsys/aclsession"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/sshtransport"
)

// fakeACLSession is a minimal sshtransport.Session that replays queued
// stdout chunks, mirroring the Python test suite's make_interactive_channel.
type fakeACLSession struct {
	mu      sync.Mutex
	chunks  [][]byte
	stdin   bytes.Buffer
	closed  bool
	exitNow chan struct{}
}

func newFakeACLSession(chunks [][]byte) *fakeACLSession {
	return &fakeACLSession{chunks: chunks, exitNow: make(chan struct{})}
}

func (f *fakeACLSession) StdinPipe() (io.WriteCloser, error) { return nopCloser{&f.stdin}, nil }
func (f *fakeACLSession) StdoutPipe() (io.Reader, error)     { return &queueReader{chunks: f.chunks}, nil }
func (f *fakeACLSession) StderrPipe() (io.Reader, error)     { return bytes.NewReader(nil), nil }
func (f *fakeACLSession) Start(cmd string) error             { return nil }
func (f *fakeACLSession) Wait() error                        { <-f.exitNow; return nil }
func (f *fakeACLSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.exitNow)
	}
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type queueReader struct {
	chunks [][]byte
	i      int
}

func (r *queueReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	r.i++
	return n, nil
}

var _ sshtransport.Session = (*fakeACLSession)(nil)

func newTestSession(t *testing.T, chunks [][]byte) (*aclsession.Session, *fakeACLSession) {
	t.Helper()
	fake := newFakeACLSession(chunks)
	proc, err := sshtransport.NewRemoteProcess(fake, "acl")
	require.NoError(t, err)
	_, err = proc.ReadUntil([]byte("\nACL> "), time.Second)
	require.NoError(t, err)
	return aclsession.NewSessionForTest(proc, time.Second), fake
}

func TestSend_ReturnsOutput(t *testing.T) {
	session, _ := newTestSession(t, [][]byte{
		[]byte("\nACL> "),
		[]byte("read M:OUTTMP\n\nM:OUTTMP       =  72.500 DegF\n\nACL> "),
	})
	defer session.Close()

	result, err := session.Send("read M:OUTTMP", 0)
	require.NoError(t, err)
	assert.Equal(t, "M:OUTTMP       =  72.500 DegF", result)
}

func TestSend_NoOutputCommand(t *testing.T) {
	session, _ := newTestSession(t, [][]byte{
		[]byte("\nACL> "),
		[]byte("myvar = M:OUTTMP\nACL> "),
	})
	defer session.Close()

	result, err := session.Send("myvar = M:OUTTMP", 0)
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func TestSend_OnClosedSessionRaises(t *testing.T) {
	session, _ := newTestSession(t, [][]byte{[]byte("\nACL> ")})
	require.NoError(t, session.Close())

	_, err := session.Send("read M:OUTTMP", 0)
	require.Error(t, err)
	var aclErr *pacsyserr.ACLError
	assert.ErrorAs(t, err, &aclErr)
}

func TestSend_MultipleSends(t *testing.T) {
	session, _ := newTestSession(t, [][]byte{
		[]byte("\nACL> "),
		[]byte("cmd1\n\noutput1\n\nACL> "),
		[]byte("cmd2\n\noutput2\n\nACL> "),
	})
	defer session.Close()

	r1, err := session.Send("cmd1", 0)
	require.NoError(t, err)
	r2, err := session.Send("cmd2", 0)
	require.NoError(t, err)
	assert.Equal(t, "output1", r1)
	assert.Equal(t, "output2", r2)
}

func TestDoubleClose_Safe(t *testing.T) {
	session, _ := newTestSession(t, [][]byte{[]byte("\nACL> ")})
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
}

func TestStripACLOutput_SingleCommand(t *testing.T) {
	text := "\nACL> read M:OUTTMP\n\nM:OUTTMP       =  7.313 DegF\n\nACL> \n"
	assert.Equal(t, "M:OUTTMP       =  7.313 DegF", aclsession.StripACLOutputForTest(text))
}

func TestStripACLOutput_EmptyOutput(t *testing.T) {
	text := "\nACL> set x 1\n\nACL> \n"
	assert.Equal(t, "", aclsession.StripACLOutputForTest(text))
}

func TestStripACLOutput_NoPrompts(t *testing.T) {
	assert.Equal(t, "just text", aclsession.StripACLOutputForTest("just text"))
}
