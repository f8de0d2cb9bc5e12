// Package audit implements the supervised proxy's dual-sink request
// log: a human-grep-friendly JSON-lines file and an optional
// wire-faithful tagged-binary file, sharing one monotonic per-request
// sequence number across a request and all of its streamed responses.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/beauremus/pacsys/policy"
)

// Binary record tags.
const (
	TagReadRequest    byte = 1
	TagSettingRequest byte = 2
	TagReadReply      byte = 3
	TagSettingReply   byte = 4
)

// Marshaler is satisfied by anything that can serialize itself to
// wire bytes — typically a generated protobuf message. Requests or
// responses that don't implement it still get a JSON-lines entry;
// they simply never produce a binary record.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// AuditLog is safe for concurrent use.
type AuditLog struct {
	mu sync.Mutex

	jsonFile   *os.File
	jsonWriter *bufio.Writer

	protoPath   string
	protoFile   *os.File
	protoWriter *bufio.Writer

	logResponses  bool
	flushInterval int

	seq              uint64
	writesSinceFlush int
	closed           bool
}

// Option configures New.
type Option func(*AuditLog)

// WithProtoPath enables the binary tagged-record sink at path. The
// file is created lazily on the first serializable record, never if
// every logged message is non-serializable.
func WithProtoPath(path string) Option {
	return func(a *AuditLog) { a.protoPath = path }
}

// WithResponses enables log_response entries. Disabled by default —
// only requests (and their allow/deny outcome) are logged.
func WithResponses(enabled bool) Option {
	return func(a *AuditLog) { a.logResponses = enabled }
}

// WithFlushInterval batches N writes (JSON and/or binary) between
// explicit flushes to disk. Must be positive; default 1 flushes every
// write.
func WithFlushInterval(n int) Option {
	return func(a *AuditLog) { a.flushInterval = n }
}

// New opens jsonPath (appending if it already exists) and applies
// opts. Returns an error if flushInterval is non-positive.
func New(jsonPath string, opts ...Option) (*AuditLog, error) {
	a := &AuditLog{flushInterval: 1}
	for _, opt := range opts {
		opt(a)
	}
	if a.flushInterval <= 0 {
		return nil, fmt.Errorf("flush_interval must be positive, got %d", a.flushInterval)
	}

	f, err := os.OpenFile(jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit json file: %w", err)
	}
	a.jsonFile = f
	a.jsonWriter = bufio.NewWriter(f)
	return a, nil
}

// WritesSinceFlush reports the number of writes accumulated since the
// last flush, for tests and monitoring.
func (a *AuditLog) WritesSinceFlush() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writesSinceFlush
}

// FlushInterval reports the configured batch size.
func (a *AuditLog) FlushInterval() int {
	return a.flushInterval
}

type requestEntry struct {
	Seq       uint64   `json:"seq"`
	Dir       string   `json:"dir"`
	Peer      string   `json:"peer"`
	Method    string   `json:"method"`
	Drfs      []string `json:"drfs"`
	Allowed   bool     `json:"allowed"`
	Reason    *string  `json:"reason"`
	Timestamp string   `json:"ts"`
	FinalDrfs []string `json:"final_drfs,omitempty"`
}

type responseEntry struct {
	Seq       uint64 `json:"seq"`
	Dir       string `json:"dir"`
	Peer      string `json:"peer"`
	Method    string `json:"method"`
	Timestamp string `json:"ts"`
}

// LogRequest records one inbound RPC and its policy outcome, returning
// the sequence number assigned to it. Every response to this request
// (via LogResponse) must be logged under the same seq.
func (a *AuditLog) LogRequest(ctx policy.RequestContext, decision policy.Decision) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	seq := a.seq

	var reason *string
	if decision.Reason != "" {
		reason = &decision.Reason
	}

	var finalDrfs []string
	if decision.Allowed && decision.Ctx != nil && !stringSlicesEqual(decision.Ctx.Drfs, ctx.Drfs) {
		finalDrfs = decision.Ctx.Drfs
	}

	entry := requestEntry{
		Seq:       seq,
		Dir:       "in",
		Peer:      ctx.Peer,
		Method:    ctx.RPCMethod,
		Drfs:      ctx.Drfs,
		Allowed:   decision.Allowed,
		Reason:    reason,
		Timestamp: now().Format(time.RFC3339Nano),
		FinalDrfs: finalDrfs,
	}

	if err := a.writeJSON(entry); err != nil {
		return seq, err
	}
	if err := a.writeProtoIfSerializable(requestTag(ctx.RPCMethod), ctx.RawRequest); err != nil {
		return seq, err
	}
	a.countWrite()
	return seq, nil
}

// LogResponse records one response belonging to seq. A no-op if
// responses are disabled.
func (a *AuditLog) LogResponse(seq uint64, peer, method string, raw any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.logResponses {
		return nil
	}

	entry := responseEntry{
		Seq:       seq,
		Dir:       "out",
		Peer:      peer,
		Method:    method,
		Timestamp: now().Format(time.RFC3339Nano),
	}
	if err := a.writeJSON(entry); err != nil {
		return err
	}
	if err := a.writeProtoIfSerializable(replyTag(method), raw); err != nil {
		return err
	}
	a.countWrite()
	return nil
}

// Close flushes and closes both sinks. Idempotent.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	if a.jsonWriter != nil {
		if err := a.jsonWriter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.jsonFile != nil {
		if err := a.jsonFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.protoWriter != nil {
		if err := a.protoWriter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.protoFile != nil {
		if err := a.protoFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *AuditLog) writeJSON(entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.jsonWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) writeProtoIfSerializable(tag byte, raw any) error {
	if a.protoPath == "" || raw == nil {
		return nil
	}
	marshaler, ok := raw.(Marshaler)
	if !ok {
		return nil
	}
	payload, err := marshaler.Marshal()
	if err != nil {
		return nil // non-serializable in practice; skip the binary record
	}

	if a.protoFile == nil {
		f, err := os.OpenFile(a.protoPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open audit proto file: %w", err)
		}
		a.protoFile = f
		a.protoWriter = bufio.NewWriter(f)
	}

	if _, err := a.protoWriter.Write([]byte{tag}); err != nil {
		return err
	}
	if _, err := a.protoWriter.Write(encodeVarint(uint64(len(payload)))); err != nil {
		return err
	}
	_, err = a.protoWriter.Write(payload)
	return err
}

func (a *AuditLog) countWrite() {
	a.writesSinceFlush++
	if a.writesSinceFlush >= a.flushInterval {
		a.jsonWriter.Flush()
		if a.protoWriter != nil {
			a.protoWriter.Flush()
		}
		a.writesSinceFlush = 0
	}
}

func requestTag(method string) byte {
	if method == "Set" {
		return TagSettingRequest
	}
	return TagReadRequest
}

func replyTag(method string) byte {
	if method == "Set" {
		return TagSettingReply
	}
	return TagReadReply
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// encodeVarint returns v encoded as an unsigned LEB128 varint.
func encodeVarint(v uint64) []byte {
	var buf []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			break
		}
	}
	return buf
}

// now is a seam for deterministic tests; production always uses
// time.Now.
var now = time.Now
