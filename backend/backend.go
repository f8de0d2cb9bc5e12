// Package backend declares the uniform contract every pacsys backend
// implements: an immutable capability set, the read/write/subscribe
// operation surface, and its cooperative-concurrency twin.
package backend

import (
	"context"
	"time"

	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

// Capability is a single bit in a backend's immutable capability set.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapStream
	CapAuth
	CapBatch
)

// CapabilitySet is a bitset over {READ, WRITE, STREAM, AUTH, BATCH}.
type CapabilitySet uint8

// Has reports whether every bit in want is set.
func (s CapabilitySet) Has(want Capability) bool {
	return CapabilitySet(want)&s == CapabilitySet(want)
}

// Require returns UnsupportedOperation if any bit in want is missing.
func (s CapabilitySet) Require(backendName, operation string, want Capability) error {
	if !s.Has(want) {
		return &pacsyserr.UnsupportedOperation{Backend: backendName, Operation: operation}
	}
	return nil
}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// Setting pairs a device request string with the value to write.
type Setting struct {
	Drf   string
	Value value.Value
}

// Backend is the synchronous, blocking-I/O contract. Every operation
// accepts an optional timeout (zero means "no explicit budget"; the
// caller relies on ctx for cancellation).
type Backend interface {
	// Capabilities reports this backend's immutable capability set.
	Capabilities() CapabilitySet

	// Read unwraps Get, failing with *pacsyserr.DeviceError on a
	// negative error code.
	Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error)

	// Get returns the full Reading envelope for one device.
	Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error)

	// GetMany returns one Reading per input drf, order preserved.
	GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error)

	// Write issues a single setpoint write.
	Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error)

	// WriteMany issues a batch of setpoint writes, order preserved.
	WriteMany(ctx context.Context, settings []Setting, timeout time.Duration) ([]value.WriteResult, error)

	// Subscribe opens a live stream for drfs. If callback is non-nil,
	// the handle operates in callback mode and readings() is unusable;
	// onError, when non-nil, is invoked once with the first error.
	Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error)

	// Remove detaches a single subscription handle from this backend.
	Remove(handle *subscription.Handle) error

	// StopStreaming stops every subscription this backend owns.
	StopStreaming() error

	// Close releases the backend's resources. Idempotent.
	Close() error
}

// AioBackend is the cooperative-concurrency twin: identical operation
// names, each individually cancellable via ctx without tearing down the
// backend itself. Implementations share the DRF/capability/policy/audit
// contract layer with their Backend counterpart and duplicate only the
// I/O-bearing code paths.
type AioBackend interface {
	Capabilities() CapabilitySet

	Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error)
	Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error)
	GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error)
	Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error)
	WriteMany(ctx context.Context, settings []Setting, timeout time.Duration) ([]value.WriteResult, error)
	Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error)
	Remove(handle *subscription.Handle) error
	StopStreaming() error
	Close() error
}
