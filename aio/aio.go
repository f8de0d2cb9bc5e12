// Package aio provides the cooperative-concurrency twin of a
// backend.Backend. The Python original distinguishes two scheduling
// models — OS threads doing blocking I/O, and asyncio tasks doing
// suspending I/O — with separate code paths sharing only the
// interface contract. Go has one concurrency primitive, so the
// idiomatic rendition here is a single generic wrapper: every call
// runs the inner (blocking) backend in its own goroutine and races it
// against ctx, so cancellation abandons the caller's wait without
// tearing down the inner backend or its in-flight wire operation —
// the same cancellation contract spec.md assigns the cooperative
// surface.
package aio

import (
	"context"
	"time"

	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

// Backend adapts a blocking backend.Backend to backend.AioBackend:
// every method is individually cancellable via ctx without affecting
// the shared inner backend.
type Backend struct {
	inner backend.Backend
}

// Wrap returns the cooperative twin of inner.
func Wrap(inner backend.Backend) *Backend {
	return &Backend{inner: inner}
}

func (b *Backend) Capabilities() backend.CapabilitySet { return b.inner.Capabilities() }

type result[T any] struct {
	val T
	err error
}

// race runs fn in its own goroutine and returns as soon as either fn
// completes or ctx is cancelled. On cancellation, fn keeps running to
// completion in the background and its result is discarded — the
// inner backend's connection and any server-side state it touched are
// left exactly as a blocking call would have left them.
func race[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, &pacsyserr.Cancelled{Operation: operation}
	}
}

func (b *Backend) Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error) {
	return race(ctx, "Read", func() (value.Value, error) { return b.inner.Read(ctx, drf, timeout) })
}

func (b *Backend) Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error) {
	return race(ctx, "Get", func() (value.Reading, error) { return b.inner.Get(ctx, drf, timeout) })
}

func (b *Backend) GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error) {
	return race(ctx, "GetMany", func() ([]value.Reading, error) { return b.inner.GetMany(ctx, drfs, timeout) })
}

func (b *Backend) Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error) {
	return race(ctx, "Write", func() (value.WriteResult, error) { return b.inner.Write(ctx, drf, v, timeout) })
}

func (b *Backend) WriteMany(ctx context.Context, settings []backend.Setting, timeout time.Duration) ([]value.WriteResult, error) {
	return race(ctx, "WriteMany", func() ([]value.WriteResult, error) { return b.inner.WriteMany(ctx, settings, timeout) })
}

func (b *Backend) Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error) {
	return race(ctx, "Subscribe", func() (*subscription.Handle, error) {
		return b.inner.Subscribe(ctx, drfs, callback, onError)
	})
}

func (b *Backend) Remove(handle *subscription.Handle) error { return b.inner.Remove(handle) }
func (b *Backend) StopStreaming() error                     { return b.inner.StopStreaming() }
func (b *Backend) Close() error                              { return b.inner.Close() }

var _ backend.AioBackend = (*Backend)(nil)
