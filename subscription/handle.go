// Package subscription implements the buffered subscription handle that
// bridges a backend's push-style dispatch (_dispatch/_signalError/_signalStop)
// to a consumer's pull-style iteration, with bounded capacity, drop
// accounting, and first-error latching.
package subscription

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/value"
)

// DefaultCapacity is the bounded buffer size used when callers don't
// specify one.
const DefaultCapacity = 256

// dropWarnWindow throttles the "readings dropped" log line to at most
// once per window per handle.
const dropWarnWindow = 5 * time.Second

// Handle is safe for one producer and one consumer concurrently; the
// producer-side methods (Dispatch/SignalError/SignalStop) are additionally
// safe to call from any number of goroutines.
type Handle struct {
	mu       sync.Mutex
	buf      chan value.Reading
	stopped  bool
	err      error
	dropped  uint64
	lastWarn time.Time
	refIDs   []string

	callback func(value.Reading)
	onError  func(error)

	log *zap.Logger
}

// New builds a Handle with the given bounded capacity and reference IDs
// (the backend's internal subscription identifiers, returned verbatim by
// RefIDs). If callback is non-nil the handle operates in callback mode:
// dispatched readings are delivered synchronously to callback and
// Readings/Next are unusable.
func New(capacity int, refIDs []string, callback func(value.Reading), onError func(error), log *zap.Logger) *Handle {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	ids := make([]string, len(refIDs))
	copy(ids, refIDs)
	return &Handle{
		buf:      make(chan value.Reading, capacity),
		refIDs:   ids,
		callback: callback,
		onError:  onError,
		log:      log,
	}
}

// RefIDs returns a defensive copy of the backend-internal subscription
// identifiers this handle was created with.
func (h *Handle) RefIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, len(h.refIDs))
	copy(ids, h.refIDs)
	return ids
}

// IsCallbackMode reports whether this handle was constructed with a
// callback, making Readings/Next programmer errors.
func (h *Handle) IsCallbackMode() bool {
	return h.callback != nil
}

// Stopped reports whether a terminal signal (stop or error) has been
// delivered.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Dropped returns the count of readings discarded because the buffer was
// full when Dispatch was called.
func (h *Handle) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Dispatch delivers a reading from the backend. Once Stopped() is true
// this is a silent no-op. In callback mode the reading is delivered
// synchronously; in iterator mode it is enqueued, or dropped (with a
// throttled warning) if the buffer is full.
func (h *Handle) Dispatch(r value.Reading) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	cb := h.callback
	if cb != nil {
		h.mu.Unlock()
		cb(r)
		return
	}

	// The non-blocking send happens under the lock so a concurrent
	// SignalStop/SignalError cannot close buf in between.
	select {
	case h.buf <- r:
		h.mu.Unlock()
	default:
		h.dropped++
		var warn bool
		now := time.Now()
		if now.Sub(h.lastWarn) >= dropWarnWindow {
			h.lastWarn = now
			warn = true
		}
		dropped := h.dropped
		h.mu.Unlock()
		if warn {
			h.log.Warn("subscription buffer full, dropping reading",
				zap.Uint64("dropped_total", dropped),
				zap.String("drf", r.Drf))
		}
	}
}

// SignalError latches the first error and stops the handle. Later calls
// (whether SignalError or SignalStop) are no-ops.
func (h *Handle) SignalError(err error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.err = err
	h.stopped = true
	onError := h.onError
	h.mu.Unlock()
	close(h.buf)
	if onError != nil {
		onError(err)
	}
}

// SignalStop stops the handle cleanly, with no error. A no-op if already
// stopped (whether cleanly or with an error).
func (h *Handle) SignalStop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()
	close(h.buf)
}

// Next pulls the next reading. timeout semantics:
//   - timeout == nil: block until a reading is available or a terminal
//     signal has been observed and the buffer is drained.
//   - *timeout == 0: drain only what is buffered right now; never block.
//   - *timeout > 0: block for at most that wall-clock budget.
//
// Returns (reading, true, nil) for a delivered reading; (zero, false, nil)
// when the buffer is exhausted with no error (clean stop, or a timeout
// expired with nothing available); (zero, false, err) when the buffer is
// exhausted and the handle's latched error is non-nil.
func (h *Handle) Next(timeout *time.Duration) (value.Reading, bool, error) {
	if h.IsCallbackMode() {
		return value.Reading{}, false, &pacsyserr.UnsupportedOperation{Backend: "subscription.Handle", Operation: "Next (callback mode)"}
	}

	switch {
	case timeout == nil:
		r, ok := <-h.buf
		if ok {
			return r, true, nil
		}
		return value.Reading{}, false, h.latchedErr()
	case *timeout <= 0:
		select {
		case r, ok := <-h.buf:
			if ok {
				return r, true, nil
			}
			return value.Reading{}, false, h.latchedErr()
		default:
			return value.Reading{}, false, nil
		}
	default:
		timer := time.NewTimer(*timeout)
		defer timer.Stop()
		select {
		case r, ok := <-h.buf:
			if ok {
				return r, true, nil
			}
			return value.Reading{}, false, h.latchedErr()
		case <-timer.C:
			return value.Reading{}, false, nil
		}
	}
}

func (h *Handle) latchedErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Readings drains everything currently and subsequently available,
// calling yield for each reading, until the buffer is exhausted under the
// same timeout semantics as Next. It returns the same terminal error Next
// would have returned on the call that ended iteration.
func (h *Handle) Readings(timeout *time.Duration, yield func(value.Reading) bool) error {
	for {
		r, ok, err := h.Next(timeout)
		if !ok {
			return err
		}
		if !yield(r) {
			return nil
		}
	}
}
