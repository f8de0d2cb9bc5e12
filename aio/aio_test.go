package aio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beauremus/pacsys/aio"
	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

// fakeBackend lets each test control how long Get/Read/Write block, so
// the cancellation race can be exercised deterministically.
type fakeBackend struct {
	delay   time.Duration
	reading value.Reading
	caps    backend.CapabilitySet
}

func (f *fakeBackend) Capabilities() backend.CapabilitySet { return f.caps }

func (f *fakeBackend) Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error) {
	time.Sleep(f.delay)
	return *f.reading.Value, nil
}

func (f *fakeBackend) Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error) {
	time.Sleep(f.delay)
	return f.reading, nil
}

func (f *fakeBackend) GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error) {
	time.Sleep(f.delay)
	out := make([]value.Reading, len(drfs))
	for i := range drfs {
		out[i] = f.reading
	}
	return out, nil
}

func (f *fakeBackend) Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error) {
	time.Sleep(f.delay)
	return value.WriteResult{Drf: drf}, nil
}

func (f *fakeBackend) WriteMany(ctx context.Context, settings []backend.Setting, timeout time.Duration) ([]value.WriteResult, error) {
	time.Sleep(f.delay)
	out := make([]value.WriteResult, len(settings))
	for i, s := range settings {
		out[i] = value.WriteResult{Drf: s.Drf}
	}
	return out, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error) {
	time.Sleep(f.delay)
	return subscription.New(1, drfs, callback, onError, nil), nil
}

func (f *fakeBackend) Remove(handle *subscription.Handle) error { return nil }
func (f *fakeBackend) StopStreaming() error                     { return nil }
func (f *fakeBackend) Close() error                              { return nil }

func TestWrap_ReturnsInnerResultWhenFasterThanContext(t *testing.T) {
	scalar := value.NewScalar(42.0)
	inner := &fakeBackend{delay: 10 * time.Millisecond, reading: value.Reading{Drf: "M:OUTTMP", Value: &scalar}}
	be := aio.Wrap(inner)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r, err := be.Get(ctx, "M:OUTTMP", 0)
	require.NoError(t, err)
	assert.Equal(t, "M:OUTTMP", r.Drf)
}

func TestWrap_CancelledContextReturnsCancelledImmediately(t *testing.T) {
	scalar := value.NewScalar(42.0)
	inner := &fakeBackend{delay: time.Hour, reading: value.Reading{Drf: "M:OUTTMP", Value: &scalar}}
	be := aio.Wrap(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := be.Get(ctx, "M:OUTTMP", 0)
	require.Error(t, err)
	var cancelled *pacsyserr.Cancelled
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "Get", cancelled.Operation)
}

func TestWrap_CapabilitiesPassesThrough(t *testing.T) {
	inner := &fakeBackend{caps: backend.NewCapabilitySet(backend.CapRead, backend.CapStream)}
	be := aio.Wrap(inner)
	assert.True(t, be.Capabilities().Has(backend.CapRead))
	assert.False(t, be.Capabilities().Has(backend.CapWrite))
}

func TestWrap_WriteRacesContext(t *testing.T) {
	inner := &fakeBackend{delay: time.Hour}
	be := aio.Wrap(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := be.Write(ctx, "M:OUTTMP", value.NewScalar(1.0), 0)
	require.Error(t, err)
	var cancelled *pacsyserr.Cancelled
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "Write", cancelled.Operation)
}
