package proxy_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/beauremus/pacsys/audit"
	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/policy"
	"github.com/beauremus/pacsys/proxy"
	"github.com/beauremus/pacsys/proxy/pacsyspb"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

type fakeBackend struct {
	caps      backend.CapabilitySet
	readings  map[string]value.Reading
	writeErr  error
	writeSeen []backend.Setting
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		caps: backend.NewCapabilitySet(backend.CapRead, backend.CapWrite, backend.CapStream, backend.CapBatch),
		readings: map[string]value.Reading{
			"M:OUTTMP": {Drf: "M:OUTTMP", Value: ptr(value.NewScalar(72.5)), Timestamp: time.Unix(0, 0)},
		},
	}
}

func ptr(v value.Value) *value.Value { return &v }

func (b *fakeBackend) Capabilities() backend.CapabilitySet { return b.caps }

func (b *fakeBackend) Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error) {
	r, _ := b.Get(ctx, drf, timeout)
	return *r.Value, nil
}

func (b *fakeBackend) Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error) {
	if r, ok := b.readings[drf]; ok {
		return r, nil
	}
	return value.Reading{Drf: drf, ErrorCode: -1, Message: "no such device"}, nil
}

func (b *fakeBackend) GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error) {
	out := make([]value.Reading, len(drfs))
	for i, d := range drfs {
		out[i], _ = b.Get(ctx, d, timeout)
	}
	return out, nil
}

func (b *fakeBackend) Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error) {
	return value.WriteResult{Drf: drf}, b.writeErr
}

func (b *fakeBackend) WriteMany(ctx context.Context, settings []backend.Setting, timeout time.Duration) ([]value.WriteResult, error) {
	b.writeSeen = settings
	if b.writeErr != nil {
		return nil, b.writeErr
	}
	out := make([]value.WriteResult, len(settings))
	for i, s := range settings {
		out[i] = value.WriteResult{Drf: s.Drf}
	}
	return out, nil
}

func (b *fakeBackend) Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error) {
	h := subscription.New(1, nil, callback, onError, nil)
	return h, nil
}

func (b *fakeBackend) Remove(handle *subscription.Handle) error { return nil }
func (b *fakeBackend) StopStreaming() error                     { return nil }
func (b *fakeBackend) Close() error                              { return nil }

func newTestAudit(t *testing.T) *audit.AuditLog {
	t.Helper()
	a, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestServer_Read_Allowed(t *testing.T) {
	be := newFakeBackend()
	srv := proxy.New(be, newTestAudit(t), proxy.Config{
		Policies: []policy.Policy{policy.NewDeviceAccess([]string{"M:*"}, policy.ModeAllow)},
	})

	resp, err := srv.Read(context.Background(), &pacsyspb.ReadRequest{Drfs: []string{"M:OUTTMP"}})
	require.NoError(t, err)
	require.Len(t, resp.Readings, 1)
	assert.Equal(t, "M:OUTTMP", resp.Readings[0].Drf)
	assert.Equal(t, 72.5, resp.Readings[0].Value.Scalar)
}

func TestServer_Read_DeniedByDeviceAccess(t *testing.T) {
	be := newFakeBackend()
	srv := proxy.New(be, newTestAudit(t), proxy.Config{
		Policies: []policy.Policy{policy.NewDeviceAccess([]string{"N:*"}, policy.ModeAllow)},
	})

	_, err := srv.Read(context.Background(), &pacsyspb.ReadRequest{Drfs: []string{"M:OUTTMP"}})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
}

func TestServer_Set_RequiresToken(t *testing.T) {
	be := newFakeBackend()
	srv := proxy.New(be, newTestAudit(t), proxy.Config{Token: []byte("secret")})

	_, err := srv.Set(context.Background(), &pacsyspb.SetRequest{
		Settings: []*pacsyspb.Setting{{Drf: "M:OUTTMP", Value: &pacsyspb.Value{Kind: pacsyspb.ValueScalar, Scalar: 1}}},
	})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestServer_Set_ReadOnlyPolicyDenies(t *testing.T) {
	be := newFakeBackend()
	srv := proxy.New(be, newTestAudit(t), proxy.Config{Policies: []policy.Policy{policy.ReadOnly{}}})

	_, err := srv.Set(context.Background(), &pacsyspb.SetRequest{
		Settings: []*pacsyspb.Setting{{Drf: "M:OUTTMP", Value: &pacsyspb.Value{Kind: pacsyspb.ValueScalar, Scalar: 1}}},
	})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
}

func TestServer_Alarms_ReturnsEvents(t *testing.T) {
	be := newFakeBackend()
	be.readings["M:OUTTMP"] = value.Reading{Drf: "M:OUTTMP", Message: "HI LIMIT", Timestamp: time.Unix(1, 0)}
	srv := proxy.New(be, newTestAudit(t), proxy.Config{})

	resp, err := srv.Alarms(context.Background(), &pacsyspb.AlarmsRequest{Drfs: []string{"M:OUTTMP"}})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "HI LIMIT", resp.Events[0].Text)
}
