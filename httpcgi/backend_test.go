package httpcgi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/httpcgi"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/value"
)

func TestCapabilities_ReadBatchOnly(t *testing.T) {
	b := httpcgi.New("", 0, nil)
	caps := b.Capabilities()
	assert.True(t, caps.Has(backend.CapRead))
	assert.True(t, caps.Has(backend.CapBatch))
	assert.False(t, caps.Has(backend.CapWrite))
	assert.False(t, caps.Has(backend.CapStream))
	assert.False(t, caps.Has(backend.CapAuth))
}

func TestGet_ScalarValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "M:OUTTMP = 72.3 DegF")
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	reading, err := b.Get(context.Background(), "M:OUTTMP", 0)
	require.NoError(t, err)
	require.True(t, reading.Ok())
	scalar, ok := reading.Value.AsScalar()
	require.True(t, ok)
	assert.InDelta(t, 72.3, scalar, 0.0001)
}

func TestGetMany_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "M:OUTTMP = 72.3 DegF\nG:AMANDA = 1.0")
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	readings, err := b.GetMany(context.Background(), []string{"M:OUTTMP", "G:AMANDA"}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "M:OUTTMP", readings[0].Drf)
	assert.Equal(t, "G:AMANDA", readings[1].Drf)
	for _, r := range readings {
		assert.True(t, r.Ok())
	}
}

func TestGetMany_FallsBackOnLineCountMismatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q, _ := url.QueryUnescape(r.URL.RawQuery)
		switch {
		case calls == 1:
			// Batch request: return only one line for two devices.
			fmt.Fprint(w, "M:OUTTMP = 72.3")
		case q != "" && calls > 1:
			fmt.Fprint(w, "42.0")
		}
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	readings, err := b.GetMany(context.Background(), []string{"M:OUTTMP", "G:AMANDA"}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 3, calls) // 1 batch attempt + 2 individual fallbacks
}

func TestGetMany_FallsBackOnErrorLine(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, "M:OUTTMP = 72.3\nInvalid device name - DIO_NO_SUCH")
			return
		}
		fmt.Fprint(w, "72.3")
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	readings, err := b.GetMany(context.Background(), []string{"M:OUTTMP", "Z:BADDEV"}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, calls > 1)
}

func TestGetMany_BangErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "! device not found")
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	readings, err := b.GetMany(context.Background(), []string{"Z:BADDEV"}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.False(t, readings[0].Ok())
}

func TestRead_DeviceErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "! bad device")
	}))
	defer srv.Close()

	b := httpcgi.New(srv.URL, time.Second, nil)
	_, err := b.Read(context.Background(), "Z:BADDEV", 0)
	require.Error(t, err)
	var de *pacsyserr.DeviceError
	require.ErrorAs(t, err, &de)
}

func TestWrite_UnsupportedOperation(t *testing.T) {
	b := httpcgi.New("", 0, nil)
	_, err := b.Write(context.Background(), "M:OUTTMP", value.NewScalar(0), 0)
	require.Error(t, err)
	var unsupported *pacsyserr.UnsupportedOperation
	assert.ErrorAs(t, err, &unsupported)
}

func TestGetMany_TransportFailureYieldsRetry(t *testing.T) {
	b := httpcgi.New("http://127.0.0.1:1", 50*time.Millisecond, nil)
	readings, err := b.GetMany(context.Background(), []string{"M:OUTTMP"}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.False(t, readings[0].Ok())
}
