package datapool_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beauremus/pacsys/datapool"
	"github.com/beauremus/pacsys/value"
)

type wireMsg struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	SubID    string          `json:"sub_id,omitempty"`
	Drfs     []string        `json:"drfs,omitempty"`
	Readings []map[string]any `json:"readings,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newFakeUpstream(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conns <- conn
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg wireMsg
				require.NoError(t, json.Unmarshal(data, &msg))
				switch msg.Type {
				case "getMany":
					reply := wireMsg{
						Type: "reply",
						ID:   msg.ID,
						Readings: []map[string]any{
							{"drf": msg.Drfs[0], "kind": "SCALAR", "scalar": 42.0},
						},
					}
					data, _ := json.Marshal(reply)
					conn.WriteMessage(websocket.TextMessage, data)
				case "subscribe":
					reply := wireMsg{
						Type:  "reading",
						SubID: msg.SubID,
						Readings: []map[string]any{
							{"drf": msg.Drfs[0], "kind": "SCALAR", "scalar": 7.0},
						},
					}
					data, _ := json.Marshal(reply)
					conn.WriteMessage(websocket.TextMessage, data)
				}
			}
		}()
	}))
	return srv, conns
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestBackend_GetMany(t *testing.T) {
	srv, _ := newFakeUpstream(t)
	defer srv.Close()

	be, err := datapool.Open(context.Background(), datapool.Config{URL: wsURL(srv.URL), PoolSize: 1})
	require.NoError(t, err)
	defer be.Close()

	readings, err := be.GetMany(context.Background(), []string{"M:OUTTMP"}, time.Second)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	scalar, ok := readings[0].Value.AsScalar()
	require.True(t, ok)
	assert.Equal(t, 42.0, scalar)
}

func TestBackend_WriteManyFailsWithoutAuth(t *testing.T) {
	srv, _ := newFakeUpstream(t)
	defer srv.Close()

	be, err := datapool.Open(context.Background(), datapool.Config{URL: wsURL(srv.URL), PoolSize: 1})
	require.NoError(t, err)
	defer be.Close()

	_, err = be.Write(context.Background(), "M:OUTTMP", value.NewScalar(0), time.Second)
	require.Error(t, err)
}

func TestBackend_SubscribeDispatchesReadings(t *testing.T) {
	srv, _ := newFakeUpstream(t)
	defer srv.Close()

	be, err := datapool.Open(context.Background(), datapool.Config{URL: wsURL(srv.URL), PoolSize: 1})
	require.NoError(t, err)
	defer be.Close()

	got := make(chan float64, 1)
	handle, err := be.Subscribe(context.Background(), []string{"M:OUTTMP"}, func(r value.Reading) {
		if scalar, ok := r.Value.AsScalar(); ok {
			got <- scalar
		}
	}, nil)
	require.NoError(t, err)
	defer be.Remove(handle)

	select {
	case v := <-got:
		assert.Equal(t, 7.0, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription reading")
	}
}
