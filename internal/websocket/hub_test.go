package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"janitor/internal/infrastructure"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()
	server := httptest.NewServer(NewHandler(hub))
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PublishReachesClients(t *testing.T) {
	hub, server := newTestHub(t)

	first := dial(t, server, nil)
	second := dial(t, server, nil)
	assert.Equal(t, TypeConnection, readMessage(t, first).Type)
	assert.Equal(t, TypeConnection, readMessage(t, second).Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	ctx := infrastructure.WithTraceID(context.Background(), "trace-1")
	hub.Publish(ctx, TypeRunFinished, map[string]string{"job_id": "run_loop", "status": "success"})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeRunFinished, msg.Type)
		assert.Equal(t, "trace-1", msg.TraceID)
		assert.Equal(t, map[string]interface{}{"job_id": "run_loop", "status": "success"}, msg.Data)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server, nil)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server, nil)
	readMessage(t, conn)

	hub.Stop()
	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection is closed by the server")
	assert.Zero(t, hub.ClientCount())

	// publishing after stop never blocks
	hub.Publish(context.Background(), TypeRunStarted, nil)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	_, server := newTestHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_SameHostOrigin(t *testing.T) {
	_, server := newTestHub(t)

	conn := dial(t, server, http.Header{"Origin": {server.URL}})
	assert.Equal(t, TypeConnection, readMessage(t, conn).Type)
}
