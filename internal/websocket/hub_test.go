package websocket_test

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

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/websocket"
)

const board = "yo1yv1q5:4xk906k0"

func startHub(t *testing.T, current websocket.CurrentFunc) (*websocket.Hub, *gorillaws.Conn) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(current, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hub, conn
}

func readMessage(t *testing.T, conn *gorillaws.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func subscribe(t *testing.T, conn *gorillaws.Conn) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(websocket.ClientMessage{Type: websocket.MessageTypeSubscribe, Board: board}))
	ack := readMessage(t, conn)
	require.Equal(t, "subscribed", ack["type"])
}

func TestHub_BroadcastAfterSubscribe(t *testing.T) {
	loading := func(context.Context, string) (*domain.Record, error) {
		return nil, domain.ErrRecordLoading
	}
	hub, conn := startHub(t, loading)
	subscribe(t, conn)

	require.Eventually(t, func() bool { return hub.GetSubscriberCount(board) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.GetTotalConnections())

	hub.BroadcastRecord(board, &domain.Record{Holder: "Alice", Time: "01:01:01"})

	msg := readMessage(t, conn)
	assert.Equal(t, websocket.MessageTypeRecordLoaded, msg["type"])
	assert.Equal(t, board, msg["board"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", data["holder"])
}

func TestHub_SubscribeAfterLoad(t *testing.T) {
	loaded := func(_ context.Context, b string) (*domain.Record, error) {
		return &domain.Record{Holder: "Alice", Time: "01:01:01"}, nil
	}
	_, conn := startHub(t, loaded)
	subscribe(t, conn)

	msg := readMessage(t, conn)
	assert.Equal(t, websocket.MessageTypeRecordLoaded, msg["type"])
}

func TestHub_SubscribeToEmptyBoard(t *testing.T) {
	empty := func(context.Context, string) (*domain.Record, error) {
		return nil, domain.ErrNoRecord
	}
	hub, conn := startHub(t, empty)
	subscribe(t, conn)

	msg := readMessage(t, conn)
	assert.Equal(t, websocket.MessageTypeNoRecord, msg["type"])

	hub.BroadcastRecord("other:board", &domain.Record{Holder: "Bob"})
	require.NoError(t, conn.WriteJSON(websocket.ClientMessage{Type: websocket.MessageTypePing}))
	pong := readMessage(t, conn)
	assert.Equal(t, websocket.MessageTypePong, pong["type"], "other boards must not be delivered")
}

func TestHub_SubscribeWithoutBoard(t *testing.T) {
	_, conn := startHub(t, nil)

	require.NoError(t, conn.WriteJSON(websocket.ClientMessage{Type: websocket.MessageTypeSubscribe}))
	msg := readMessage(t, conn)
	assert.Equal(t, websocket.MessageTypeError, msg["type"])
}
