package websocket

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

	"github.com/Santoshkurmi/pro-cache-testing/config"
	"github.com/Santoshkurmi/pro-cache-testing/registry"
	"github.com/Santoshkurmi/pro-cache-testing/state"
	"github.com/Santoshkurmi/pro-cache-testing/token"
)

type harness struct {
	srv      *httptest.Server
	store    *state.Store
	tokens   *token.Registry
	sessions *registry.Registry
	cancel   context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	store := state.NewStore()
	tokens := token.NewRegistry()
	sessions := registry.NewRegistry()

	cfg := &config.WebSocketConfig{
		HandshakeTimeout: 5,
		WriteTimeout:     5,
		PingInterval:     0, // no pings in tests
		MessageSizeLimit: 2048,
		OutboundBuffer:   16,
	}

	h := NewHandler(ctx, tokens, store, sessions, cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &harness{srv: srv, store: store, tokens: tokens, sessions: sessions, cancel: cancel}
}

func (h *harness) wsURL(tok string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	if tok != "" {
		u += "?token=" + tok
	}
	return u
}

func (h *harness) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(tok), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) map[string]int64 {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var snap map[string]int64
	require.NoError(t, json.Unmarshal(payload, &snap))
	return snap
}

func TestAdmissionRejectsMissingToken(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmissionRejectsUnknownToken(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("never-registered"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInitialSnapshotSentFirst(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)
	h.store.RecordInvalidation("p1", "/a", 100)

	conn := h.dial(t, "tok-1")

	snap := readSnapshot(t, conn)
	assert.Equal(t, int64(100), snap["/a"])
}

func TestInitialSnapshotSeedsCatalogBaseline(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)
	h.store.SeedRoutes([]string{"/warm"})
	h.store.RecordInvalidation("p1", "/hot", h.store.ServerStart()+100)

	conn := h.dial(t, "tok-1")

	snap := readSnapshot(t, conn)
	require.Len(t, snap, 2)
	assert.Equal(t, h.store.ServerStart(), snap["/warm"])
	assert.Equal(t, h.store.ServerStart()+100, snap["/hot"])
}

func TestEmptySnapshotIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "fresh-project", 0)

	conn := h.dial(t, "tok-1")

	snap := readSnapshot(t, conn)
	assert.Empty(t, snap)

	// The session is live despite the empty snapshot.
	require.Eventually(t, func() bool {
		return h.sessions.Count("fresh-project") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionReceivesBroadcastAfterSnapshot(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)

	conn := h.dial(t, "tok-1")
	readSnapshot(t, conn)

	require.Eventually(t, func() bool {
		return h.sessions.Count("p1") == 1
	}, time.Second, 10*time.Millisecond)

	delivered := h.sessions.Broadcast("p1", []byte(`{"type":"invalidate-delta","data":{"/a":200},"drift_time":1}`), "")
	assert.Equal(t, 1, delivered)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string           `json:"type"`
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "invalidate-delta", msg.Type)
	assert.Equal(t, int64(200), msg.Data["/a"])
}

func TestCloseRemovesSessionFromRegistry(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)

	conn := h.dial(t, "tok-1")
	readSnapshot(t, conn)

	require.Eventually(t, func() bool {
		return h.sessions.Count("p1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
	))
	conn.Close()

	require.Eventually(t, func() bool {
		return h.sessions.Count("p1") == 0
	}, time.Second, 10*time.Millisecond)

	// A later broadcast finds no one; no error, no delivery attempt.
	assert.Equal(t, 0, h.sessions.Broadcast("p1", []byte("late"), ""))
}

func TestInboundFramesAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)

	conn := h.dial(t, "tok-1")
	readSnapshot(t, conn)

	require.Eventually(t, func() bool {
		return h.sessions.Count("p1") == 1
	}, time.Second, 10*time.Millisecond)

	// Clients are receive-only; an application frame must not disturb the
	// session.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"whatever":true}`)))

	delivered := h.sessions.Broadcast("p1", []byte("still-alive"), "")
	assert.Equal(t, 1, delivered)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("still-alive"), payload)
}

func TestSupersededTokenRejectedAtAdmission(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-old", "u1", "p1", 0)
	h.tokens.Register("tok-new", "u1", "p1", 0)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("tok-old"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := h.dial(t, "tok-new")
	readSnapshot(t, conn)
}

func TestServerShutdownClosesSessions(t *testing.T) {
	h := newHarness(t)
	h.tokens.Register("tok-1", "u1", "p1", 0)

	conn := h.dial(t, "tok-1")
	readSnapshot(t, conn)

	require.Eventually(t, func() bool {
		return h.sessions.Count("p1") == 1
	}, time.Second, 10*time.Millisecond)

	h.cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) ||
		strings.Contains(err.Error(), "close"), "expected a close, got: %v", err)
}
