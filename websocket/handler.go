package websocket

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Santoshkurmi/pro-cache-testing/config"
	"github.com/Santoshkurmi/pro-cache-testing/metrics"
	"github.com/Santoshkurmi/pro-cache-testing/registry"
	"github.com/Santoshkurmi/pro-cache-testing/state"
	"github.com/Santoshkurmi/pro-cache-testing/token"
)

// Handler admits push sessions and runs their duplex loops.
type Handler struct {
	tokens   *token.Registry
	store    *state.Store
	sessions *registry.Registry
	cfg      *config.WebSocketConfig
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewHandler creates the push-session handler. ctx cancellation closes
// every live session with a going-away frame.
func NewHandler(ctx context.Context, tokens *token.Registry, store *state.Store,
	sessions *registry.Registry, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		tokens:   tokens,
		store:    store,
		sessions: sessions,
		cfg:      cfg,
		ctx:      ctx,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket runs one session from admission to teardown.
//
// Order matters: the initial snapshot is composed and written before the
// session joins the registry, so a client cannot miss an update issued
// between its snapshot and its first live delta.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		metrics.AuthFailures.WithLabelValues("missing_token").Inc()
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	cred, ok := h.tokens.Lookup(tok)
	if !ok {
		metrics.AuthFailures.WithLabelValues("unknown_token").Inc()
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	metrics.AuthSuccess.Inc()

	sessionID := uuid.New().String()
	c := newClient(sessionID, conn, h.cfg)

	if h.cfg.MessageSizeLimit > 0 {
		conn.SetReadLimit(h.cfg.MessageSizeLimit)
	}

	// Initial state sync, before registration.
	snapshot := h.store.InitialSnapshot(cred.ProjectID)
	if err := c.writeJSON(snapshot); err != nil {
		log.Printf("Failed to send initial snapshot to session %s: %v", sessionID, err)
		c.close(websocket.CloseInternalServerErr, "Snapshot failed")
		return
	}

	sess := &registry.Session{
		ID:        sessionID,
		ProjectID: cred.ProjectID,
		UserID:    cred.UserID,
		Outbound:  make(chan []byte, h.cfg.OutboundBuffer),
	}
	h.sessions.Join(sess)
	metrics.ActiveSessions.Inc()
	metrics.TotalSessions.Inc()
	log.Printf("Session %s connected (project=%s user=%s)", sessionID, cred.ProjectID, cred.UserID)

	// Teardown runs exactly once no matter which side of the loop failed.
	defer func() {
		h.sessions.Leave(cred.ProjectID, sessionID)
		metrics.ActiveSessions.Dec()
		c.close(websocket.CloseNormalClosure, "Session closed")
		log.Printf("Session %s disconnected", sessionID)
	}()

	c.startPing()
	go h.writePump(c, sess)

	h.readLoop(c)
}

// writePump drains the session's outbound channel onto the socket. A write
// failure or server shutdown closes the session; the read loop then
// unblocks on the dead connection.
func (h *Handler) writePump(c *client, sess *registry.Session) {
	for {
		select {
		case payload := <-sess.Outbound:
			if err := c.writeMessage(payload); err != nil {
				log.Printf("Failed to push to session %s: %v", sess.ID, err)
				c.close(websocket.CloseInternalServerErr, "Write failure")
				return
			}
			metrics.MessagesSent.Inc()
		case <-h.ctx.Done():
			c.close(websocket.CloseGoingAway, "Server shutting down")
			return
		case <-c.done:
			return
		}
	}
}

// readLoop consumes inbound frames until the peer closes or errors.
// Clients are receive-only participants: application frames are discarded,
// and pings are answered by the protocol-level handler the gorilla library
// installs by default.
func (h *Handler) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				log.Printf("Read error from session %s: %v", c.id, err)
			}
			return
		}
	}
}
