package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Santoshkurmi/pro-cache-testing/config"
)

// client wraps one upgraded connection with the write discipline the push
// loop, the ping ticker and teardown all share: a single write mutex and an
// exactly-once close.
type client struct {
	id         string
	conn       *websocket.Conn
	cfg        *config.WebSocketConfig
	mu         sync.Mutex
	pingTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

func newClient(id string, conn *websocket.Conn, cfg *config.WebSocketConfig) *client {
	return &client{
		id:   id,
		conn: conn,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// writeMessage writes one text frame under the write deadline.
func (c *client) writeMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// writeJSON writes v as one text frame under the write deadline.
func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	return c.conn.WriteJSON(v)
}

// startPing sends protocol pings on the configured interval until the
// client closes. A failed ping tears the session down.
func (c *client) startPing() {
	interval := time.Duration(c.cfg.PingInterval) * time.Second
	if interval <= 0 {
		return
	}
	c.pingTicker = time.NewTicker(interval)

	go func() {
		defer c.pingTicker.Stop()
		for {
			select {
			case <-c.pingTicker.C:
				if err := c.sendPing(); err != nil {
					log.Printf("Failed to send ping to session %s: %v", c.id, err)
					c.close(websocket.CloseInternalServerErr, "Ping failure")
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

func (c *client) sendPing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteControl(
		websocket.PingMessage,
		[]byte{},
		time.Now().Add(c.writeTimeout()),
	)
}

// close performs the close handshake and releases the connection. Safe to
// call from any goroutine; only the first call does anything.
func (c *client) close(code int, text string) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()

		err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(c.writeTimeout()),
		)
		if err != nil && err != websocket.ErrCloseSent {
			log.Printf("Error sending close message to session %s: %v", c.id, err)
		}

		c.conn.Close()
	})
}

func (c *client) writeTimeout() time.Duration {
	return time.Duration(c.cfg.WriteTimeout) * time.Second
}
