// Package broadcast fans grid updates out to connected viewers over
// WebSocket. Delivery is fire-and-forget: a slow or dead viewer is evicted,
// never allowed to block the payment path or other viewers.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixelwall/pixelwall/internal/grid"
	"github.com/pixelwall/pixelwall/internal/metrics"
)

// Hub tracks connected viewers and broadcasts events to all of them.
type Hub struct {
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	sendBuffer   int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub. writeTimeout bounds each frame write; sendBuffer is
// the per-client queue depth — a viewer that falls further behind than that
// is evicted.
func NewHub(logger *slog.Logger, writeTimeout time.Duration, sendBuffer int) *Hub {
	return &Hub{
		logger:       logger,
		writeTimeout: writeTimeout,
		sendBuffer:   sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers connect from the campaign page on any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes the connection to broadcasts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ConnectedViewers.Inc()

	go h.writePump(c)
	go h.readPump(c)
}

// CellsRevealed implements processor.Broadcaster.
func (h *Hub) CellsRevealed(ev grid.RevealEvent) {
	h.broadcast(ev)
}

// MessageOnly implements processor.Broadcaster.
func (h *Hub) MessageOnly(ev grid.MessageEvent) {
	h.broadcast(ev)
}

// broadcast marshals the event once and enqueues it for every client.
// A client with a full queue is evicted on the spot.
func (h *Hub) broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal broadcast event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("evicting slow viewer")
			h.removeLocked(c)
		}
	}
}

// ClientCount reports the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close evicts all viewers and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked must be called with h.mu held. Closing c.send stops the write
// pump; broadcast also holds h.mu, so no send races the close.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
	metrics.ConnectedViewers.Dec()
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("viewer write failed", "error", err)
			h.remove(c)
			return
		}
	}
}

// readPump discards inbound frames; viewers are read-only subscribers. It
// exists to process control frames and to notice when the peer goes away.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
