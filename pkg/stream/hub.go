// Package stream pushes dispatch results to other clients of the same
// workspace over WebSocket, so multiple open dashboards converge without
// polling. Delivery is best-effort: a slow subscriber is dropped rather
// than allowed to block the fan-out.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

type client struct {
	conn *websocket.Conn
	send chan []byte

	// mu guards closed and serializes sends against the close of send, so
	// a publish racing a disconnect can never send on a closed channel.
	mu     sync.Mutex
	closed bool
}

// trySend queues msg without blocking. It reports false only when the
// subscriber's buffer is full; a client already shut down swallows the
// message silently.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks subscribers per workspace and fans published messages out to
// them.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is the reverse proxy's job in this deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: slog.Default().With("component", "stream"),
	}
}

// Subscribe upgrades the request and registers the connection under the
// workspace. It returns once the upgrade is done; pumps run in the
// background until the peer disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, workspaceID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	if !h.register(workspaceID, c) {
		_ = conn.Close()
		return nil
	}

	go h.writePump(workspaceID, c)
	go h.readPump(workspaceID, c)
	return nil
}

// register attaches the client under the workspace. It reports false when
// the hub is already closed.
func (h *Hub) register(workspaceID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.subs[workspaceID] == nil {
		h.subs[workspaceID] = make(map[*client]struct{})
	}
	h.subs[workspaceID][c] = struct{}{}
	return true
}

// Publish sends a JSON-encoded message to every subscriber of the
// workspace. Subscribers whose buffers are full are disconnected.
func (h *Hub) Publish(workspaceID string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("publish encode failed", "workspace_id", workspaceID, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.subs[workspaceID]))
	for c := range h.subs[workspaceID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(raw) {
			h.logger.Warn("subscriber too slow, dropping", "workspace_id", workspaceID)
			h.unsubscribe(workspaceID, c)
		}
	}
}

// Subscribers reports the current subscriber count for a workspace.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspaceID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ws, clients := range h.subs {
		for c := range clients {
			c.shutdown()
			delete(clients, c)
		}
		delete(h.subs, ws)
	}
}

func (h *Hub) unsubscribe(workspaceID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.subs[workspaceID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			c.shutdown()
			if len(clients) == 0 {
				delete(h.subs, workspaceID)
			}
		}
	}
}

func (h *Hub) writePump(workspaceID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unsubscribe(workspaceID, c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(workspaceID, c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the channel is server-to-client only.
// It exists to notice disconnects and answer pings.
func (h *Hub) readPump(workspaceID string, c *client) {
	defer h.unsubscribe(workspaceID, c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
