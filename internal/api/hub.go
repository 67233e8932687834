package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sla-monitor/internal/logging"
)

const hubWriteWait = 5 * time.Second

// Hub fans View changes out to local WebSocket consumers.
type Hub struct {
	connections map[*websocket.Conn]string // conn -> consumer id
	mutex       sync.Mutex
	max         int
	logger      *logging.Logger
}

func NewHub(max int, logger *logging.Logger) *Hub {
	if max <= 0 {
		max = 50
	}
	return &Hub{
		connections: make(map[*websocket.Conn]string),
		max:         max,
		logger:      logger.Component("hub"),
	}
}

// Add registers conn. It reports false when the hub is full.
func (h *Hub) Add(id string, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= h.max {
		h.logger.Warnf("Max connections reached, rejecting consumer %s", id)
		return false
	}
	h.connections[conn] = id
	h.logger.Infof("Added consumer %s (total: %d)", id, len(h.connections))
	return true
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if id, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		h.logger.Infof("Removed consumer %s (remaining: %d)", id, len(h.connections))
	}
}

func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// Send writes one message to a single registered connection.
func (h *Hub) Send(conn *websocket.Conn, message []byte) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	return conn.WriteMessage(websocket.TextMessage, message)
}

// Broadcast writes message to every connection, dropping those that fail.
func (h *Hub) Broadcast(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, id := range h.connections {
		_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send view to consumer %s: %v", id, err)
			delete(h.connections, conn)
			conn.Close()
		}
	}
}

// Close disconnects every consumer.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		conn.Close()
		delete(h.connections, conn)
	}
}
