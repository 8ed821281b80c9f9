package monitor

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from the operator network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans perception-cycle updates out to connected websocket clients. A
// client that cannot keep up is disconnected rather than allowed to stall
// the broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client until it
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("monitor: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Drain control frames; client writes are ignored.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends v as JSON to every client. Write failures drop the client.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(v); err != nil {
			monitoring.Logf("monitor: dropping websocket client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
