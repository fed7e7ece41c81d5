package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleet-track/internal/fleet/model"
)

// Session is the connection-scoped authenticated identity. It lives only in
// the hub and dies with the connection.
type Session struct {
	ConnectionID string
	UserID       string
	Role         model.Role
	LastSeen     time.Time
}

type Client struct {
	Session Session
	conn    *websocket.Conn
	send    chan []byte
}

// enqueue hands a frame to the client's write pump without blocking the
// caller. A full buffer means the client cannot keep up.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub is the session registry: every live authenticated connection, keyed
// by connection id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.Session.ConnectionID] = c
}

func (h *Hub) Remove(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connectionID)
}

func (h *Hub) Get(connectionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connectionID]
	return c, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Each snapshots the current clients and applies fn outside the lock, so a
// slow delivery cannot stall registration.
func (h *Hub) Each(fn func(*Client)) {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

func (h *Hub) Admins() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var admins []*Client
	for _, c := range h.clients {
		if c.Session.Role == model.RoleAdmin {
			admins = append(admins, c)
		}
	}
	return admins
}
