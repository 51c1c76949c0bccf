// Package streaming broadcasts activity-loop and training events to
// connected operator clients over a websocket, using the same
// upgrader/ping-control-frame pattern this codebase's agent execution
// server uses for its own bidirectional connections, simplified here
// to one-way fan-out.
package streaming

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mscrnt/sentientos/internal/logging"
)

var log = logging.For("streaming")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pingInterval  = 20 * time.Second
	pingWriteWait = 5 * time.Second
	clientBacklog = 16
)

// Event is one broadcastable occurrence: a goal execution, a training
// episode boundary, or a service status change.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans Events out to every connected client, dropping events for a
// slow client rather than blocking the broadcaster on a stuck socket.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub returns a ready-to-use Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast fans out ev to every connected client, never blocking the
// caller: a client whose send channel is full misses this event and
// stays connected.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			log.Warn().Msg("streaming client backlog full, dropping event for it")
		}
	}
}

// ServeWS upgrades r to a websocket connection and streams Events to it
// until a write or ping to the client fails.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBacklog)}
	h.register(c)
	defer h.unregister(c)

	conn.SetCloseHandler(func(code int, text string) error { return nil })

	go h.readPump(conn)
	h.writePump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// readPump drains and discards client input, its only purpose being to
// notice disconnects and pong control frames.
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait)); err != nil {
				return
			}
		}
	}
}
