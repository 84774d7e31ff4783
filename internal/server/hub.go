package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/bus"
	"github.com/OskarRg/neurohackathon/internal/logging"
	"github.com/OskarRg/neurohackathon/internal/metrics"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Message is the envelope pushed to GUI clients.
type Message struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// wireTypes maps bus events onto the message types the GUI listens for.
var wireTypes = map[bus.EventType]string{
	bus.EventTypeSnapshot:             "snapshot",
	bus.EventTypeAcquisitionStatus:    "source_status",
	bus.EventTypeStateChanged:         "state_changed",
	bus.EventTypeRecovered:            "recovered",
	bus.EventTypeInterventionStarted:  "intervention",
	bus.EventTypeInterventionText:     "intervention",
	bus.EventTypeInterventionRejected: "intervention",
	bus.EventTypeInterventionDone:     "intervention_done",
	bus.EventTypeAvatarState:          "avatar",
	bus.EventTypeConfigReloaded:       "config_reloaded",
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans bus events out to every connected websocket client. A client
// that cannot keep up is dropped rather than slowing the others.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Attach subscribes the hub to every event type it forwards.
func (h *Hub) Attach(b *bus.EventBus) {
	types := make([]bus.EventType, 0, len(wireTypes))
	for t := range wireTypes {
		types = append(types, t)
	}
	b.SubscribeMultiple(types, h.HandleEvent)
}

// HandleEvent translates one bus event and broadcasts it.
func (h *Hub) HandleEvent(e bus.Event) {
	wire, ok := wireTypes[e.Type]
	if !ok {
		return
	}
	h.Broadcast(Message{Type: wire, Timestamp: e.Timestamp, Data: e.Data})
}

// Broadcast sends msg to all clients without blocking.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to encode message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Msg("Client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

// Log streams one log line to the clients' log view.
func (h *Hub) Log(entry logging.LogEntry) {
	h.Broadcast(Message{Type: "log", Timestamp: time.Now(), Data: map[string]any{"entry": entry}})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) register(conn *websocket.Conn, hello []byte) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if hello != nil {
		c.send <- hello
	}
	h.clients[c] = struct{}{}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// serve owns conn until the client goes away. Incoming frames are only read
// to process control messages.
func (h *Hub) serve(conn *websocket.Conn, hello Message) {
	data, err := json.Marshal(hello)
	if err != nil {
		data = nil
	}
	c, ok := h.register(conn, data)
	if !ok {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
