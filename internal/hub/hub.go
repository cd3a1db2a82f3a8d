package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Broadcaster is the topic publish interface components emit through.
type Broadcaster interface {
	// Join adds a client to a topic. Joining twice is a no-op.
	Join(topic string, clientID uuid.UUID)

	// Leave removes a client from a topic. Unknown members are ignored.
	Leave(topic string, clientID uuid.UUID)

	// Emit broadcasts an event to every current member of a topic.
	Emit(topic, event string, payload any)
}

// Frame is the JSON shape pushed to downstream clients.
type Frame struct {
	Event string `json:"event"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// Config configures the hub.
type Config struct {
	SendBufferSize int           // Per-client outbound buffer
	WriteTimeout   time.Duration // Write deadline per frame
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBufferSize: 128,
		WriteTimeout:   10 * time.Second,
	}
}

// Hub tracks downstream clients and their topic memberships.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	topics  map[string]map[uuid.UUID]struct{}
}

// Client is one downstream WebSocket connection registered with the hub.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[uuid.UUID]*Client),
		topics:  make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register wraps an upgraded connection in a Client and starts its write
// pump. The caller owns the read side.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)

	h.logger.Debug("client registered", "client_id", c.id)
	return c
}

// Unregister removes a client from every topic and stops its write pump.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	for topic, members := range h.topics {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Debug("client unregistered", "client_id", c.id)
}

// ID returns the client's identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Join adds a client to a topic.
func (h *Hub) Join(topic string, clientID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return
	}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		h.topics[topic] = members
	}
	members[clientID] = struct{}{}
}

// Leave removes a client from a topic.
func (h *Hub) Leave(topic string, clientID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Members returns the current member count of a topic.
func (h *Hub) Members(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Emit broadcasts an event to every member of a topic. Clients whose
// buffers are full are dropped rather than allowed to stall the relay.
func (h *Hub) Emit(topic, event string, payload any) {
	data, err := json.Marshal(Frame{Event: event, Topic: topic, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal frame", "event", event, "topic", topic, "error", err)
		return
	}

	var lagging []*Client

	h.mu.RLock()
	for id := range h.topics[topic] {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range lagging {
		h.logger.Warn("disconnecting lagging client", "client_id", c.id, "topic", topic)
		h.Unregister(c)
	}
}

// Close disconnects every registered client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.topics = make(map[string]map[uuid.UUID]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// writePump drains a client's send buffer onto its connection.
func (h *Hub) writePump(c *Client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("client write failed", "client_id", c.id, "error", err)
			break
		}
	}
	c.conn.Close()
}
