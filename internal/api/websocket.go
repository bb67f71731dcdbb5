package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
	"github.com/nerrad567/gymdesk/internal/infrastructure/logging"
)

// Feed message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsAllEvents subscribes to every event type.
	wsAllEvents = "*"

	wsSendBufferSize  = 256
	wsEventBufferSize = 64
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload carries the event types for subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsFrame is an encoded event waiting to be fanned out.
type wsFrame struct {
	eventType string
	data      []byte
}

// Hub fans domain events out to admins watching the live feed. A single
// Run goroutine owns the set of connections; everything else talks to it
// over channels.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	register   chan *feedClient
	unregister chan *feedClient
	frames     chan wsFrame
	done       chan struct{}
	stopOnce   sync.Once
	connected  atomic.Int64
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		frames:     make(chan wsFrame, wsEventBufferSize),
		done:       make(chan struct{}),
	}
}

// Run owns the connection set until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*feedClient]struct{})
	drop := func(c *feedClient) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			c.stop()
			h.connected.Store(int64(len(clients)))
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			for c := range clients {
				drop(c)
			}
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.connected.Store(int64(len(clients)))
			h.logger.Debug("feed client connected", "user_id", c.userID, "clients", len(clients))

		case c := <-h.unregister:
			drop(c)
			h.logger.Debug("feed client disconnected", "user_id", c.userID, "clients", len(clients))

		case f := <-h.frames:
			sent := 0
			for c := range clients {
				if !c.wants(f.eventType) {
					continue
				}
				if !c.offer(f.data) {
					h.logger.Warn("dropping slow feed client", "user_id", c.userID)
					drop(c)
					continue
				}
				sent++
			}
			if sent > 0 {
				h.logger.Debug("event fanned out", "event_type", f.eventType, "recipients", sent)
			}
		}
	}
}

// Emit implements events.Sink. The event is queued for Run; when the queue
// is full the event is dropped for the feed only.
func (h *Hub) Emit(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ev.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev,
	})
	if err != nil {
		return err
	}

	select {
	case h.frames <- wsFrame{eventType: ev.Type, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("live feed queue full, event dropped", "event_type", ev.Type)
	}
	return nil
}

// ClientCount returns the number of connected feed clients.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// join hands c to Run. It reports false once the hub has shut down.
func (h *Hub) join(c *feedClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *feedClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header or whose Origin
// host matches the request host. The feed is cookie-authenticated.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleWebSocket upgrades an admin's request to the live event feed. The
// route is gated before this handler runs.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		quit:   make(chan struct{}),
		topics: make(map[string]struct{}),
		userID: user.ID,
	}
	if !s.hub.join(c) {
		conn.Close()
		return
	}

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// feedClient is one live feed connection. Only writeLoop writes to conn.
type feedClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	once   sync.Once
	userID string

	mu     sync.RWMutex
	topics map[string]struct{}
}

// stop signals writeLoop to close the connection. Safe to call repeatedly.
func (c *feedClient) stop() {
	c.once.Do(func() { close(c.quit) })
}

// offer queues data without blocking. It reports false when the buffer is
// full.
func (c *feedClient) offer(data []byte) bool {
	select {
	case <-c.quit:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *feedClient) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.topics[wsAllEvents]; ok {
		return true
	}
	_, ok := c.topics[eventType]
	return ok
}

func (c *feedClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.leave(c)
		c.stop()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read error", "user_id", c.userID, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; application
		// traffic counts as liveness too.
		extend() //nolint:errcheck // see above
		c.dispatch(data)
	}
}

func (c *feedClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.quit:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // closing anyway
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}

// dispatch handles one client frame.
func (c *feedClient) dispatch(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.setTopics(msg.Payload.Channels, true)
		c.hub.logger.Info("feed subscribed", "user_id", c.userID, "channels", msg.Payload.Channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": msg.Payload.Channels})
	case WSTypeUnsubscribe:
		c.setTopics(msg.Payload.Channels, false)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": msg.Payload.Channels})
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *feedClient) setTopics(topics []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if on {
			c.topics[t] = struct{}{}
		} else {
			delete(c.topics, t)
		}
	}
}

func (c *feedClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.offer(data)
}
