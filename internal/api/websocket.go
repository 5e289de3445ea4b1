package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/bridges/tasmota"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// EventSnapshot carries the summary of every device a client follows. It
// is sent right after the client subscribes to device state changes.
const EventSnapshot = "device.snapshot"

// WSAllChannels subscribes a client to every event channel.
const WSAllChannels = "*"

// eventChannels are the channels a client may subscribe to.
var eventChannels = []string{
	WSAllChannels,
	tasmota.EventStateChanged,
	tasmota.EventConnected,
	tasmota.EventDisconnected,
	automation.EventRoutineCompleted,
}

const (
	wsSendBufferSize        = 256
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// WSMessage is a message sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects event channels and, optionally, the devices a
// client hears about. An empty Devices list means every device.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// Hub fans device and routine events out to WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	snapshot func() []tasmota.Summary
}

// NewHub creates a hub. Unset config values fall back to defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// SetSnapshot installs the source of EventSnapshot payloads.
func (h *Hub) SetSnapshot(fn func() []tasmota.Summary) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Broadcast sends an event to every client subscribed to channel that
// follows the device the payload names. It never blocks: a client whose
// buffer is full misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "channel", channel, "error", err)
		return
	}
	deviceID := eventDevice(payload)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(channel, deviceID) {
			c.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// eventDevice extracts the device ID an event payload is about.
func eventDevice(payload any) string {
	switch p := payload.(type) {
	case tasmota.StateEvent:
		return p.DeviceID
	case tasmota.ConnectionEvent:
		return p.DeviceID
	case map[string]any:
		id, _ := p["device_id"].(string)
		return id
	}
	return ""
}

// wsClient is one connection. send is never closed; done tells the writer
// to stop.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	channels map[string]bool
	devices  map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and serves it until the client
// goes away. Authentication, when enabled, has already happened.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		subject:  subjectFrom(r.Context()),
		send:     make(chan []byte, wsSendBufferSize),
		done:     make(chan struct{}),
		channels: make(map[string]bool),
		devices:  make(map[string]bool),
	}
	s.hub.add(c)
	defer s.hub.remove(c)

	go c.writeLoop()
	c.readLoop()
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client too slow, event dropped", "subject", c.subject)
	}
}

func (c *wsClient) wants(channel, deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.channels[WSAllChannels] && !c.channels[channel] {
		return false
	}
	return len(c.devices) == 0 || deviceID == "" || c.devices[deviceID]
}

func (c *wsClient) readLoop() {
	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	if err := extend(); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any message counts.
		if err := extend(); err != nil {
			return
		}
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	cfg := c.hub.cfg
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer ping.Stop()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case <-c.done:
			return
		case data := <-c.send:
			err = write(websocket.TextMessage, data)
		case <-ping.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			c.close()
			return
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.unsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *wsClient) subscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.reply(req.ID, WSTypeError, errorPayload("subscribe needs a list of channels"))
		return
	}
	for _, ch := range sub.Channels {
		if !slices.Contains(eventChannels, ch) {
			c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+ch))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = true
	}
	for _, id := range sub.Devices {
		c.devices[id] = true
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"subject", c.subject, "channels", sub.Channels, "devices", sub.Devices)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels, "devices": sub.Devices})

	if slices.Contains(sub.Channels, WSAllChannels) || slices.Contains(sub.Channels, tasmota.EventStateChanged) {
		c.sendSnapshot()
	}
}

func (c *wsClient) unsubscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid unsubscribe payload"))
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, id := range sub.Devices {
		delete(c.devices, id)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels, "devices": sub.Devices})
}

// sendSnapshot gives a new subscriber the devices it follows, so it does
// not have to wait for the next change.
func (c *wsClient) sendSnapshot() {
	c.hub.mu.RLock()
	fn := c.hub.snapshot
	c.hub.mu.RUnlock()
	if fn == nil {
		return
	}

	c.mu.RLock()
	summaries := slices.DeleteFunc(fn(), func(s tasmota.Summary) bool {
		return len(c.devices) > 0 && !c.devices[s.ID]
	})
	c.mu.RUnlock()

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventSnapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   summaries,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal snapshot", "error", err)
		return
	}
	c.enqueue(data)
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
