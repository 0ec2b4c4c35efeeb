package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-rules/internal/auth"
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

// wsQueueSize bounds the events waiting to be written to one client.
const wsQueueSize = 256

// WSMessage is the envelope of every frame exchanged with a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels. Rules, when set, limits rule events
// to those rule UIDs.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Rules    []string `json:"rules,omitempty"`
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var knownChannels = map[string]bool{
	ChannelRuleExecuted: true,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSClient is one authenticated WebSocket connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	role    auth.Role
	subs    subscriptionSet

	queueMu sync.Mutex
	queue   chan []byte
	stopped bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string, role auth.Role) *WSClient {
	return &WSClient{
		hub:     hub,
		conn:    conn,
		subject: subject,
		role:    role,
		queue:   make(chan []byte, wsQueueSize),
	}
}

// enqueue queues data without blocking. It reports false when the queue is
// full or the client has stopped.
func (c *WSClient) enqueue(data []byte) bool {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.stopped {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the queue; the write pump then closes the connection.
func (c *WSClient) shutdown() {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.queue)
	}
}

func (c *WSClient) wants(channel, ruleUID string) bool {
	return c.subs.matches(channel, ruleUID)
}

// handleWebSocket upgrades an authenticated request. The ticket query
// parameter comes from POST /auth/ws-ticket and is consumed here.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.validateTicket(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, entry.subject, entry.role)
	if !s.hub.join(client) {
		//nolint:errcheck // Best-effort close frame
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop()
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.readWait))
	}
	//nolint:errcheck // A failed deadline surfaces on the next read
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts as liveness.
		//nolint:errcheck // A failed deadline surfaces on the next read
		extend()
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(c.hub.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, open := <-c.queue:
			if !open {
				//nolint:errcheck // Peer may already be gone
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one client frame.
func (c *WSClient) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)

	case WSTypeSubscribe:
		sub, err := decodeSubscription(msg.Payload)
		if err != nil {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": err.Error()})
			return
		}
		c.subs.add(sub.Channels, sub.Rules)
		c.hub.logger.Info("websocket client subscribed",
			"subject", c.subject, "role", c.role, "channels", sub.Channels, "rules", sub.Rules)
		c.reply(msg.ID, WSTypeResponse, map[string]any{
			"subscribed": sub.Channels,
			"channels":   c.subs.list(),
		})

	case WSTypeUnsubscribe:
		sub, err := decodeSubscription(msg.Payload)
		if err != nil {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": err.Error()})
			return
		}
		c.subs.remove(sub.Channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{
			"unsubscribed": sub.Channels,
			"channels":     c.subs.list(),
		})

	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func decodeSubscription(raw json.RawMessage) (WSSubscribePayload, error) {
	var sub WSSubscribePayload
	if len(raw) == 0 {
		return sub, errors.New("payload is required")
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, errors.New("invalid subscription payload")
	}
	if len(sub.Channels) == 0 {
		return sub, errors.New("channels must not be empty")
	}
	for _, ch := range sub.Channels {
		if !knownChannels[ch] {
			return sub, errors.New("unknown channel: " + ch)
		}
	}
	return sub, nil
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
