package api

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/logging"
)

// ChannelRuleExecuted carries one event per processed rule execution.
const ChannelRuleExecuted = "rule.executed"

// Fallbacks for an unset websocket config section.
const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// Hub fans rule executions out to connected WebSocket clients.
//
// Clients subscribe to channels, optionally narrowed to a set of rule UIDs.
// Broadcasting never blocks on a slow client: its event is dropped.
type Hub struct {
	logger *logging.Logger

	readLimit int64
	pingEvery time.Duration
	readWait  time.Duration
	writeWait time.Duration

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// NewHub creates a hub. Zero config fields take defaults.
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
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return &Hub{
		logger:    logger,
		readLimit: int64(cfg.MaxMessageSize),
		pingEvery: ping,
		readWait:  ping + pong,
		writeWait: pong,
		clients:   make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
	if len(clients) > 0 {
		h.logger.Info("websocket clients disconnected", "clients", len(clients))
	}
}

// join adds a client. It reports false once the hub has stopped.
func (h *Hub) join(c *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
	return true
}

// leave removes a client. Only the caller that removes it from the map
// shuts it down, so the send queue is closed exactly once.
func (h *Hub) leave(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		c.shutdown()
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends payload to every client subscribed to channel. A non-empty
// ruleUID restricts delivery to clients whose filter admits it.
func (h *Hub) Publish(channel, ruleUID string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, c := range targets {
		if !c.wants(channel, ruleUID) {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket events dropped for slow clients", "channel", channel, "dropped", dropped)
	}
	if delivered > 0 {
		h.logger.Debug("websocket event published", "channel", channel, "rule_uid", ruleUID, "recipients", delivered)
	}
}

// RuleExecuted satisfies automation.Observer.
func (h *Hub) RuleExecuted(_ context.Context, exec *automation.RuleExecution) {
	h.Publish(ChannelRuleExecuted, exec.RuleUID, exec)
}

// subscription is the rule filter of one channel. An empty set admits
// every rule.
type subscription map[string]struct{}

func (s subscription) admits(ruleUID string) bool {
	if len(s) == 0 || ruleUID == "" {
		return true
	}
	_, ok := s[ruleUID]
	return ok
}

// subscriptionSet tracks the channels one client listens on.
type subscriptionSet struct {
	mu       sync.RWMutex
	channels map[string]subscription
}

func (s *subscriptionSet) add(channels, rules []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels == nil {
		s.channels = make(map[string]subscription)
	}
	for _, ch := range channels {
		filter := subscription{}
		for _, uid := range rules {
			filter[uid] = struct{}{}
		}
		s.channels[ch] = filter
	}
}

func (s *subscriptionSet) remove(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.channels, ch)
	}
}

func (s *subscriptionSet) matches(channel, ruleUID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter, ok := s.channels[channel]
	return ok && filter.admits(ruleUID)
}

func (s *subscriptionSet) list() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}
