package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/config"
)

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives a message on a topic matching its filter.
// Handlers run on paho's delivery goroutine and should return quickly; a
// returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Subscription identifies one handler registered with Subscribe.
type Subscription struct {
	filter string
	id     uint64
}

// Filter returns the topic filter the subscription was made with.
func (s *Subscription) Filter() string { return s.filter }

// routeHandler is one subscriber on a route. awaitingRetained is set until
// the handler sees its first live message; only such handlers receive
// retained messages, so the replay a later subscriber triggers never
// reaches handlers that already hold newer state.
type routeHandler struct {
	fn               MessageHandler
	awaitingRetained atomic.Bool
}

func newRouteHandler(fn MessageHandler) *routeHandler {
	h := &routeHandler{fn: fn}
	h.awaitingRetained.Store(true)
	return h
}

// route is the fan-out list behind one broker subscription.
type route struct {
	qos      byte
	handlers map[uint64]*routeHandler
}

// Client is the rule engine's MQTT connection.
//
// All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu     sync.RWMutex
	routes map[string]*route
	nextID uint64

	connected atomic.Bool
	onConnect atomic.Pointer[func()]
	logger    atomic.Pointer[Logger]
}

// Connect dials the broker described by cfg. The initial attempt is bounded
// by a timeout; afterwards paho reconnects on its own and the client restores
// its subscriptions.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	c := newClient(cfg)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.connected.Store(false)
		c.log().Warn("mqtt connection lost", "error", err)
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected now so
	// callers can subscribe straight away.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, routes: make(map[string]*route)}
}

// handleConnect runs on initial connect and every reconnect.
func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.paho.Publish(Topics{}.SystemStatus(c.cfg.Broker.ClientID), byte(c.cfg.QoS), true,
		statusPayload(c.cfg.Broker.ClientID, "online", ""))

	if cb := c.onConnect.Load(); cb != nil {
		(*cb)()
	}
}

func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for filter, r := range c.routes {
		for _, h := range r.handlers {
			h.awaitingRetained.Store(true)
		}
		c.paho.Subscribe(filter, r.qos, c.dispatcher(filter))
	}
}

// SetLogger sets the logger used for handler errors and connection events.
func (c *Client) SetLogger(logger Logger) {
	c.logger.Store(&logger)
}

func (c *Client) log() Logger {
	if l := c.logger.Load(); l != nil && *l != nil {
		return *l
	}
	return noopLogger{}
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.onConnect.Store(&callback)
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected when the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(c.cfg.Broker.ClientID), byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultOpTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// Subscribe registers handler for messages matching filter. Handlers on the
// same filter share one route, but every call sends its own SUBSCRIBE and
// waits for the broker's answer, so each new handler receives the retained
// messages for its filter and learns whether the subscription succeeded.
// The route keeps the highest QoS requested.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) (*Subscription, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	c.nextID++
	sub := &Subscription{filter: filter, id: c.nextID}
	r, exists := c.routes[filter]
	if !exists {
		r = &route{qos: qos, handlers: make(map[uint64]*routeHandler)}
		c.routes[filter] = r
	}
	r.qos = max(r.qos, qos)
	r.handlers[sub.id] = newRouteHandler(handler)
	routeQoS := r.qos
	c.mu.Unlock()

	token := c.paho.Subscribe(filter, routeQoS, c.dispatcher(filter))
	err := waitToken(token, ErrSubscribeFailed)
	if err != nil {
		c.removeHandler(sub)
		return nil, err
	}
	c.log().Debug("mqtt subscribed", "filter", filter, "shared", exists)
	return sub, nil
}

// Unsubscribe removes one handler. The broker subscription is dropped when no
// handler remains for its filter. Unsubscribing twice is a no-op.
func (c *Client) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	if !c.removeHandler(sub) {
		return nil
	}
	if !c.IsConnected() {
		// Nothing to tell the broker; the route is already gone and will
		// not be restored.
		return nil
	}
	return waitToken(c.paho.Unsubscribe(sub.filter), ErrUnsubscribeFailed)
}

// removeHandler drops sub and reports whether its route became empty.
func (c *Client) removeHandler(sub *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.routes[sub.filter]
	if !ok {
		return false
	}
	if _, ok := r.handlers[sub.id]; !ok {
		return false
	}
	delete(r.handlers, sub.id)
	if len(r.handlers) > 0 {
		return false
	}
	delete(c.routes, sub.filter)
	return true
}

// SubscriptionCount returns the number of broker subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}

// HandlerCount returns the number of handlers registered for filter.
func (c *Client) HandlerCount(filter string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.routes[filter]; ok {
		return len(r.handlers)
	}
	return 0
}

// dispatcher fans a message out to every handler of filter. Handlers are
// looked up per message so subscriptions added later on a shared filter see
// it too.
func (c *Client) dispatcher(filter string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.mu.RLock()
		r, ok := c.routes[filter]
		var handlers []*routeHandler
		if ok {
			handlers = make([]*routeHandler, 0, len(r.handlers))
			for _, h := range r.handlers {
				handlers = append(handlers, h)
			}
		}
		c.mu.RUnlock()

		retained := msg.Retained()
		for _, h := range handlers {
			if retained && !h.awaitingRetained.Load() {
				continue
			}
			if !retained {
				h.awaitingRetained.Store(false)
			}
			c.deliver(h.fn, msg.Topic(), msg.Payload())
		}
	}
}

func (c *Client) deliver(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log().Error("mqtt handler panic recovered", "topic", topic, "panic", r)
		}
	}()
	if err := h(topic, payload); err != nil {
		c.log().Warn("mqtt handler returned error", "topic", topic, "error", err)
	}
}

func waitToken(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
