package builtin

import (
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
)

var errBusDown = errors.New("bus down")

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type busSub struct {
	filter  string
	handler mqtt.MessageHandler
}

// fakeBus routes publishes to subscribers in-process.
type fakeBus struct {
	mu           sync.Mutex
	subs         map[*mqtt.Subscription]busSub
	sent         []published
	subscribeErr error
	publishErr   error

	// retained is handed to each new subscriber whose filter matches, as the
	// MQTT client does for every Subscribe.
	retained map[string][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[*mqtt.Subscription]busSub), retained: make(map[string][]byte)}
}

func (b *fakeBus) retain(topic, payload string) {
	b.mu.Lock()
	b.retained[topic] = []byte(payload)
	b.mu.Unlock()
}

func (b *fakeBus) Subscribe(filter string, _ byte, handler mqtt.MessageHandler) (*mqtt.Subscription, error) {
	b.mu.Lock()
	if b.subscribeErr != nil {
		b.mu.Unlock()
		return nil, b.subscribeErr
	}
	sub := &mqtt.Subscription{}
	b.subs[sub] = busSub{filter: filter, handler: handler}
	replay := make(map[string][]byte)
	for topic, payload := range b.retained {
		if mqtt.Match(filter, topic) {
			replay[topic] = payload
		}
	}
	b.mu.Unlock()

	for topic, payload := range replay {
		if err := handler(topic, payload); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func (b *fakeBus) Unsubscribe(sub *mqtt.Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	return nil
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.sent = append(b.sent, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

// deliver hands a message to every matching subscriber and returns the
// first handler error.
func (b *fakeBus) deliver(topic string, payload []byte) error {
	b.mu.Lock()
	var handlers []mqtt.MessageHandler
	for _, s := range b.subs {
		if mqtt.Match(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	var first error
	for _, h := range handlers {
		if err := h(topic, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (b *fakeBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *fakeBus) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *mockLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *mockLogger) last() logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return logEntry{}
	}
	return l.entries[len(l.entries)-1]
}

func configOf(t *testing.T, m map[string]any) *automation.Configuration {
	t.Helper()
	cfg, err := automation.ConfigurationFromMap(m)
	if err != nil {
		t.Fatalf("ConfigurationFromMap: %v", err)
	}
	return cfg
}

// eventRecorder collects trigger callbacks.
type eventRecorder struct {
	mu     sync.Mutex
	events []automation.Inputs
	notify chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{notify: make(chan struct{}, 64)}
}

func (r *eventRecorder) callback(in automation.Inputs) {
	r.mu.Lock()
	r.events = append(r.events, in)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *eventRecorder) all() []automation.Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]automation.Inputs(nil), r.events...)
}
