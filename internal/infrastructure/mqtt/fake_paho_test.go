package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// heldToken completes when release is closed, reporting whatever err
// returns at that point.
type heldToken struct {
	release <-chan struct{}
	err     func() error
}

func (t heldToken) Wait() bool { <-t.release; return true }
func (t heldToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.release:
		return true
	case <-time.After(d):
		return false
	}
}
func (t heldToken) Error() error          { return t.err() }
func (t heldToken) Done() <-chan struct{} { return t.release }

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is an in-process broker connection.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	subs         map[string]pahomqtt.MessageHandler
	subCalls     int
	unsubCalls   int
	published    []published
	subscribeErr error

	// retained is replayed to the callback of every successful SUBSCRIBE
	// whose filter matches, the way a broker answers a new subscription.
	retained map[string][]byte

	// hold, when set, keeps SUBSCRIBE tokens pending until it is closed.
	hold chan struct{}
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		connected: true,
		subs:      make(map[string]pahomqtt.MessageHandler),
		retained:  make(map[string][]byte),
	}
}

// retain stores a retained message on the broker.
func (f *fakePaho) retain(topic string, payload []byte) {
	f.mu.Lock()
	f.retained[topic] = payload
	f.mu.Unlock()
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return fakeToken{} }

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	f.mu.Unlock()
	return fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.subCalls++
	if f.hold != nil {
		release := f.hold
		f.mu.Unlock()
		return heldToken{release: release, err: func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.subscribeErr
		}}
	}
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return fakeToken{err: err}
	}
	f.subs[topic] = cb
	var replay []fakeMessage
	for t, payload := range f.retained {
		if Match(topic, t) {
			replay = append(replay, fakeMessage{topic: t, payload: payload, retained: true})
		}
	}
	f.mu.Unlock()

	for _, msg := range replay {
		cb(f, msg)
	}
	return fakeToken{}
}

func (f *fakePaho) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, cb)
	}
	return fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubCalls++
	for _, t := range topics {
		delete(f.subs, t)
	}
	return fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver hands a message to every broker subscription matching topic.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	var cbs []pahomqtt.MessageHandler
	for filter, cb := range f.subs {
		if Match(filter, topic) {
			cbs = append(cbs, cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(f, fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) lastPublished() (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return published{}, false
	}
	return f.published[len(f.published)-1], true
}

var errBrokerRejected = errors.New("not authorised")
