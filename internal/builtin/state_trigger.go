package builtin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
)

var itemStateChangeSchema = automation.TypeSchema{
	Label:       "Item state changed",
	Description: "Fires when an item's state on the MQTT bus changes",
	Parameters: []automation.ParameterDescriptor{
		{Name: "itemName", Type: automation.ParamText, Required: true, Description: "Item (device) identifier"},
		{Name: "property", Type: automation.ParamText, Description: "State property to watch; whole state when empty"},
		{Name: "previousState", Type: automation.ParamText, Description: "Only fire when changing from this value"},
		{Name: "state", Type: automation.ParamText, Description: "Only fire when changing to this value"},
	},
}

// stateMessage is what protocol bridges publish on graylogic/state/...
type stateMessage struct {
	DeviceID string         `json:"device_id"`
	State    map[string]any `json:"state"`
}

// itemStateChangeTrigger watches graylogic/state/+/{itemName}.
//
// The first state seen after arming is the baseline; retained messages
// delivered on subscribe therefore never fire.
type itemStateChangeTrigger struct {
	bus    Bus
	logger Logger

	item     string
	property string
	from     string
	hasFrom  bool
	to       string
	hasTo    bool

	mu      sync.Mutex
	sub     *mqtt.Subscription
	cb      automation.TriggerCallback
	last    string
	hasLast bool
}

func newItemStateChangeFactory(deps Deps) automation.HandlerFactory {
	return func(m automation.Module) (automation.Handler, error) {
		cfg := m.Configuration
		item, err := cfg.GetString("itemName", "")
		if err != nil {
			return nil, err
		}
		if item == "" {
			return nil, fmt.Errorf("itemName is empty")
		}
		property, err := cfg.GetString("property", "")
		if err != nil {
			return nil, err
		}

		t := &itemStateChangeTrigger{bus: deps.Bus, logger: deps.Logger, item: item, property: property}
		if t.from, err = cfg.GetString("previousState", ""); err != nil {
			return nil, err
		}
		t.hasFrom = cfg.Has("previousState")
		if t.to, err = cfg.GetString("state", ""); err != nil {
			return nil, err
		}
		t.hasTo = cfg.Has("state")
		return t, nil
	}
}

func (t *itemStateChangeTrigger) Arm(cb automation.TriggerCallback) error {
	t.mu.Lock()
	t.cb = cb
	t.hasLast = false
	t.mu.Unlock()

	sub, err := t.bus.Subscribe(mqtt.Topics{}.StateItem(t.item), defaultQoS, t.handle)
	if err != nil {
		t.mu.Lock()
		t.cb = nil
		t.mu.Unlock()
		return fmt.Errorf("subscribing to %s state: %w", t.item, err)
	}

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return nil
}

func (t *itemStateChangeTrigger) Disarm() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.cb = nil
	t.mu.Unlock()

	if sub != nil {
		if err := t.bus.Unsubscribe(sub); err != nil {
			t.logger.Warn("unsubscribing state trigger", "item", t.item, "error", err)
		}
	}
}

func (t *itemStateChangeTrigger) Dispose() error {
	t.Disarm()
	return nil
}

// handle runs on the MQTT delivery goroutine.
func (t *itemStateChangeTrigger) handle(topic string, payload []byte) error {
	protocol, _, ok := mqtt.ParseStateTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected state topic %q", topic)
	}

	var msg stateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding state for %s: %w", t.item, err)
	}
	current, ok := t.extract(msg.State)
	if !ok {
		return nil
	}

	t.mu.Lock()
	cb := t.cb
	previous, hadPrevious := t.last, t.hasLast
	t.last, t.hasLast = current, true
	t.mu.Unlock()

	if cb == nil || !hadPrevious || previous == current {
		return nil
	}
	if t.hasFrom && previous != t.from {
		return nil
	}
	if t.hasTo && current != t.to {
		return nil
	}

	cb(automation.Inputs{
		"itemName": t.item,
		"protocol": protocol,
		"oldState": previous,
		"newState": current,
		"state":    msg.State,
	})
	return nil
}

// extract renders the watched part of the state as a string.
func (t *itemStateChangeTrigger) extract(state map[string]any) (string, bool) {
	if t.property == "" {
		if state == nil {
			return "", false
		}
		b, err := json.Marshal(state) // Map keys are sorted, so this is canonical.
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	v, ok := state[t.property]
	if !ok {
		return "", false
	}
	return stringify(v), true
}

// stringify formats scalar state values the way configuration filters are
// written: 21.5, true, "on".
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
