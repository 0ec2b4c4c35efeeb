package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
)

// commandSource marks commands raised by rules, as opposed to the UI or API.
const commandSource = "automation"

var itemCommandSchema = automation.TypeSchema{
	Label:       "Send command",
	Description: "Sends a command to an item through its protocol bridge",
	Parameters: []automation.ParameterDescriptor{
		{Name: "itemName", Type: automation.ParamText, Required: true, Description: "Item (device) identifier"},
		{Name: "command", Type: automation.ParamText, Required: true, Description: "Command, e.g. on, off, dim"},
		{Name: "protocol", Type: automation.ParamText, Default: "knx", Description: "Bridge protocol"},
	},
	Outputs: []automation.OutputDescriptor{
		{Name: "commandId", Type: automation.ParamText, Description: "ID of the published command"},
	},
}

// commandMessage is the payload bridges consume on graylogic/command/...
type commandMessage struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source"`
}

type itemCommandAction struct {
	bus        Bus
	logger     Logger
	item       string
	command    string
	protocol   string
	parameters map[string]any
}

func newItemCommandFactory(deps Deps) automation.HandlerFactory {
	return func(m automation.Module) (automation.Handler, error) {
		cfg := m.Configuration
		a := &itemCommandAction{bus: deps.Bus, logger: deps.Logger}

		var err error
		if a.item, err = cfg.GetString("itemName", ""); err != nil {
			return nil, err
		}
		if a.command, err = cfg.GetString("command", ""); err != nil {
			return nil, err
		}
		if a.protocol, err = cfg.GetString("protocol", "knx"); err != nil {
			return nil, err
		}
		if a.item == "" || a.command == "" || a.protocol == "" {
			return nil, fmt.Errorf("itemName, command and protocol must not be empty")
		}
		params, err := cfg.GetConfiguration("parameters")
		if err != nil {
			return nil, err
		}
		if params != nil {
			a.parameters = params.Map()
		}
		return a, nil
	}
}

func (a *itemCommandAction) Execute(ctx context.Context, _ automation.Inputs) (automation.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := commandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   a.item,
		Command:    a.command,
		Parameters: a.parameters,
		Source:     commandSource,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	topic := mqtt.Topics{}.Command(a.protocol, a.item)
	if err := a.bus.Publish(topic, payload, defaultQoS, false); err != nil {
		return nil, fmt.Errorf("publishing %s to %s: %w", a.command, a.item, err)
	}
	a.logger.Debug("command sent", "item", a.item, "command", a.command, "command_id", msg.ID)
	return automation.Outputs{"commandId": msg.ID}, nil
}

func (a *itemCommandAction) Dispose() error { return nil }

var publishSchema = automation.TypeSchema{
	Label:       "Publish MQTT message",
	Description: "Publishes a message; the rule's inputs as JSON when no payload is set",
	Parameters: []automation.ParameterDescriptor{
		{Name: "topic", Type: automation.ParamText, Required: true},
		{Name: "payload", Type: automation.ParamText},
		{Name: "retain", Type: automation.ParamBoolean, Default: false},
	},
	Outputs: []automation.OutputDescriptor{
		{Name: "topic", Type: automation.ParamText},
	},
}

type publishAction struct {
	bus        Bus
	topic      string
	payload    string
	hasPayload bool
	retain     bool
}

func newPublishFactory(deps Deps) automation.HandlerFactory {
	return func(m automation.Module) (automation.Handler, error) {
		cfg := m.Configuration
		a := &publishAction{bus: deps.Bus, hasPayload: cfg.Has("payload")}

		var err error
		if a.topic, err = cfg.GetString("topic", ""); err != nil {
			return nil, err
		}
		if err := mqtt.ValidateTopic(a.topic); err != nil {
			return nil, err
		}
		if a.payload, err = cfg.GetString("payload", ""); err != nil {
			return nil, err
		}
		if a.retain, err = cfg.GetBool("retain", false); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func (a *publishAction) Execute(ctx context.Context, inputs automation.Inputs) (automation.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := []byte(a.payload)
	if !a.hasPayload {
		b, err := json.Marshal(inputs)
		if err != nil {
			return nil, fmt.Errorf("encoding inputs: %w", err)
		}
		payload = b
	}
	if err := a.bus.Publish(a.topic, payload, defaultQoS, a.retain); err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", a.topic, err)
	}
	return automation.Outputs{"topic": a.topic}, nil
}

func (a *publishAction) Dispose() error { return nil }
