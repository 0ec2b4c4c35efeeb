package builtin

import (
	"fmt"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
)

// Module type identifiers.
const (
	TypeItemStateChange = "core.ItemStateChangeTrigger"
	TypeInterval        = "timer.IntervalTrigger"
	TypeCompare         = "core.CompareCondition"
	TypeItemCommand     = "core.ItemCommandAction"
	TypePublish         = "core.PublishAction"
	TypeLog             = "core.LogAction"
)

// defaultQoS is used for state subscriptions and command publishes.
const defaultQoS = 1

// Bus is the part of the MQTT client the built-in modules use.
type Bus interface {
	Subscribe(filter string, qos byte, handler mqtt.MessageHandler) (*mqtt.Subscription, error)
	Unsubscribe(sub *mqtt.Subscription) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the built-in modules.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators of the built-in modules.
type Deps struct {
	// Bus is required by the state trigger and the command and publish
	// actions. When nil those three types are not registered.
	Bus Bus

	// Logger defaults to a no-op logger.
	Logger Logger
}

type definition struct {
	kind    automation.ModuleKind
	typeID  string
	schema  automation.TypeSchema
	factory automation.HandlerFactory
	needBus bool
}

// Register adds every built-in type to scope. Bus-backed types are skipped
// when deps.Bus is nil.
func Register(scope *automation.Scope, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	defs := []definition{
		{automation.TriggerModule, TypeItemStateChange, itemStateChangeSchema, newItemStateChangeFactory(deps), true},
		{automation.TriggerModule, TypeInterval, intervalSchema, newIntervalTrigger, false},
		{automation.ConditionModule, TypeCompare, compareSchema, newCompareCondition, false},
		{automation.ActionModule, TypeItemCommand, itemCommandSchema, newItemCommandFactory(deps), true},
		{automation.ActionModule, TypePublish, publishSchema, newPublishFactory(deps), true},
		{automation.ActionModule, TypeLog, logSchema, newLogFactory(deps), false},
	}

	for _, d := range defs {
		if d.needBus && deps.Bus == nil {
			deps.Logger.Warn("skipping built-in type without MQTT bus", "type", d.typeID)
			continue
		}
		if err := scope.Register(d.kind, d.typeID, d.schema, d.factory); err != nil {
			return fmt.Errorf("registering %s: %w", d.typeID, err)
		}
	}
	return nil
}
