package automation

import (
	"context"
	"fmt"
)

// Inputs are the named values flowing into a condition or action, as raised
// by a trigger.
type Inputs map[string]any

// Outputs are the named values an action returns.
type Outputs map[string]any

// Handler is the runtime object bound to one module of one active rule.
// The engine owns every handler and calls Dispose exactly once when the rule
// is removed.
type Handler interface {
	Dispose() error
}

// TriggerCallback delivers one event from a trigger to the engine.
type TriggerCallback func(inputs Inputs)

// TriggerHandler watches an external source and reports events.
//
// Arm is called once after the rule's handlers have all been created. The
// handler may invoke cb from any goroutine, including from inside Arm.
// Disarm stops further callbacks and is called before Dispose.
type TriggerHandler interface {
	Handler
	Arm(cb TriggerCallback) error
	Disarm()
}

// ConditionHandler is a predicate gating rule execution.
// Implementations must be side-effect free and must not block.
type ConditionHandler interface {
	Handler
	IsSatisfied(ctx context.Context, inputs Inputs) (bool, error)
}

// ActionHandler performs an effect and returns named outputs.
type ActionHandler interface {
	Handler
	Execute(ctx context.Context, inputs Inputs) (Outputs, error)
}

// HandlerFactory builds the handler for one module instance. The module's
// configuration has already been checked against the type schema.
type HandlerFactory func(m Module) (Handler, error)

// ConditionFunc adapts a function to ConditionHandler.
type ConditionFunc func(ctx context.Context, inputs Inputs) (bool, error)

// IsSatisfied calls f.
func (f ConditionFunc) IsSatisfied(ctx context.Context, inputs Inputs) (bool, error) {
	return f(ctx, inputs)
}

// Dispose does nothing.
func (ConditionFunc) Dispose() error { return nil }

// ActionFunc adapts a function to ActionHandler.
//
// A map result is returned as the outputs. Any other non-nil result is
// wrapped as {"result": v}.
type ActionFunc func(ctx context.Context, inputs Inputs) (any, error)

// Execute calls f and shapes its result into Outputs.
func (f ActionFunc) Execute(ctx context.Context, inputs Inputs) (Outputs, error) {
	v, err := f(ctx, inputs)
	if err != nil {
		return nil, err
	}
	switch out := v.(type) {
	case nil:
		return Outputs{}, nil
	case Outputs:
		return out, nil
	case Inputs:
		return Outputs(out), nil
	case map[string]any:
		return Outputs(out), nil
	default:
		return Outputs{"result": v}, nil
	}
}

// Dispose does nothing.
func (ActionFunc) Dispose() error { return nil }

// checkHandlerKind verifies h implements the capability required by kind.
func checkHandlerKind(kind ModuleKind, typeID string, h Handler) error {
	var ok bool
	switch kind {
	case TriggerModule:
		_, ok = h.(TriggerHandler)
	case ConditionModule:
		_, ok = h.(ConditionHandler)
	case ActionModule:
		_, ok = h.(ActionHandler)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s built %T", ErrHandlerKind, kind, typeID, h)
	}
	return nil
}

// cloneInputs copies inputs so a handler can't mutate what another step sees.
func cloneInputs(in Inputs) Inputs {
	if in == nil {
		return Inputs{}
	}
	return Inputs(deepCopyMap(in))
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Inputs:
		return Inputs(deepCopyMap(val))
	case Outputs:
		return Outputs(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
