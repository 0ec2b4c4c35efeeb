package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrUnresolvedModuleType) {
//	    // a module in the rule names a type nobody registered
//	}
var (
	// ErrDuplicateType is returned when a type or factory is registered twice
	// under the strict duplicate policy.
	ErrDuplicateType = errors.New("automation: duplicate type")

	// ErrUnknownType is returned when a handler factory is registered for a
	// type that has no schema yet.
	ErrUnknownType = errors.New("automation: unknown type")

	// ErrUnresolvedType is returned by CreateHandler when no factory exists.
	ErrUnresolvedType = errors.New("automation: unresolved type")

	// ErrUnresolvedModuleType is returned by AddRule when at least one module
	// of the rule cannot be resolved in the registry.
	ErrUnresolvedModuleType = errors.New("automation: unresolved module type")

	// ErrActionExecution is wrapped by every ActionExecutionError.
	ErrActionExecution = errors.New("automation: action execution failed")

	// ErrRuleTimeout is reported when a condition or rule body exceeds its
	// time budget.
	ErrRuleTimeout = errors.New("automation: rule timeout")

	// ErrHandlerDispose is logged when a handler fails to dispose during
	// rule removal. It never aborts the teardown.
	ErrHandlerDispose = errors.New("automation: handler dispose failed")

	// ErrConfigDecode is returned when a configuration value has a different
	// kind than the consumer expects.
	ErrConfigDecode = errors.New("automation: configuration decode failed")

	// ErrRegistryClosed is returned when the handler registry is used before
	// Init or after Shutdown.
	ErrRegistryClosed = errors.New("automation: registry not initialised")

	// ErrInvalidType is returned when a type schema is malformed.
	ErrInvalidType = errors.New("automation: invalid type")

	// ErrHandlerKind is returned when a factory builds a handler that does not
	// implement the capability of the requested kind.
	ErrHandlerKind = errors.New("automation: handler does not match kind")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("automation: invalid rule")

	// ErrInvalidConfiguration is returned when a module configuration does not
	// satisfy its type schema.
	ErrInvalidConfiguration = errors.New("automation: invalid configuration")

	// ErrRuleExists is returned when adding a rule whose UID is already active.
	ErrRuleExists = errors.New("automation: rule already exists")

	// ErrRuleNotFound is returned when a rule UID is not known to the engine.
	ErrRuleNotFound = errors.New("automation: rule not found")

	// ErrActionNotFound is returned when a rule body invokes an action the
	// rule does not contain.
	ErrActionNotFound = errors.New("automation: action not found in rule")

	// ErrQueueFull is returned by Fire when the rule's event queue is full.
	// The event is dropped.
	ErrQueueFull = errors.New("automation: rule event queue full")

	// ErrExecutionNotFound is returned when an execution ID does not exist.
	ErrExecutionNotFound = errors.New("automation: execution not found")
)

// DecodeError describes a typed configuration read that found a value of
// another kind.
type DecodeError struct {
	Key  string
	Want ValueKind
	Got  ValueKind
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: key %q is %s, want %s", ErrConfigDecode, e.Key, e.Got, e.Want)
}

func (e *DecodeError) Unwrap() error { return ErrConfigDecode }

// ActionExecutionError carries the failure of an ActionHandler invoked from a
// rule body.
type ActionExecutionError struct {
	RuleUID  string
	ModuleID string
	TypeID   string
	Err      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("%s: rule %s action %s (%s): %v", ErrActionExecution, e.RuleUID, e.ModuleID, e.TypeID, e.Err)
}

// Unwrap exposes both the sentinel and the handler's own error.
func (e *ActionExecutionError) Unwrap() []error { return []error{ErrActionExecution, e.Err} }
