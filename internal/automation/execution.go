package automation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ExecutionStatus is the outcome of processing one event for one rule.
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusSkipped   ExecutionStatus = "skipped" // A condition was not satisfied
	StatusFailed    ExecutionStatus = "failed"
	StatusTimeout   ExecutionStatus = "timeout"
)

// RuleExecution records one processed event.
type RuleExecution struct {
	ID                  string          `json:"id"`
	RuleUID             string          `json:"rule_uid"`
	RuleName            string          `json:"rule_name,omitempty"`
	TriggerID           string          `json:"trigger_id,omitempty"` // Empty for manual runs
	Status              ExecutionStatus `json:"status"`
	Error               string          `json:"error,omitempty"`
	ConditionsEvaluated int             `json:"conditions_evaluated"`
	ActionsInvoked      int             `json:"actions_invoked"`
	TriggeredAt         time.Time       `json:"triggered_at"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         time.Time       `json:"completed_at"`
	DurationMS          int             `json:"duration_ms"`
}

// Observer is told about every processed event. Observers run on the rule's
// worker goroutine and must return quickly.
type Observer interface {
	RuleExecuted(ctx context.Context, exec *RuleExecution)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, exec *RuleExecution)

// RuleExecuted calls f.
func (f ObserverFunc) RuleExecuted(ctx context.Context, exec *RuleExecution) { f(ctx, exec) }

type boundTrigger struct {
	module  Module
	handler TriggerHandler
}

type boundCondition struct {
	module  Module
	handler ConditionHandler
}

type boundAction struct {
	module  Module
	handler ActionHandler
}

// Run is what a rule body sees: the triggering module, its inputs and access
// to the rule's own action handlers.
type Run struct {
	RuleUID       string
	Trigger       Module // Zero value for manual runs
	Inputs        Inputs
	Configuration *Configuration

	actions []boundAction
	invoked atomic.Int32
	metrics *Metrics
}

// Actions lists the rule's action modules in declared order.
func (r *Run) Actions() []Module {
	out := make([]Module, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.module.clone()
	}
	return out
}

// InvokeAction runs the first action of the rule whose type is typeID.
//
// The call is synchronous and goes through the handler created when the rule
// was activated. Handler failures come back as *ActionExecutionError.
func (r *Run) InvokeAction(ctx context.Context, typeID string, inputs Inputs) (Outputs, error) {
	for _, a := range r.actions {
		if a.module.TypeID == typeID {
			return r.invoke(ctx, a, inputs)
		}
	}
	return nil, fmt.Errorf("%w: type %s in rule %s", ErrActionNotFound, typeID, r.RuleUID)
}

// InvokeActionByID runs the action module with the given id.
func (r *Run) InvokeActionByID(ctx context.Context, moduleID string, inputs Inputs) (Outputs, error) {
	for _, a := range r.actions {
		if a.module.ID == moduleID {
			return r.invoke(ctx, a, inputs)
		}
	}
	return nil, fmt.Errorf("%w: module %s in rule %s", ErrActionNotFound, moduleID, r.RuleUID)
}

func (r *Run) invoke(ctx context.Context, a boundAction, inputs Inputs) (out Outputs, err error) {
	r.invoked.Add(1)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
		if err != nil {
			err = &ActionExecutionError{RuleUID: r.RuleUID, ModuleID: a.module.ID, TypeID: a.module.TypeID, Err: err}
		}
		r.metrics.recordAction(a.module.TypeID, time.Since(start), err)
	}()

	out, err = a.handler.Execute(ctx, cloneInputs(inputs))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Outputs{}
	}
	return out, nil
}

// defaultBody runs every action in declared order.
//
// Each action sees the trigger inputs both as-is and namespaced as
// "<triggerID>.<key>", plus the outputs of earlier actions as
// "<actionID>.<key>". The first failure stops the run.
func defaultBody(ctx context.Context, run *Run) error {
	scope := make(Inputs, len(run.Inputs)*2)
	for k, v := range run.Inputs {
		scope[k] = v
		if run.Trigger.ID != "" {
			scope[run.Trigger.ID+"."+k] = v
		}
	}

	for _, a := range run.actions {
		out, err := run.invoke(ctx, a, scope)
		if err != nil {
			return err
		}
		for k, v := range out {
			scope[a.module.ID+"."+k] = v
		}
	}
	return nil
}
