package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestIntegration_RuleLifecycle drives a rule end to end: activation, events
// through a condition and two actions, the execution log, and removal.
func TestIntegration_RuleLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	registry := NewHandlerRegistry(PolicyStrict)
	registry.Init()
	defer registry.Shutdown()

	engine := NewEngine(registry, EngineConfig{})
	engine.AddObserver(RecordExecutions(repo, nil))
	done := make(chan *RuleExecution, 16)
	engine.AddObserver(ObserverFunc(func(_ context.Context, exec *RuleExecution) { done <- exec }))

	scope := NewScope("integration", registry, engine)

	var (
		mu       sync.Mutex
		commands []string
	)
	if err := scope.Register(TriggerModule, "test.Motion", TypeSchema{}, func(Module) (Handler, error) {
		return &fakeTrigger{}, nil
	}); err != nil {
		t.Fatalf("Register trigger: %v", err)
	}
	if err := scope.Register(ConditionModule, "test.IsDark", TypeSchema{
		Parameters: []ParameterDescriptor{{Name: "threshold", Type: ParamNumber, Default: 10}},
	}, func(m Module) (Handler, error) {
		threshold, err := m.Configuration.GetNumber("threshold", 0)
		if err != nil {
			return nil, err
		}
		return ConditionFunc(func(_ context.Context, in Inputs) (bool, error) {
			lux, ok := in["lux"].(float64)
			if !ok {
				return false, errors.New("lux missing")
			}
			return lux < threshold, nil
		}), nil
	}); err != nil {
		t.Fatalf("Register condition: %v", err)
	}
	if err := scope.Register(ActionModule, "test.Command", TypeSchema{
		Parameters: []ParameterDescriptor{{Name: "command", Type: ParamText, Required: true}},
		Outputs:    []OutputDescriptor{{Name: "sent", Type: ParamText}},
	}, func(m Module) (Handler, error) {
		command, err := m.Configuration.GetString("command", "")
		if err != nil {
			return nil, err
		}
		return ActionFunc(func(context.Context, Inputs) (any, error) {
			mu.Lock()
			commands = append(commands, command)
			mu.Unlock()
			return Outputs{"sent": command}, nil
		}), nil
	}); err != nil {
		t.Fatalf("Register action: %v", err)
	}

	on := NewConfiguration()
	on.Put("command", StringValue("on"))
	dim := NewConfiguration()
	dim.Put("command", StringValue("dim"))

	uid, err := scope.AddRule(ctx, &Rule{
		Name:       "Hall motion at night",
		Triggers:   []Module{NewTrigger("motion", "test.Motion", nil)},
		Conditions: []Module{NewCondition("dark", "test.IsDark", nil)},
		Actions: []Module{
			NewAction("on", "test.Command", on),
			NewAction("dim", "test.Command", dim),
		},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if state, _ := engine.State(uid); state != StateActive {
		t.Fatalf("state = %q, want %q", state, StateActive)
	}
	fire := func(lux float64) {
		if err := engine.Fire(uid, "motion", Inputs{"lux": lux}); err != nil {
			t.Fatalf("Fire: %v", err)
		}
	}

	fire(3)  // dark: both actions
	fire(50) // bright: skipped

	var statuses []ExecutionStatus
	for range 2 {
		select {
		case exec := <-done:
			statuses = append(statuses, exec.Status)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for execution")
		}
	}
	if statuses[0] != StatusCompleted || statuses[1] != StatusSkipped {
		t.Errorf("statuses = %v, want [completed skipped]", statuses)
	}

	mu.Lock()
	if len(commands) != 2 || commands[0] != "on" || commands[1] != "dim" {
		t.Errorf("commands = %v, want [on dim]", commands)
	}
	mu.Unlock()

	history, err := repo.ListExecutions(ctx, uid, 10)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d executions, want 2", len(history))
	}
	if history[1].ActionsInvoked != 2 || history[1].ConditionsEvaluated != 1 {
		t.Errorf("completed execution = %+v, want 1 condition and 2 actions", history[1])
	}

	if err := scope.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	fire(1)
	select {
	case exec := <-done:
		t.Errorf("execution after removal: %+v", exec)
	case <-time.After(30 * time.Millisecond):
	}
	if registry.Resolves(ActionModule, "test.Command") {
		t.Error("scope types still registered after RemoveAll")
	}
}
