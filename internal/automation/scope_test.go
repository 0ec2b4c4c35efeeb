package automation

import (
	"context"
	"testing"
)

func TestScope_RemoveAll(t *testing.T) {
	env := setupEngine(t, EngineConfig{})
	scope := NewScope("plugin.presence", env.registry, env.engine)
	ctx := context.Background()

	if err := scope.Register(ActionModule, "presence.Announce", TypeSchema{}, echoFactory); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rule := manualRule("", nil)
	rule.Name = "Announce arrival"
	rule.Actions = []Module{NewAction("a1", "presence.Announce", nil)}
	uid, err := scope.AddRule(ctx, rule)
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if got := scope.Rules(); len(got) != 1 || got[0] != uid {
		t.Errorf("Rules() = %v, want [%s]", got, uid)
	}

	// A rule added directly to the engine does not belong to the scope.
	env.addRule(t, manualRule("unrelated", nil))

	if err := scope.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	if _, ok := env.engine.Rule(uid); ok {
		t.Error("scope rule still active after RemoveAll")
	}
	if _, ok := env.engine.Rule("unrelated"); !ok {
		t.Error("RemoveAll removed a rule it did not add")
	}
	if _, ok := env.registry.Type(ActionModule, "presence.Announce"); ok {
		t.Error("scope type still registered after RemoveAll")
	}
	if _, ok := env.registry.Type(TriggerModule, "test.Manual"); !ok {
		t.Error("RemoveAll unregistered a type it did not register")
	}
	if len(scope.Rules()) != 0 {
		t.Errorf("Rules() after RemoveAll = %v, want empty", scope.Rules())
	}
}

func TestScope_RemoveRule(t *testing.T) {
	env := setupEngine(t, EngineConfig{})
	scope := NewScope("api", env.registry, env.engine)
	ctx := context.Background()

	uid, err := scope.AddRule(ctx, manualRule("r1", nil))
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := scope.RemoveRule(ctx, uid); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if len(scope.Rules()) != 0 {
		t.Errorf("Rules() = %v, want empty", scope.Rules())
	}
	if _, ok := env.engine.State(uid); ok {
		t.Error("rule still known to engine")
	}
}

func TestScope_WithoutEngine(t *testing.T) {
	registry := setupRegistry(t, PolicyStrict)
	scope := NewScope("types-only", registry, nil)

	if _, err := scope.AddRule(context.Background(), manualRule("r1", nil)); err == nil {
		t.Error("AddRule without engine succeeded")
	}
	if err := scope.Register(ConditionModule, "x.Cond", TypeSchema{}, func(Module) (Handler, error) {
		return ConditionFunc(func(context.Context, Inputs) (bool, error) { return true, nil }), nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := scope.RemoveAll(context.Background()); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if registry.Resolves(ConditionModule, "x.Cond") {
		t.Error("type survived RemoveAll")
	}
}
