package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil || m != nil {
		t.Fatalf("NewMetrics(nil) = %v, %v; want nil, nil", m, err)
	}
	// Recording on nil metrics must not panic.
	m.recordEvent("r1", "accepted")
	m.ruleAdded()
}

func TestNewMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second NewMetrics on the same registry succeeded")
	}
}

func TestMetrics_EngineRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	env := setupEngine(t, EngineConfig{})
	env.engine.SetMetrics(m)

	mustRegister(t, env.registry, ActionModule, "test.Fail", TypeSchema{}, func(Module) (Handler, error) {
		return ActionFunc(func(context.Context, Inputs) (any, error) { return nil, errors.New("nope") }), nil
	})
	rule := manualRule("r1", nil)
	rule.Actions = []Module{NewAction("a1", "test.Fail", nil)}
	env.addRule(t, rule)

	if got := testutil.ToFloat64(m.activeRules); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}

	env.trigger(t, "t1").fire(t, Inputs{})
	env.waitExecution(t)

	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("r1", "accepted")); got != 1 {
		t.Errorf("events_total{accepted} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.executionsTotal.WithLabelValues("r1", string(StatusFailed))); got != 1 {
		t.Errorf("executions_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.actionsTotal.WithLabelValues("test.Fail", "error")); got != 1 {
		t.Errorf("actions_total{error} = %v, want 1", got)
	}

	if err := env.engine.RemoveRule(context.Background(), "r1"); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if got := testutil.ToFloat64(m.activeRules); got != 0 {
		t.Errorf("active after removal = %v, want 0", got)
	}
	for name, c := range map[string]prometheus.Collector{
		"events_total":               m.eventsTotal,
		"executions_total":           m.executionsTotal,
		"execution_duration_seconds": m.executionDuration,
	} {
		if n := testutil.CollectAndCount(c); n != 0 {
			t.Errorf("%s keeps %d series for the removed rule", name, n)
		}
	}

	_ = env.engine.Fire("r1", "t1", Inputs{})
	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("", "dropped")); got != 1 {
		t.Errorf("events_total{rule=\"\",dropped} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.eventsTotal); n != 1 {
		t.Errorf("events_total series = %d, want only the unknown-rule series", n)
	}
}
