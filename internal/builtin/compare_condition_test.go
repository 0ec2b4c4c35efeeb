package builtin

import (
	"context"
	"testing"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

func TestCompareCondition(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		value string
		input any
		want  bool
	}{
		{"string equal", "=", "on", "on", true},
		{"string not equal", "!=", "on", "off", true},
		{"double equals", "==", "on", "on", true},
		{"numeric equal across formats", "=", "21.0", "21", true},
		{"numeric less", "<", "10", 9.5, true},
		{"numeric not less", "<", "10", 10.0, false},
		{"numeric less equal", "<=", "10", 10, true},
		{"numeric greater", ">", "2", "10", true},
		{"string greater", ">", "apple", "banana", true},
		{"numeric greater equal", ">=", "18", int64(17), false},
		{"bool", "=", "true", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := newCompareCondition(automation.NewCondition("c", TypeCompare, configOf(t, map[string]any{
				"input":    "newState",
				"operator": tt.op,
				"value":    tt.value,
			})))
			if err != nil {
				t.Fatalf("newCompareCondition: %v", err)
			}
			cond := h.(automation.ConditionHandler)

			got, err := cond.IsSatisfied(context.Background(), automation.Inputs{"newState": tt.input})
			if err != nil {
				t.Fatalf("IsSatisfied: %v", err)
			}
			if got != tt.want {
				t.Errorf("%v %s %s = %v, want %v", tt.input, tt.op, tt.value, got, tt.want)
			}
		})
	}
}

func TestCompareCondition_MissingInput(t *testing.T) {
	h, err := newCompareCondition(automation.NewCondition("c", TypeCompare, configOf(t, map[string]any{
		"input": "lux",
		"value": "10",
	})))
	if err != nil {
		t.Fatalf("newCompareCondition: %v", err)
	}
	got, err := h.(automation.ConditionHandler).IsSatisfied(context.Background(), automation.Inputs{})
	if err != nil || got {
		t.Errorf("IsSatisfied() = %v, %v; want false, nil", got, err)
	}
}

func TestCompareCondition_UnknownOperator(t *testing.T) {
	_, err := newCompareCondition(automation.NewCondition("c", TypeCompare, configOf(t, map[string]any{
		"input":    "x",
		"operator": "~",
		"value":    "1",
	})))
	if err == nil {
		t.Error("newCompareCondition() error = nil, want error for unknown operator")
	}
}
