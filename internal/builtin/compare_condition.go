package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

var compareSchema = automation.TypeSchema{
	Label:       "Compare",
	Description: "Compares an input value with a constant",
	Parameters: []automation.ParameterDescriptor{
		{Name: "input", Type: automation.ParamText, Required: true, Description: "Input key, e.g. newState"},
		{Name: "operator", Type: automation.ParamText, Default: "=", Description: "One of = != < <= > >="},
		{Name: "value", Type: automation.ParamText, Required: true, Description: "Value to compare with"},
	},
}

type operator string

const (
	opEq operator = "="
	opNe operator = "!="
	opLt operator = "<"
	opLe operator = "<="
	opGt operator = ">"
	opGe operator = ">="
)

func parseOperator(s string) (operator, error) {
	switch op := operator(strings.TrimSpace(s)); op {
	case opEq, opNe, opLt, opLe, opGt, opGe:
		return op, nil
	case "==":
		return opEq, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// compareCondition is satisfied when inputs[input] <op> value holds.
// Both sides compare numerically when both parse as numbers, as strings
// otherwise. A missing input is never satisfied.
type compareCondition struct {
	input string
	op    operator
	value string
}

func newCompareCondition(m automation.Module) (automation.Handler, error) {
	cfg := m.Configuration
	input, err := cfg.GetString("input", "")
	if err != nil {
		return nil, err
	}
	opText, err := cfg.GetString("operator", string(opEq))
	if err != nil {
		return nil, err
	}
	op, err := parseOperator(opText)
	if err != nil {
		return nil, err
	}
	value, err := cfg.GetString("value", "")
	if err != nil {
		return nil, err
	}
	return &compareCondition{input: input, op: op, value: value}, nil
}

func (c *compareCondition) IsSatisfied(_ context.Context, inputs automation.Inputs) (bool, error) {
	raw, ok := inputs[c.input]
	if !ok {
		return false, nil
	}
	return compare(stringifyInput(raw), c.op, c.value), nil
}

func (c *compareCondition) Dispose() error { return nil }

func compare(left string, op operator, right string) bool {
	var cmp int
	l, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	r, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if lerr == nil && rerr == nil {
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(left, right)
	}

	switch op {
	case opEq:
		return cmp == 0
	case opNe:
		return cmp != 0
	case opLt:
		return cmp < 0
	case opLe:
		return cmp <= 0
	case opGt:
		return cmp > 0
	case opGe:
		return cmp >= 0
	}
	return false
}

// stringifyInput also accepts the integer kinds Go callers put in Inputs.
func stringifyInput(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return stringify(v)
	}
}
