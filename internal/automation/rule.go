package automation

import (
	"context"
	"slices"
)

// Body is a rule's execution body. It runs once per event that passes every
// condition. A returned error (or a panic) is reported and isolated to that
// event.
type Body func(ctx context.Context, run *Run) error

// Rule composes triggers, conditions and actions with an execution body.
//
// The engine copies a rule on AddRule; later changes to the caller's value
// have no effect on the active rule. A nil Body runs the actions in order.
type Rule struct {
	UID         string   `json:"uid"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Triggers   []Module `json:"triggers"`
	Conditions []Module `json:"conditions"`
	Actions    []Module `json:"actions"`

	Configuration *Configuration `json:"configuration,omitempty"`

	Body Body `json:"-"`
}

// RuleState is the lifecycle state of a rule inside the engine.
type RuleState string

const (
	StateCreated      RuleState = "created"
	StateActivating   RuleState = "activating"
	StateActive       RuleState = "active"
	StateDeactivating RuleState = "deactivating"
	StateRemoved      RuleState = "removed"
)

// RuleSummary is a read-only view of an active rule.
type RuleSummary struct {
	UID         string    `json:"uid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	State       RuleState `json:"state"`
	Triggers    int       `json:"triggers"`
	Conditions  int       `json:"conditions"`
	Actions     int       `json:"actions"`
	CustomBody  bool      `json:"custom_body"`
}

// Modules returns every module of the rule in trigger, condition, action order.
func (r *Rule) Modules() []Module {
	out := make([]Module, 0, len(r.Triggers)+len(r.Conditions)+len(r.Actions))
	out = append(out, r.Triggers...)
	out = append(out, r.Conditions...)
	out = append(out, r.Actions...)
	return out
}

// DeepCopy creates a complete independent copy of the Rule.
// Module configurations and the rule configuration are cloned; the body is
// shared since functions are immutable.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Tags = slices.Clone(r.Tags)
	cpy.Triggers = cloneModules(r.Triggers)
	cpy.Conditions = cloneModules(r.Conditions)
	cpy.Actions = cloneModules(r.Actions)
	cpy.Configuration = r.Configuration.Clone()
	return &cpy
}

func cloneModules(ms []Module) []Module {
	if ms == nil {
		return nil
	}
	out := make([]Module, len(ms))
	for i, m := range ms {
		out[i] = m.clone()
	}
	return out
}

// prepare assigns missing identifiers and module kinds on a rule copy.
func (r *Rule) prepare() {
	if r.UID == "" {
		r.UID = generateRuleUID(r.Name)
	}
	assign := func(ms []Module, kind ModuleKind) {
		for i := range ms {
			if ms[i].Kind == "" {
				ms[i].Kind = kind
			}
			if ms[i].ID == "" {
				ms[i].ID = generateModuleID(kind)
			}
		}
	}
	assign(r.Triggers, TriggerModule)
	assign(r.Conditions, ConditionModule)
	assign(r.Actions, ActionModule)
}

func (r *Rule) summary(state RuleState) RuleSummary {
	return RuleSummary{
		UID:         r.UID,
		Name:        r.Name,
		Description: r.Description,
		Tags:        slices.Clone(r.Tags),
		State:       state,
		Triggers:    len(r.Triggers),
		Conditions:  len(r.Conditions),
		Actions:     len(r.Actions),
		CustomBody:  r.Body != nil,
	}
}
