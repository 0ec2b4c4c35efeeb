package automation

import (
	"fmt"

	"github.com/google/uuid"
)

// ModuleKind distinguishes the three module variants.
type ModuleKind string

const (
	TriggerModule   ModuleKind = "trigger"
	ConditionModule ModuleKind = "condition"
	ActionModule    ModuleKind = "action"
)

// AllModuleKinds returns the module kinds in pipeline order.
func AllModuleKinds() []ModuleKind {
	return []ModuleKind{TriggerModule, ConditionModule, ActionModule}
}

// ParseModuleKind converts a string such as "action" into a ModuleKind.
func ParseModuleKind(s string) (ModuleKind, error) {
	for _, k := range AllModuleKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown module kind %q", ErrInvalidType, s)
}

// Module is one typed, configured step of a rule.
//
// ID is unique within the owning rule. TypeID names a type registered in the
// HandlerRegistry under the same Kind.
type Module struct {
	ID            string         `json:"id"`
	Kind          ModuleKind     `json:"kind"`
	TypeID        string         `json:"type"`
	Label         string         `json:"label,omitempty"`
	Configuration *Configuration `json:"configuration,omitempty"`
}

// NewTrigger returns a trigger module. cfg is copied.
func NewTrigger(id, typeID string, cfg *Configuration) Module {
	return newModule(TriggerModule, id, typeID, cfg)
}

// NewCondition returns a condition module. cfg is copied.
func NewCondition(id, typeID string, cfg *Configuration) Module {
	return newModule(ConditionModule, id, typeID, cfg)
}

// NewAction returns an action module. cfg is copied.
func NewAction(id, typeID string, cfg *Configuration) Module {
	return newModule(ActionModule, id, typeID, cfg)
}

func newModule(kind ModuleKind, id, typeID string, cfg *Configuration) Module {
	return Module{ID: id, Kind: kind, TypeID: typeID, Configuration: cfg.Clone()}
}

// clone returns a copy with its own Configuration.
func (m Module) clone() Module {
	m.Configuration = m.Configuration.Clone()
	return m
}

// generateModuleID returns "<kind>_<uuid>".
func generateModuleID(kind ModuleKind) string {
	return string(kind) + "_" + uuid.New().String()
}
