package automation

import (
	"errors"
	"fmt"
	"strings"
)

// ParameterType is the declared type of a module parameter or output.
type ParameterType string

const (
	ParamText    ParameterType = "TEXT"
	ParamNumber  ParameterType = "NUMBER"
	ParamBoolean ParameterType = "BOOLEAN"
)

func (t ParameterType) valueKind() ValueKind {
	switch t {
	case ParamText:
		return KindString
	case ParamNumber:
		return KindNumber
	case ParamBoolean:
		return KindBool
	default:
		return KindInvalid
	}
}

// ParameterDescriptor declares one configuration key a module type accepts.
type ParameterDescriptor struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Required    bool          `json:"required"`
	Default     any           `json:"default,omitempty"`
	Description string        `json:"description,omitempty"`
}

// OutputDescriptor declares one named output of an action type.
type OutputDescriptor struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type,omitempty"`
	Description string        `json:"description,omitempty"`
}

// TypeSchema is the declarative part of a module type.
type TypeSchema struct {
	Label       string                `json:"label,omitempty"`
	Description string                `json:"description,omitempty"`
	Parameters  []ParameterDescriptor `json:"parameters"`
	Outputs     []OutputDescriptor    `json:"outputs,omitempty"`
}

// ModuleType is a registered trigger, condition or action type.
// Values returned by the registry are copies.
type ModuleType struct {
	Kind   ModuleKind `json:"kind"`
	TypeID string     `json:"type"`
	TypeSchema
}

// Parameter returns the descriptor for name.
func (t ModuleType) Parameter(name string) (ParameterDescriptor, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDescriptor{}, false
}

func (s TypeSchema) clone() TypeSchema {
	cpy := s
	if s.Parameters != nil {
		cpy.Parameters = make([]ParameterDescriptor, len(s.Parameters))
		copy(cpy.Parameters, s.Parameters)
	}
	if s.Outputs != nil {
		cpy.Outputs = make([]OutputDescriptor, len(s.Outputs))
		copy(cpy.Outputs, s.Outputs)
	}
	return cpy
}

// validate checks the schema is well formed for the given kind.
func (s TypeSchema) validate(kind ModuleKind) error {
	var errs []string

	seen := make(map[string]bool, len(s.Parameters))
	for i, p := range s.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("parameter %d has no name", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("parameter %q declared twice", p.Name))
		}
		seen[p.Name] = true

		want := p.Type.valueKind()
		if want == KindInvalid {
			errs = append(errs, fmt.Sprintf("parameter %q has unknown type %q", p.Name, p.Type))
			continue
		}
		if p.Default != nil {
			def, err := ValueOf(p.Default)
			if err != nil || def.Kind() != want {
				errs = append(errs, fmt.Sprintf("parameter %q default does not match type %s", p.Name, p.Type))
			}
		}
	}

	if len(s.Outputs) > 0 && kind != ActionModule {
		errs = append(errs, fmt.Sprintf("%s types cannot declare outputs", kind))
	}
	for i, o := range s.Outputs {
		if o.Name == "" {
			errs = append(errs, fmt.Sprintf("output %d has no name", i))
		}
		if o.Type != "" && o.Type.valueKind() == KindInvalid {
			errs = append(errs, fmt.Sprintf("output %q has unknown type %q", o.Name, o.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidType, strings.Join(errs, "; "))
	}
	return nil
}

// Normalize checks cfg against the type's parameters and returns a copy with
// defaults filled in for absent optional parameters.
//
// Keys the schema does not declare are kept untouched.
func (t ModuleType) Normalize(cfg *Configuration) (*Configuration, error) {
	out := cfg.Clone()
	var errs []error

	for _, p := range t.Parameters {
		v, ok := out.Get(p.Name)
		if !ok {
			switch {
			case p.Default != nil:
				def, err := ValueOf(p.Default)
				if err != nil {
					errs = append(errs, fmt.Errorf("parameter %q: %w", p.Name, err))
					continue
				}
				out.Put(p.Name, def)
			case p.Required:
				errs = append(errs, fmt.Errorf("missing required parameter %q", p.Name))
			}
			continue
		}
		if want := p.Type.valueKind(); v.Kind() != want {
			errs = append(errs, &DecodeError{Key: p.Name, Want: want, Got: v.Kind()})
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrInvalidConfiguration, t.Kind, t.TypeID, errors.Join(errs...))
	}
	return out, nil
}
