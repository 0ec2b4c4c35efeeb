package automation

import (
	"context"
	"errors"
	"sync"
)

// Scope tracks what one owner (a plugin, an API client, the built-in module
// set) added to the registry and engine so it can all be removed together.
//
// Scope methods are thread-safe.
type Scope struct {
	name     string
	registry *HandlerRegistry
	engine   *Engine

	mu    sync.Mutex
	types []typeKey
	rules []string
}

// NewScope creates a scope named for logging purposes. engine may be nil when
// the owner only registers types.
func NewScope(name string, registry *HandlerRegistry, engine *Engine) *Scope {
	return &Scope{name: name, registry: registry, engine: engine}
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// RegisterType registers a type and remembers it for RemoveAll.
func (s *Scope) RegisterType(kind ModuleKind, typeID string, schema TypeSchema) error {
	if err := s.registry.RegisterType(kind, typeID, schema); err != nil {
		return err
	}
	s.mu.Lock()
	s.types = append(s.types, typeKey{kind: kind, typeID: typeID})
	s.mu.Unlock()
	return nil
}

// RegisterHandlerFactory binds a factory to a type. The type is removed by
// RemoveAll only if this scope registered it.
func (s *Scope) RegisterHandlerFactory(kind ModuleKind, typeID string, factory HandlerFactory) error {
	return s.registry.RegisterHandlerFactory(kind, typeID, factory)
}

// Register registers a type and its factory in one call.
func (s *Scope) Register(kind ModuleKind, typeID string, schema TypeSchema, factory HandlerFactory) error {
	if err := s.RegisterType(kind, typeID, schema); err != nil {
		return err
	}
	return s.RegisterHandlerFactory(kind, typeID, factory)
}

// AddRule adds a rule to the engine and remembers its UID.
func (s *Scope) AddRule(ctx context.Context, rule *Rule) (string, error) {
	if s.engine == nil {
		return "", errors.New("automation: scope has no engine")
	}
	uid, err := s.engine.AddRule(ctx, rule)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.rules = append(s.rules, uid)
	s.mu.Unlock()
	return uid, nil
}

// RemoveRule removes one rule this scope added.
func (s *Scope) RemoveRule(ctx context.Context, uid string) error {
	s.mu.Lock()
	for i, r := range s.rules {
		if r == uid {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	return s.engine.RemoveRule(ctx, uid)
}

// Rules returns the UIDs of rules added through this scope.
func (s *Scope) Rules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rules))
	copy(out, s.rules)
	return out
}

// RemoveAll removes the scope's rules, then unregisters its types.
func (s *Scope) RemoveAll(ctx context.Context) error {
	s.mu.Lock()
	rules := s.rules
	types := s.types
	s.rules = nil
	s.types = nil
	s.mu.Unlock()

	var errs []error
	if s.engine != nil {
		for _, uid := range rules {
			if err := s.engine.RemoveRule(ctx, uid); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, t := range types {
		s.registry.Unregister(t.kind, t.typeID)
	}
	return errors.Join(errs...)
}
