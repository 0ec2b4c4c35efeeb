package automation

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the HandlerRegistry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DuplicatePolicy decides what happens when a type or factory is registered
// under a (kind, typeID) that already has one.
type DuplicatePolicy string

const (
	// PolicyStrict rejects duplicates with ErrDuplicateType.
	PolicyStrict DuplicatePolicy = "strict"

	// PolicyReplace overwrites the previous registration and logs a warning.
	PolicyReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy converts a config string into a DuplicatePolicy.
// An empty string selects PolicyStrict.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyReplace:
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown duplicate type policy %q", s)
	}
}

type typeKey struct {
	kind   ModuleKind
	typeID string
}

type registration struct {
	typ     ModuleType
	factory HandlerFactory
}

// HandlerRegistry catalogues module types and the factories that build their
// handlers.
//
// A deployment creates one registry, calls Init before use and Shutdown on
// exit, and hands it to the Engine. Types are registered before their
// factories.
//
// All public methods are thread-safe. Factories are invoked outside the lock.
type HandlerRegistry struct {
	policy DuplicatePolicy

	mu      sync.RWMutex // Protects open and entries
	open    bool
	entries map[typeKey]*registration

	logger Logger
}

// NewHandlerRegistry creates a registry with the given duplicate policy.
// An unrecognised policy falls back to PolicyStrict.
func NewHandlerRegistry(policy DuplicatePolicy) *HandlerRegistry {
	if policy != PolicyReplace {
		policy = PolicyStrict
	}
	return &HandlerRegistry{
		policy: policy,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *HandlerRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// Policy returns the duplicate policy in force.
func (r *HandlerRegistry) Policy() DuplicatePolicy {
	return r.policy
}

// Init opens the registry. Calling Init on an open registry is a no-op.
func (r *HandlerRegistry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open {
		return
	}
	r.entries = make(map[typeKey]*registration)
	r.open = true
	r.logger.Info("handler registry initialised", "policy", string(r.policy))
}

// Shutdown drops every registration and closes the registry.
// Handlers already created are unaffected; they belong to the engine.
func (r *HandlerRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return
	}
	count := len(r.entries)
	r.entries = nil
	r.open = false
	r.logger.Info("handler registry shut down", "types", count)
}

// RegisterType records the schema of a module type.
//
// Parameters:
//   - kind: trigger, condition or action
//   - typeID: identifier modules use to reference the type
//   - schema: parameter and output descriptors, copied on registration
//
// Returns:
//   - error: ErrDuplicateType under the strict policy, ErrInvalidType for a
//     malformed schema, ErrRegistryClosed outside Init/Shutdown
func (r *HandlerRegistry) RegisterType(kind ModuleKind, typeID string, schema TypeSchema) error {
	if _, err := ParseModuleKind(string(kind)); err != nil {
		return err
	}
	if typeID == "" {
		return fmt.Errorf("%w: type id is required", ErrInvalidType)
	}
	if err := schema.validate(kind); err != nil {
		return fmt.Errorf("%s %s: %w", kind, typeID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return ErrRegistryClosed
	}

	key := typeKey{kind: kind, typeID: typeID}
	typ := ModuleType{Kind: kind, TypeID: typeID, TypeSchema: schema.clone()}

	if existing, ok := r.entries[key]; ok {
		if r.policy == PolicyStrict {
			return fmt.Errorf("%w: %s %s", ErrDuplicateType, kind, typeID)
		}
		r.logger.Warn("replacing module type", "kind", string(kind), "type", typeID)
		existing.typ = typ
		return nil
	}

	r.entries[key] = &registration{typ: typ}
	r.logger.Debug("module type registered", "kind", string(kind), "type", typeID)
	return nil
}

// RegisterHandlerFactory binds a factory to a registered type.
// Returns ErrUnknownType when the type has not been registered, and
// ErrDuplicateType when a factory already exists under the strict policy.
func (r *HandlerRegistry) RegisterHandlerFactory(kind ModuleKind, typeID string, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s %s", ErrInvalidType, kind, typeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return ErrRegistryClosed
	}

	entry, ok := r.entries[typeKey{kind: kind, typeID: typeID}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnknownType, kind, typeID)
	}
	if entry.factory != nil {
		if r.policy == PolicyStrict {
			return fmt.Errorf("%w: factory for %s %s", ErrDuplicateType, kind, typeID)
		}
		r.logger.Warn("replacing handler factory", "kind", string(kind), "type", typeID)
	}
	entry.factory = factory
	return nil
}

// CreateHandler builds a new handler for m using the registered factory.
// The engine calls this once per module during rule activation.
func (r *HandlerRegistry) CreateHandler(kind ModuleKind, typeID string, m Module) (Handler, error) {
	r.mu.RLock()
	if !r.open {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	var factory HandlerFactory
	if entry, ok := r.entries[typeKey{kind: kind, typeID: typeID}]; ok {
		factory = entry.factory
	}
	r.mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrUnresolvedType, kind, typeID)
	}

	h, err := factory(m.clone())
	if err != nil {
		return nil, fmt.Errorf("creating %s handler %s for module %s: %w", kind, typeID, m.ID, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s %s factory returned nil", ErrHandlerKind, kind, typeID)
	}
	if err := checkHandlerKind(kind, typeID, h); err != nil {
		_ = h.Dispose()
		return nil, err
	}
	return h, nil
}

// Unregister removes a type and its factory. Unknown types are ignored, so
// racing teardown paths are harmless.
func (r *HandlerRegistry) Unregister(kind ModuleKind, typeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typeKey{kind: kind, typeID: typeID}
	if _, ok := r.entries[key]; !ok {
		return
	}
	delete(r.entries, key)
	r.logger.Debug("module type unregistered", "kind", string(kind), "type", typeID)
}

// Type returns a copy of the registered type.
func (r *HandlerRegistry) Type(kind ModuleKind, typeID string) (ModuleType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[typeKey{kind: kind, typeID: typeID}]
	if !ok {
		return ModuleType{}, false
	}
	t := entry.typ
	t.TypeSchema = t.TypeSchema.clone()
	return t, true
}

// Types lists registered types of the given kind sorted by type id.
// An empty kind lists every type, grouped by kind.
func (r *HandlerRegistry) Types(kind ModuleKind) []ModuleType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleType, 0, len(r.entries))
	for key, entry := range r.entries {
		if kind != "" && key.kind != kind {
			continue
		}
		t := entry.typ
		t.TypeSchema = t.TypeSchema.clone()
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder(out[i].Kind) < kindOrder(out[j].Kind)
		}
		return out[i].TypeID < out[j].TypeID
	})
	return out
}

// Resolves reports whether both a type and a factory exist for (kind, typeID).
func (r *HandlerRegistry) Resolves(kind ModuleKind, typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[typeKey{kind: kind, typeID: typeID}]
	return ok && entry.factory != nil
}

func kindOrder(k ModuleKind) int {
	for i, kind := range AllModuleKinds() {
		if kind == k {
			return i
		}
	}
	return len(AllModuleKinds())
}
