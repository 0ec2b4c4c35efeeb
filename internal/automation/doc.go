// Package automation provides the rule engine for Gray Logic.
//
// A rule composes trigger, condition and action modules with an execution
// body. Module types are registered in a HandlerRegistry together with a
// factory; the Engine resolves every module of a rule against the registry,
// builds one handler per module and arms the triggers.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────────┐
//	│                     Engine (engine.go)                     │
//	│  Owns active rules; one FIFO queue + worker per rule       │
//	│  ┌──────────────────┐      ┌─────────────────────────┐    │
//	│  │ HandlerRegistry  │─────▶│  Handlers per module    │    │
//	│  │  (registry.go)   │      │  trigger/condition/     │    │
//	│  └──────────────────┘      │  action (handler.go)    │    │
//	│           ▲                └─────────────────────────┘    │
//	│           │ types + factories                              │
//	│      ┌─────────┐                                           │
//	│      │  Scope  │  owner bookkeeping (scope.go)             │
//	│      └─────────┘                                           │
//	│                                                            │
//	│  ┌──────────────────────────────────────────────────┐     │
//	│  │  Firing Pipeline (per event, per rule)            │     │
//	│  │  1. Trigger callback → Fire → rule queue          │     │
//	│  │  2. Worker dequeues in order                      │     │
//	│  │  3. Conditions in declared order, short-circuit   │     │
//	│  │  4. Body (custom or default) under a timeout      │     │
//	│  │  5. Observers: execution log, MQTT, WebSocket     │     │
//	│  └──────────────────────────────────────────────────┘     │
//	└───────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Configuration: Ordered key/value bag of typed Values
//   - Module: One typed, configured trigger, condition or action
//   - HandlerRegistry: Catalogue of module types and handler factories
//   - Rule: Triggers, conditions, actions and an optional Body
//   - Engine: Activates rules and dispatches events to them
//   - RuleExecution: Record of one processed event
//
// # Guarantees
//
// AddRule is all-or-nothing: if any module fails to resolve, no factory is
// called and the rule is not added. Events of one rule are processed in the
// order they were raised and never overlap; different rules run in parallel.
// Once RemoveRule returns, no further body runs for that rule.
//
// # Thread Safety
//
// HandlerRegistry, Engine and Scope are safe for concurrent use from multiple
// goroutines. Configuration is not; each module and rule owns its own copy.
//
// # Usage
//
//	registry := automation.NewHandlerRegistry(automation.PolicyStrict)
//	registry.Init()
//	defer registry.Shutdown()
//
//	engine := automation.NewEngine(registry, automation.EngineConfig{})
//	engine.AddObserver(automation.RecordExecutions(repo, log))
//
//	uid, err := engine.AddRule(ctx, &automation.Rule{
//	    Name:     "Hall motion",
//	    Triggers: []automation.Module{automation.NewTrigger("motion", "core.ItemStateChangeTrigger", cfg)},
//	    Actions:  []automation.Module{automation.NewAction("light", "core.ItemCommandAction", cmd)},
//	})
package automation
