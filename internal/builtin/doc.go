// Package builtin provides the module types every Gray Logic rule can use
// without a plugin: state-bus and timer triggers, a comparison condition, and
// command, publish and log actions.
//
// Register binds all of them to a HandlerRegistry through an
// automation.Scope, so a shutdown can remove the whole set in one call.
//
// # Types
//
//	Trigger   core.ItemStateChangeTrigger  itemName*, property, previousState, state
//	Trigger   timer.IntervalTrigger        intervalSeconds*
//	Condition core.CompareCondition        input*, operator (=), value*
//	Action    core.ItemCommandAction       itemName*, command*, protocol (knx)
//	Action    core.PublishAction           topic*, payload, retain (false)
//	Action    core.LogAction               message (rule fired), level (info)
//
// Parameters marked * are required; defaults are in parentheses.
//
// # Usage
//
//	scope := automation.NewScope("builtin", registry, engine)
//	if err := builtin.Register(scope, builtin.Deps{Bus: mqttClient, Logger: log}); err != nil {
//	    return err
//	}
//	defer scope.RemoveAll(ctx)
package builtin
