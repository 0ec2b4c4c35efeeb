// Package mqtt connects the rule engine to the Gray Logic MQTT bus.
//
// The bus carries item state published by protocol bridges
// (graylogic/state/{protocol}/{item}) and commands sent back to them
// (graylogic/command/{protocol}/{item}). The rule engine consumes state to
// drive its triggers, publishes commands from its actions and announces every
// processed event on graylogic/core/automation/{rule}/fired.
//
// Many triggers may watch the same topic. The Client therefore keeps one
// broker subscription per topic filter and fans each message out to every
// handler registered for it; the broker subscription is dropped with the
// last handler. Subscriptions are restored after a reconnect.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.Subscribe(mqtt.Topics{}.StateItem("light-hall"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleState(topic, payload)
//	    })
//	...
//	client.Unsubscribe(sub)
package mqtt
