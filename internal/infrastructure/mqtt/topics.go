package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots of the Gray Logic bus.
const (
	TopicPrefix       = "graylogic"
	TopicPrefixCore   = TopicPrefix + "/core"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds Gray Logic MQTT topics.
//
//	mqtt.Topics{}.Command("knx", "light-hall") // graylogic/command/knx/light-hall
type Topics struct{}

// State is the topic a bridge publishes item state on.
//
// Example: graylogic/state/knx/light-hall
func (Topics) State(protocol, item string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, item)
}

// StateItem matches state for one item from any protocol.
//
// Example: graylogic/state/+/light-hall
func (Topics) StateItem(item string) string {
	return fmt.Sprintf("%s/state/+/%s", TopicPrefix, item)
}

// AllStates matches every item state topic.
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+/+"
}

// Command is the topic a bridge consumes commands for an item on.
//
// Example: graylogic/command/knx/light-hall
func (Topics) Command(protocol, item string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, item)
}

// AutomationFired announces a processed rule event.
//
// Example: graylogic/core/automation/porch-light/fired
func (Topics) AutomationFired(ruleUID string) string {
	return fmt.Sprintf("%s/automation/%s/fired", TopicPrefixCore, ruleUID)
}

// AllAutomationFired matches every rule's fired topic.
func (Topics) AllAutomationFired() string {
	return TopicPrefixCore + "/automation/+/fired"
}

// SystemStatus carries the retained online/offline status of a client.
//
// Example: graylogic/system/status/graylogic-rules
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// ParseStateTopic splits a state topic into protocol and item.
func ParseStateTopic(topic string) (protocol, item string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "state" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// ValidateFilter checks a subscription filter: non-empty, "+" only as a
// whole level and "#" only as the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.Contains(l, "#") && (l != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidTopic, filter)
		}
		if strings.Contains(l, "+") && l != "+" {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidateTopic checks a publish topic: non-empty and free of wildcards.
func ValidateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// Match reports whether topic matches the subscription filter.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
