package mqtt

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", topics.State("knx", "light-hall"), "graylogic/state/knx/light-hall"},
		{"StateItem", topics.StateItem("light-hall"), "graylogic/state/+/light-hall"},
		{"AllStates", topics.AllStates(), "graylogic/state/+/+"},
		{"Command", topics.Command("dali", "ballast-3"), "graylogic/command/dali/ballast-3"},
		{"AutomationFired", topics.AutomationFired("porch-light"), "graylogic/core/automation/porch-light/fired"},
		{"AllAutomationFired", topics.AllAutomationFired(), "graylogic/core/automation/+/fired"},
		{"SystemStatus", topics.SystemStatus("graylogic-rules"), "graylogic/system/status/graylogic-rules"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseStateTopic(t *testing.T) {
	tests := []struct {
		topic        string
		wantProtocol string
		wantItem     string
		wantOK       bool
	}{
		{"graylogic/state/knx/light-hall", "knx", "light-hall", true},
		{"graylogic/command/knx/light-hall", "", "", false},
		{"graylogic/state/knx", "", "", false},
		{"graylogic/state/knx/light/extra", "", "", false},
		{"other/state/knx/light-hall", "", "", false},
		{"graylogic/state//light-hall", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			protocol, item, ok := ParseStateTopic(tt.topic)
			if ok != tt.wantOK || protocol != tt.wantProtocol || item != tt.wantItem {
				t.Errorf("ParseStateTopic() = %q, %q, %v; want %q, %q, %v",
					protocol, item, ok, tt.wantProtocol, tt.wantItem, tt.wantOK)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"graylogic/state/+/light-hall", "graylogic/state/knx/light-hall", true},
		{"graylogic/state/+/light-hall", "graylogic/state/knx/light-kitchen", false},
		{"graylogic/state/+/+", "graylogic/state/knx/light-hall", true},
		{"graylogic/#", "graylogic/state/knx/light-hall", true},
		{"graylogic/#", "graylogic", true},
		{"graylogic/state/+", "graylogic/state/knx/light-hall", false},
		{"graylogic/state/knx/light-hall", "graylogic/state/knx/light-hall", true},
		{"graylogic/state/knx/light-hall/x", "graylogic/state/knx/light-hall", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			if got := Match(tt.filter, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"a/b", "a/+/c", "a/#", "#", "+"}
	for _, f := range valid {
		if err := ValidateFilter(f); err != nil {
			t.Errorf("ValidateFilter(%q) error = %v", f, err)
		}
	}

	invalid := []string{"", "a/#/c", "a/b#", "a/b+/c"}
	for _, f := range invalid {
		if err := ValidateFilter(f); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateFilter(%q) error = %v, want ErrInvalidTopic", f, err)
		}
	}
}

func TestValidateTopic(t *testing.T) {
	if err := ValidateTopic("graylogic/command/knx/light-1"); err != nil {
		t.Errorf("ValidateTopic() error = %v", err)
	}
	for _, topic := range []string{"", "a/+/c", "a/#"} {
		if err := ValidateTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateTopic(%q) error = %v, want ErrInvalidTopic", topic, err)
		}
	}
}
