package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementRuleExecution is the measurement name of rule execution points.
const MeasurementRuleExecution = "rule_execution"

// RuleExecutionPoint is the time-series view of one processed rule event.
type RuleExecutionPoint struct {
	RuleUID             string
	TriggerID           string // Empty for manual runs
	Status              string
	ConditionsEvaluated int
	ActionsInvoked      int
	DurationMS          int
	Time                time.Time
}

// WriteRuleExecution queues a rule_execution point.
//
// Tags: rule_uid, status, trigger ("manual" when TriggerID is empty).
// Fields: duration_ms, conditions_evaluated, actions_invoked, count.
func (c *Client) WriteRuleExecution(p RuleExecutionPoint) {
	trigger := p.TriggerID
	if trigger == "" {
		trigger = "manual"
	}
	at := p.Time
	if at.IsZero() {
		at = time.Now()
	}

	c.WritePoint(write.NewPoint(MeasurementRuleExecution,
		map[string]string{
			"rule_uid": p.RuleUID,
			"status":   p.Status,
			"trigger":  trigger,
		},
		map[string]any{
			"duration_ms":          int64(p.DurationMS),
			"conditions_evaluated": int64(p.ConditionsEvaluated),
			"actions_invoked":      int64(p.ActionsInvoked),
			"count":                int64(1),
		},
		at,
	))
}

// WritePoint queues an arbitrary point. Dropped when the client is closed.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(p)
}
