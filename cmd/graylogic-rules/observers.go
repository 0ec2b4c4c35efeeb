package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
)

// jsonPublisher is the part of the MQTT client used to announce executions.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// announceExecutions publishes every processed event on the rule's
// automation fired topic. Publish failures are logged and otherwise ignored.
func announceExecutions(pub jsonPublisher, log *logging.Logger) automation.Observer {
	return automation.ObserverFunc(func(_ context.Context, exec *automation.RuleExecution) {
		if err := pub.PublishJSON(mqtt.Topics{}.AutomationFired(exec.RuleUID), exec, false); err != nil {
			log.Warn("failed to announce rule execution",
				"rule_uid", exec.RuleUID,
				"execution_id", exec.ID,
				"error", err,
			)
		}
	})
}

// pointWriter is the part of the InfluxDB client that records executions.
type pointWriter interface {
	WriteRuleExecution(p influxdb.RuleExecutionPoint)
}

// writeExecutionPoints records every processed event as a time-series point.
func writeExecutionPoints(w pointWriter) automation.Observer {
	return automation.ObserverFunc(func(_ context.Context, exec *automation.RuleExecution) {
		w.WriteRuleExecution(influxdb.RuleExecutionPoint{
			RuleUID:             exec.RuleUID,
			TriggerID:           exec.TriggerID,
			Status:              string(exec.Status),
			ConditionsEvaluated: exec.ConditionsEvaluated,
			ActionsInvoked:      exec.ActionsInvoked,
			DurationMS:          exec.DurationMS,
			Time:                exec.TriggeredAt,
		})
	})
}

// pruner deletes execution records older than a cutoff.
type pruner interface {
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
}

// pruneHistory deletes executions older than retention every interval until
// ctx is cancelled. A zero retention keeps everything.
func pruneHistory(ctx context.Context, repo pruner, retention, interval time.Duration, log *logging.Logger) {
	if retention <= 0 {
		log.Info("execution history pruning disabled")
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	prune := func() {
		n, err := repo.PruneExecutions(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("pruning execution history failed", "error", err)
		case n > 0:
			log.Info("pruned execution history", "deleted", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
