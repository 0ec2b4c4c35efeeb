// Package influxdb writes rule engine time-series to InfluxDB v2.
//
// Every processed rule event becomes one rule_execution point tagged with the
// rule and outcome, so execution rates and latencies can be graphed next to
// the device telemetry the rest of Gray Logic stores in the same bucket.
//
// Writes are non-blocking and batched (batch_size, flush_interval in
// config.yaml). Asynchronous write failures are handed to the callback set
// with SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series
//	}
//	defer client.Close()
//
//	client.WriteRuleExecution(influxdb.RuleExecutionPoint{RuleUID: "porch-light", Status: "completed"})
package influxdb
