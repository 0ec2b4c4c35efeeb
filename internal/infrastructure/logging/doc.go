// Package logging builds the structured logger shared by the rule engine,
// its infrastructure clients and the admin API.
//
// It wraps log/slog. Every record carries service and version attributes,
// and records logged with a context that holds an OpenTelemetry span also
// carry trace_id and span_id, so a failed rule execution in the log can be
// matched with its trace.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	engine.SetLogger(logger.Component("engine"))
//	logger.InfoContext(ctx, "rule added", "rule_uid", uid)
//
// Never log secrets: JWT signing keys, MQTT passwords, InfluxDB tokens.
package logging
