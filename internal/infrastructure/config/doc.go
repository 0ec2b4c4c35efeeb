// Package config loads the rules service configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// GRAYLOGIC_* environment variables. Validate reports every problem in one
// error so a broken deployment is fixed in a single pass.
//
// Engine durations use Go duration syntax ("250ms", "2m"). API and
// WebSocket timeouts are whole seconds.
//
// Keep secrets out of the file: the JWT secret, MQTT password and InfluxDB
// token all have environment overrides.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	policy, err := automation.ParseDuplicatePolicy(cfg.Engine.DuplicateTypePolicy)
package config
