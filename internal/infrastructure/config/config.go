package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Rules.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SiteConfig identifies the installation the service runs in.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// EngineConfig contains rule engine settings.
type EngineConfig struct {
	// DuplicateTypePolicy decides what happens when a module type is
	// registered twice: "strict" rejects, "replace" overwrites with a warning.
	DuplicateTypePolicy string `yaml:"duplicate_type_policy"`

	// ConditionTimeout bounds each condition evaluation.
	// Default: 5s
	ConditionTimeout time.Duration `yaml:"condition_timeout"`

	// BodyTimeout bounds each rule body run.
	// Default: 60s
	BodyTimeout time.Duration `yaml:"body_timeout"`

	// QueueSize is the number of pending events buffered per rule.
	// Default: 256
	QueueSize int `yaml:"queue_size"`

	// HistoryRetention is how long execution records are kept. 0 keeps
	// everything.
	// Default: 720h (30 days)
	HistoryRetention time.Duration `yaml:"history_retention"`

	// PruneInterval is how often old execution records are deleted.
	// Default: 1h
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// Issuer, when set, must match the "iss" claim of presented tokens.
	Issuer string `yaml:"issuer"`

	// AccessTokenTTL is the lifetime in minutes of tokens minted by the
	// token helper.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// TracingConfig contains OpenTelemetry trace export settings.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint"`

	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return time.Duration(t.Read) * time.Second }

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return time.Duration(t.Write) * time.Second }

// IdleTimeout returns the keep-alive timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return time.Duration(t.Idle) * time.Second }

// Load reads the YAML file at path over the defaults, applies GRAYLOGIC_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Engine: EngineConfig{
			DuplicateTypePolicy: "strict",
			ConditionTimeout:    5 * time.Second,
			BodyTimeout:         60 * time.Second,
			QueueSize:           256,
			HistoryRetention:    30 * 24 * time.Hour,
			PruneInterval:       time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-rules.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-rules",
			},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:      "0.0.0.0",
			Port:      8090,
			Timeouts:  APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
			WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "rules",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{AccessTokenTTL: 15},
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "graylogic-rules",
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, raw string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		*field(cfg) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", raw)
		}
		*field(cfg) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("not a duration: %q", raw)
		}
		*field(cfg) = d
		return nil
	}
}

// envBindings lists every supported override. Secrets belong here rather
// than in the file.
var envBindings = []envBinding{
	{"GRAYLOGIC_ENGINE_DUPLICATE_TYPE_POLICY", stringVar(func(c *Config) *string { return &c.Engine.DuplicateTypePolicy })},
	{"GRAYLOGIC_ENGINE_CONDITION_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.ConditionTimeout })},
	{"GRAYLOGIC_ENGINE_BODY_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Engine.BodyTimeout })},
	{"GRAYLOGIC_ENGINE_QUEUE_SIZE", intVar(func(c *Config) *int { return &c.Engine.QueueSize })},
	{"GRAYLOGIC_ENGINE_HISTORY_RETENTION", durationVar(func(c *Config) *time.Duration { return &c.Engine.HistoryRetention })},
	{"GRAYLOGIC_DATABASE_PATH", stringVar(func(c *Config) *string { return &c.Database.Path })},
	{"GRAYLOGIC_MQTT_HOST", stringVar(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"GRAYLOGIC_MQTT_PORT", intVar(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"GRAYLOGIC_MQTT_USERNAME", stringVar(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"GRAYLOGIC_MQTT_PASSWORD", stringVar(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"GRAYLOGIC_API_HOST", stringVar(func(c *Config) *string { return &c.API.Host })},
	{"GRAYLOGIC_API_PORT", intVar(func(c *Config) *int { return &c.API.Port })},
	{"GRAYLOGIC_INFLUXDB_ENABLED", boolVar(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"GRAYLOGIC_INFLUXDB_URL", stringVar(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"GRAYLOGIC_INFLUXDB_TOKEN", stringVar(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"GRAYLOGIC_LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"GRAYLOGIC_TRACING_ENABLED", boolVar(func(c *Config) *bool { return &c.Tracing.Enabled })},
	{"GRAYLOGIC_TRACING_ENDPOINT", stringVar(func(c *Config) *string { return &c.Tracing.Endpoint })},
	{"GRAYLOGIC_JWT_SECRET", stringVar(func(c *Config) *string { return &c.Security.JWT.Secret })},
}

// applyEnvOverrides applies every set, non-empty binding. Malformed values
// are collected rather than silently ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []string
	for _, b := range envBindings {
		raw, ok := lookup(b.name)
		if !ok || raw == "" {
			continue
		}
		if err := b.set(cfg, raw); err != nil {
			errs = append(errs, b.name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// minJWTSecretLength guards the token API against trivially guessable
// secrets. Rules can switch physical loads.
const minJWTSecretLength = 32

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch c.Engine.DuplicateTypePolicy {
	case "", "strict", "replace":
	default:
		errs = append(errs, "engine.duplicate_type_policy must be strict or replace")
	}
	check(c.Engine.QueueSize >= 0, "engine.queue_size must not be negative")
	check(c.Engine.ConditionTimeout >= 0, "engine.condition_timeout must not be negative")
	check(c.Engine.BodyTimeout >= 0, "engine.body_timeout must not be negative")
	check(c.Engine.HistoryRetention >= 0, "engine.history_retention must not be negative")

	check(c.Database.Path != "", "database.path is required")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")

	if c.InfluxDB.Enabled {
		check(c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
		check(c.InfluxDB.Bucket != "", "influxdb.bucket is required when influxdb is enabled")
	}

	check(!c.Tracing.Enabled || c.Tracing.Endpoint != "", "tracing.endpoint is required when tracing is enabled")
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be between 0 and 1")

	switch {
	case c.Security.JWT.Secret == "":
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
