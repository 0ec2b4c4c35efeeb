// Gray Logic Rules - rule automation engine for Gray Logic sites.
//
// This is the main entry point for the rules service. It loads the
// configuration, opens the execution history database, connects to the MQTT
// bus, registers the built-in module types and serves the rule API until it
// receives a shutdown signal.
//
// Usage:
//
//	graylogic-rules                          run the service
//	graylogic-rules version                  print build information
//	graylogic-rules token -subject ops -role operator
//	                                         mint an API access token
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	_ "github.com/nerrad567/gray-logic-rules/migrations"

	"github.com/nerrad567/gray-logic-rules/internal/api"
	"github.com/nerrad567/gray-logic-rules/internal/audit"
	"github.com/nerrad567/gray-logic-rules/internal/automation"
	"github.com/nerrad567/gray-logic-rules/internal/builtin"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/tracing"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// engineShutdownTimeout bounds draining in-flight rule executions.
const engineShutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the service logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Rules",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Tracing (optional)
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := shutdownTracing(flushCtx); shutdownErr != nil {
			log.Error("error flushing traces", "error", shutdownErr)
		}
	}()
	if cfg.Tracing.Enabled {
		log.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sample_ratio", cfg.Tracing.SampleRatio)
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: time.Duration(cfg.Database.BusyTimeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := automation.NewSQLiteRepository(db.DB)

	// Metrics registry shared by the engine and the /metrics endpoint
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Rule engine
	engine, registry, err := newEngine(cfg.Engine, promRegistry, log)
	if err != nil {
		return err
	}
	defer registry.Shutdown()
	engine.AddObserver(automation.RecordExecutions(repo, log.Component("history")))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	engine.AddObserver(announceExecutions(mqttClient, log))

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		engine.AddObserver(writeExecutionPoints(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Drain the engine while its observers' clients are still open
	defer func() {
		log.Info("stopping rule engine")
		drainCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
		defer cancel()
		if shutdownErr := engine.Shutdown(drainCtx); shutdownErr != nil {
			log.Error("error stopping rule engine", "error", shutdownErr)
		}
	}()

	// Built-in module types
	builtins := automation.NewScope("builtin", registry, engine)
	if regErr := builtin.Register(builtins, builtin.Deps{
		Bus:    mqttClient,
		Logger: log.Component("builtin"),
	}); regErr != nil {
		return fmt.Errorf("registering built-in types: %w", regErr)
	}
	defer func() {
		if removeErr := builtins.RemoveAll(context.Background()); removeErr != nil {
			log.Error("error removing built-in types", "error", removeErr)
		}
	}()
	log.Info("built-in module types registered",
		"triggers", len(registry.Types(automation.TriggerModule)),
		"conditions", len(registry.Types(automation.ConditionModule)),
		"actions", len(registry.Types(automation.ActionModule)),
	)

	// Execution history pruning
	go pruneHistory(ctx, repo, cfg.Engine.HistoryRetention, cfg.Engine.PruneInterval, log.Component("history"))

	// REST API + WebSocket
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Engine:   engine,
		Repo:     repo,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Gatherer: promRegistry,
		MQTT:     mqttClient,
		DB:       db.DB,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	engine.AddObserver(apiServer.Hub())
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (removes API-owned rules)
	// 2. Built-in types
	// 3. Rule engine (drains queued events)
	// 4. InfluxDB (if enabled), then MQTT
	// 5. Type registry, database, trace exporter

	log.Info("Gray Logic Rules stopped")
	return nil
}

// newEngine builds the handler registry and the engine from the engine
// section of the configuration, with metrics, tracing and logging attached.
func newEngine(cfg config.EngineConfig, reg prometheus.Registerer, log *logging.Logger) (*automation.Engine, *automation.HandlerRegistry, error) {
	policy, err := automation.ParseDuplicatePolicy(cfg.DuplicateTypePolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("engine config: %w", err)
	}

	registry := automation.NewHandlerRegistry(policy)
	registry.SetLogger(log.Component("registry"))
	registry.Init()

	engine := automation.NewEngine(registry, automation.EngineConfig{
		ConditionTimeout: cfg.ConditionTimeout,
		BodyTimeout:      cfg.BodyTimeout,
		QueueSize:        cfg.QueueSize,
	})
	engine.SetLogger(log.Component("engine"))
	engine.SetTracerProvider(otel.GetTracerProvider())

	metrics, err := automation.NewMetrics(reg)
	if err != nil {
		registry.Shutdown()
		return nil, nil, fmt.Errorf("registering engine metrics: %w", err)
	}
	engine.SetMetrics(metrics)

	return engine, registry, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db, mqttClient healthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// errUnknownCommand is returned for an unrecognised first argument.
var errUnknownCommand = errors.New("unknown command")
