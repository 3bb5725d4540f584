// Shopfloor Core - machine monitoring orchestration
//
// This is the main entry point for the Shopfloor Core service. It keeps
// one provider running per enabled machine registration, reconciles
// their status reports into a single table, and exposes the result over
// REST, WebSocket, MQTT, and InfluxDB telemetry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/shopfloor-io/shopfloor-core/migrations"

	"github.com/shopfloor-io/shopfloor-core/internal/api"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/config"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/database"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/influxdb"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/logging"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/mqtt"
	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/monitor"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
	"github.com/shopfloor-io/shopfloor-core/internal/providers/mqttpush"
	"github.com/shopfloor-io/shopfloor-core/internal/providers/octoprint"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Shopfloor Core",
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

	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Machine registry
	machineRepo := machine.NewSQLiteRepository(db.DB)
	registry := machine.NewRegistry(machineRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading machine registry: %w", refreshErr)
	}
	log.Info("machine registry initialised", "machines", registry.GetMachineCount())

	// MQTT broker connection (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Provider factories
	factories := provider.NewRegistry()
	if err := factories.Register("octoprint", octoprint.NewFactory(log)); err != nil {
		return fmt.Errorf("registering octoprint provider: %w", err)
	}
	if mqttClient != nil {
		if err := factories.Register("mqtt", mqttpush.NewFactory(mqttClient, log)); err != nil {
			return fmt.Errorf("registering mqtt provider: %w", err)
		}
	}
	log.Info("provider factories registered", "types", factories.Types())

	// Monitoring core
	reconciler := monitor.NewReconciler()
	orchestrator := monitor.NewOrchestrator(registry, factories, reconciler, monitor.Options{
		OfflineMultiplier:   cfg.Monitor.OfflineMultiplier,
		DefaultPollInterval: cfg.GetDefaultPollInterval(),
		QueueSize:           cfg.Monitor.EventQueueSize,
	}, log)
	defer func() {
		log.Info("stopping orchestrator")
		orchestrator.Stop()
	}()
	dispatcher := monitor.NewDispatcher(orchestrator, log)

	// Downstream subscribers: retained MQTT state and telemetry history
	if mqttClient != nil {
		reconciler.Subscribe(republishState(mqttClient, log))
	}
	if influxClient != nil {
		reconciler.Subscribe(recordTelemetry(influxClient))
	}

	// Converge handles to the stored registrations
	if syncErr := orchestrator.Sync(ctx); syncErr != nil {
		return fmt.Errorf("initial orchestrator sync: %w", syncErr)
	}
	log.Info("orchestrator synchronised", "running", orchestrator.Running())

	// API server
	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Registry:     registry,
		Reconciler:   reconciler,
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops accepting requests)
	// 2. Orchestrator (stops all provider handles)
	// 3. InfluxDB (flushes pending points, if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Shopfloor Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHOPFLOOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHOPFLOOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// retainedState is the JSON document republished to shopfloor/state/<id>.
type retainedState struct {
	MachineID   int64   `json:"machine_id"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	ElapsedMS   int64   `json:"elapsed_ms"`
	RemainingMS int64   `json:"remaining_ms"`
	Generation  uint64  `json:"generation"`
	UpdatedAt   string  `json:"updated_at"`
}

// republishState mirrors every reconciled status to a retained MQTT
// topic, so late subscribers get the current table for free.
func republishState(client *mqtt.Client, log *logging.Logger) monitor.Subscriber {
	topics := mqtt.Topics{}
	return func(status monitor.Status) {
		env := status.Envelope
		payload, err := json.Marshal(retainedState{
			MachineID:   env.MachineID,
			State:       string(env.State),
			Progress:    env.Progress,
			ElapsedMS:   env.Elapsed.Milliseconds(),
			RemainingMS: env.Remaining.Milliseconds(),
			Generation:  status.Generation,
			UpdatedAt:   status.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return
		}
		if err := client.Publish(topics.MachineState(env.MachineID), payload, 1, true); err != nil {
			log.Debug("state republish failed", "machine_id", env.MachineID, "error", err)
		}
	}
}

// recordTelemetry writes every reconciled status to InfluxDB.
func recordTelemetry(client *influxdb.Client) monitor.Subscriber {
	return func(status monitor.Status) {
		env := status.Envelope
		client.WriteMachineStatus(env.MachineID, string(env.State),
			env.Progress, env.Elapsed, env.Remaining)
		for heater, temp := range env.Temps {
			client.WriteHeaterTemperature(env.MachineID, heater, temp.Actual, temp.Target)
		}
	}
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
