// Habitat Core - home automation hub
//
// This is the main entry point for the Habitat Core application: the
// device-orchestration layer between protocol adapters below and
// dashboards and automations above. It is designed for:
//   - Offline-first operation on a trusted local network
//   - Failure-tolerant boot: one broken integration never blocks the rest
//   - Space-centric control: consumers address rooms, never devices
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/habitat-home/habitat-core/migrations"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/adapter/execproc"
	"github.com/habitat-home/habitat-core/internal/adapter/virtual"
	"github.com/habitat-home/habitat-core/internal/api"
	"github.com/habitat-home/habitat-core/internal/engine"
	"github.com/habitat-home/habitat-core/internal/habitat"
	"github.com/habitat-home/habitat-core/internal/infrastructure/config"
	"github.com/habitat-home/habitat-core/internal/infrastructure/database"
	"github.com/habitat-home/habitat-core/internal/infrastructure/influxdb"
	"github.com/habitat-home/habitat-core/internal/infrastructure/logging"
	"github.com/habitat-home/habitat-core/internal/infrastructure/mqtt"
	"github.com/habitat-home/habitat-core/internal/secrets"
	"github.com/habitat-home/habitat-core/internal/space"
	"github.com/habitat-home/habitat-core/internal/state"
	"github.com/habitat-home/habitat-core/internal/supervisor"
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
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Habitat Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "home", cfg.Home.Name)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and apply migrations
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories over the configuration store
	spaceRepo := space.NewSQLiteRepository(db.DB)
	stateRepo := state.NewSQLiteRepository(db.DB)
	adapterRepo := supervisor.NewSQLiteRepository(db.DB)

	// Secret store for adapter config references
	secretStore, err := buildSecretStore(cfg.Secrets)
	if err != nil {
		return fmt.Errorf("initialising secret store: %w", err)
	}

	// Adapter type registry with the built-in implementations
	adapterTypes := adapter.NewRegistry()
	adapterTypes.SetLogger(log)
	virtual.Register(adapterTypes)
	execproc.Register(adapterTypes)
	log.Info("adapter types registered", "types", adapterTypes.Types())

	// Core composition: space registry, supervisor, engine, facade
	spaces := space.NewRegistry()
	spaces.SetLogger(log)

	sup := supervisor.New(adapterTypes, spaces, secretStore, supervisor.Options{
		CallTimeout:         cfg.CallTimeout(),
		LogCapacity:         cfg.Supervisor.LogCapacity,
		RestartInitialDelay: time.Duration(cfg.Supervisor.RestartInitialDelaySeconds) * time.Second,
		RestartMaxDelay:     time.Duration(cfg.Supervisor.RestartMaxDelaySeconds) * time.Second,
	})
	sup.SetLogger(log)

	eng := engine.New(spaces, sup, stateRepo)
	eng.SetLogger(log)
	sup.SetStateHandler(eng)

	hab := habitat.New(spaces, eng, sup, habitat.Repositories{
		Spaces:   spaceRepo,
		Adapters: adapterRepo,
	}, habitat.Options{
		EventBufferSize: cfg.Habitat.EventBufferSize,
		ReseedInterval:  cfg.CollectionReseedInterval(),
	})
	hab.SetLogger(log)

	// Connect to the MQTT event bus (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		hab.SetPublisher(mqttClient)
	} else {
		log.Info("MQTT disabled; events served from the ring buffer only")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		hab.SetRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Boot the system: graph load, parallel adapter start, cache seeding
	if err := hab.Start(ctx); err != nil {
		return fmt.Errorf("starting habitat: %w", err)
	}
	defer hab.Stop(context.Background())

	// HTTP and WebSocket surface
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Spaces:     spaces,
		Engine:     eng,
		Supervisor: sup,
		Habitat:    hab,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Habitat facade (adapters)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Habitat Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HABITAT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HABITAT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildSecretStore constructs the secret store named by the config.
func buildSecretStore(cfg config.SecretsConfig) (secrets.Store, error) {
	switch cfg.Provider {
	case "", "env":
		return secrets.EnvStore{}, nil
	case "file":
		store, err := secrets.LoadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("loading secrets file: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// The optional clients may be nil when disabled.
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
