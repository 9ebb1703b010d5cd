// BellBot Core - School Bell Control Server
//
// This is the main entry point for the BellBot server. It manages physical
// bell controllers over MQTT, serves the admin REST API and WebSocket event
// stream, and persists schools, devices, users and timetables in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/bellbot/bellbot-core/migrations"

	"github.com/bellbot/bellbot-core/internal/api"
	"github.com/bellbot/bellbot-core/internal/auth"
	"github.com/bellbot/bellbot-core/internal/bellnet"
	"github.com/bellbot/bellbot-core/internal/device"
	"github.com/bellbot/bellbot-core/internal/infrastructure/config"
	"github.com/bellbot/bellbot-core/internal/infrastructure/database"
	"github.com/bellbot/bellbot-core/internal/infrastructure/influxdb"
	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
	"github.com/bellbot/bellbot-core/internal/infrastructure/mqtt"
	"github.com/bellbot/bellbot-core/internal/school"
	"github.com/bellbot/bellbot-core/internal/timetable"
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

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BellBot Core",
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

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}
	log.Info("timezone resolved", "timezone", cfg.Bells.Timezone)

	// Open database
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

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	schoolRepo := school.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	scheduleRepo := timetable.NewSQLiteScheduleRepository(db.DB)
	presetRepo := timetable.NewSQLitePresetRepository(db.DB)
	specialRepo := timetable.NewSQLiteSpecialDayRepository(db.DB)

	// Seed the initial admin account on an empty user table
	if _, seedErr := auth.SeedAdmin(ctx, userRepo,
		os.Getenv("BELLBOT_ADMIN_EMAIL"),
		os.Getenv("BELLBOT_ADMIN_PASSWORD"),
		log,
	); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Correlation registry and publisher
	registry := bellnet.NewRegistry(log)
	publisher := bellnet.NewPublisher(bellnet.PublisherDeps{
		Broker:        mqttClient,
		Registry:      registry,
		Location:      loc,
		Logger:        log,
		StatusTimeout: cfg.Bells.StatusTimeoutDuration(),
		QueryTimeout:  cfg.Bells.QueryTimeoutDuration(),
	})
	provisioner := bellnet.NewProvisioner(bellnet.ProvisionerDeps{
		Publisher: publisher,
		Devices:   deviceRepo,
		Schools:   schoolRepo,
		Schedules: scheduleRepo,
		Presets:   presetRepo,
		Specials:  specialRepo,
		Location:  loc,
		Logger:    log,
	})

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
	} else {
		log.Info("InfluxDB disabled")
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Users:       userRepo,
		Schools:     schoolRepo,
		Devices:     deviceRepo,
		Schedules:   scheduleRepo,
		Presets:     presetRepo,
		Specials:    specialRepo,
		Publisher:   publisher,
		Provisioner: provisioner,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Dispatcher events fan out to WebSocket clients and, when InfluxDB
	// is enabled, to the telemetry store.
	sinks := []bellnet.EventSink{apiServer.Hub()}
	if influxClient != nil {
		sinks = append(sinks, bellnet.NewTelemetrySink(influxClient))
	}

	dispatcher := bellnet.NewDispatcher(bellnet.DispatcherDeps{
		Registry:       registry,
		Publisher:      publisher,
		Devices:        deviceRepo,
		Schools:        schoolRepo,
		Schedules:      scheduleRepo,
		Presets:        presetRepo,
		Specials:       specialRepo,
		Location:       loc,
		Logger:         log,
		DriftThreshold: cfg.Bells.DriftThresholdDuration(),
		QueueSize:      cfg.Bells.QueueSize,
		Events:         bellnet.NewFanoutSink(sinks...),
	})
	dispatcher.Start()
	defer func() {
		log.Info("stopping dispatcher")
		dispatcher.Stop()
	}()
	log.Info("dispatcher started", "queue_size", cfg.Bells.QueueSize)

	if err := subscribeInbound(mqttClient, dispatcher, byte(cfg.MQTT.QoS)); err != nil {
		return fmt.Errorf("subscribing to device topics: %w", err)
	}
	log.Info("device topic subscriptions established",
		"count", mqttClient.SubscriptionCount(),
	)

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
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
	// 1. API server (stop accepting requests)
	// 2. Dispatcher (drain consumer)
	// 3. InfluxDB (if enabled, flush pending writes)
	// 4. MQTT
	// 5. Database

	log.Info("BellBot Core stopped")
	return nil
}

// subscribeInbound registers the dispatcher for every topic family
// controllers publish on, including the legacy status-response topic that
// pre-bellctl firmware still uses.
func subscribeInbound(client *mqtt.Client, d *bellnet.Dispatcher, qos byte) error {
	var topics mqtt.Topics
	handler := d.Handler()

	patterns := []string{
		topics.AllTimeAcks(),
		topics.AllTimeReports(),
		topics.AllTimeResponses(),
		topics.AllCurrentTimetables(),
		topics.AllFreshnessQueries(),
		topics.AllSyncRequests(),
		topics.AllStatusResponses(),
		topics.AllLegacyStatusResponses(),
	}

	for _, pattern := range patterns {
		if err := client.Subscribe(pattern, qos, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BELLBOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BELLBOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when telemetry is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
