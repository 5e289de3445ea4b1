package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tasmota/internal/api"
	"github.com/nerrad567/gray-logic-tasmota/internal/audit"
	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/bridges/tasmota"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tasmota/internal/transport"
	"github.com/nerrad567/gray-logic-tasmota/migrations"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the device controller and API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}
}

// runServe wires the stack and blocks until ctx is cancelled. Deferred
// closes run in reverse order of construction.
func runServe(ctx context.Context) error {
	log := logging.Default()

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		log.Info("no config file found, using defaults", "path", defaultConfigPath)
	} else {
		log.Info("configuration loaded", "path", path)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("starting graylogic-tasmota",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	// Database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	// MQTT
	pool := mqtt.NewPool(cfg.MQTT)
	pool.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := pool.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	hub := transport.NewHub(pool, cfg.GetCommandTimeout())
	hub.SetLogger(log)

	influx := connectInflux(ctx, cfg, log)
	if influx != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// The WebSocket hub outlives the API server so the manager can
	// broadcast from the first device on.
	wsHub := api.NewHub(cfg.WebSocket, log)
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go wsHub.Run(hubCtx)

	opts := tasmota.Options{
		Registry:     registry,
		Transports:   tasmota.NewTransportFactory(hub, cfg.MQTT, cfg.GetHTTPTimeout()),
		Events:       wsHub,
		ProbeTimeout: cfg.GetStatusTimeout(),
		Logger:       log,
	}
	if influx != nil {
		opts.Metrics = influx
	}
	manager, err := tasmota.New(opts)
	if err != nil {
		return fmt.Errorf("creating device manager: %w", err)
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error stopping devices", "error", closeErr)
		}
	}()
	if err := manager.Seed(ctx, cfg.Tasmota.Devices); err != nil {
		return fmt.Errorf("seeding devices: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting devices: %w", err)
	}

	disco := discovery.NewEngine(pool.Endpoint(mqtt.DefaultBroker(cfg.MQTT)), manager.DiscoveryFactory(), cfg.Tasmota.GroupTopic)
	disco.SetLogger(log)

	routineRepo := automation.NewSQLiteRepository(db.DB)
	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     pool,
	}
	if influx != nil {
		health["influxdb"] = influx
	}

	server, err := api.New(api.Deps{
		Config:           cfg.API,
		WS:               cfg.WebSocket,
		Security:         cfg.Security,
		Logger:           log,
		Devices:          manager,
		Routines:         automation.NewEngine(routineRepo, wsHub, log),
		RoutineRepo:      routineRepo,
		Discovery:        disco,
		Audit:            audit.NewSQLiteRepository(db.DB),
		DiscoveryTimeout: cfg.GetDiscoveryTimeout(),
		Health:           health,
		Hub:              wsHub,
		Version:          version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "devices", manager.Len())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// connectInflux returns nil when InfluxDB is disabled or unreachable; the
// controller runs without telemetry export in both cases.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		return nil
	case err != nil:
		log.Warn("InfluxDB unavailable, telemetry export off", "url", cfg.InfluxDB.URL, "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}
