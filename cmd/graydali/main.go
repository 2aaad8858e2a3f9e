// Gray Logic DALI Bridge
//
// This is the main entry point for the Gray Logic DALI bridge. It
// connects a DALI lighting bus (via the pigpio daemon on a Raspberry
// Pi) to the Gray Logic MQTT fabric:
//   - Decodes bus frames and publishes them to graylogic/frame/dali
//   - Transmits frames received on graylogic/send/dali
//   - Records observed traffic in SQLite for commissioning
//   - Publishes retained health status for Core dashboards
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-dali/migrations"

	"github.com/nerrad567/gray-logic-dali/internal/bridges/dali"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dali/internal/pigpiod"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic DALI bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	influxClient, err = influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	// Connect to the pigpio daemon
	daemon, err := pigpiod.Connect(ctx, pigpiod.Config{
		Host: cfg.Bus.Pigpiod.Host,
		Port: cfg.Bus.Pigpiod.Port,
	})
	if err != nil {
		return fmt.Errorf("connecting to pigpiod: %w", err)
	}
	defer func() {
		log.Info("closing pigpiod connection")
		if closeErr := daemon.Close(); closeErr != nil {
			log.Error("error closing pigpiod", "error", closeErr)
		}
	}()
	log.Info("pigpiod connected",
		"host", cfg.Bus.Pigpiod.Host,
		"port", cfg.Bus.Pigpiod.Port,
	)

	// Open the edge notification stream for the rx pin
	listener, err := daemon.Listen(1 << uint(cfg.Bus.RxPin))
	if err != nil {
		return fmt.Errorf("opening edge stream: %w", err)
	}
	log.Info("edge stream open", "rx_pin", cfg.Bus.RxPin)

	// Create and start the bridge
	bridge, err := newBridge(cfg, daemon, listener, mqttClient, db, influxClient)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("creating DALI bridge: %w", err)
	}
	bridge.SetLogger(log)

	if err := bridge.Start(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("starting DALI bridge: %w", err)
	}
	defer func() {
		log.Info("stopping DALI bridge")
		bridge.Stop()
	}()
	log.Info("DALI bridge started")

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Bridge (cancels watchdog, closes edge stream)
	// 2. pigpiod
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic DALI bridge stopped")
	return nil
}

// newBridge wires the bridge options from the connected infrastructure.
// InfluxDB is passed through an interface so a nil client stays nil.
func newBridge(cfg *config.Config, daemon *pigpiod.Client, listener *pigpiod.Listener, mqttClient *mqtt.Client, db *database.DB, influxClient *influxdb.Client) (*dali.Bridge, error) {
	opts := dali.BridgeOptions{
		Config:  cfg,
		Daemon:  daemon,
		Edges:   listener,
		MQTT:    mqttClient,
		DB:      db.DB,
		Version: version,
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}
	return dali.NewBridge(opts)
}

// getConfigPath returns the configuration file path.
// Uses GRAYDALI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYDALI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	// Bridge health is verified during Start() - it configures the bus
	// pins and subscribes to the send topic before returning.

	return nil
}
