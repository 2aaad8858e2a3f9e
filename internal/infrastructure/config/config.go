package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic DALI bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bus      BusConfig      `yaml:"bus"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
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

// BusConfig contains DALI bus settings: the pigpio daemon endpoint, the GPIO
// pins wired to the bus transceiver, and the link-layer timing parameters.
type BusConfig struct {
	// Pigpiod is the pigpio daemon endpoint.
	Pigpiod PigpiodConfig `yaml:"pigpiod"`

	// RxPin is the BCM GPIO number connected to the bus receiver.
	RxPin int `yaml:"rx_pin"`

	// TxPin is the BCM GPIO number connected to the bus driver.
	TxPin int `yaml:"tx_pin"`

	// GlitchFilterUS is the hardware glitch filter width in microseconds.
	// Edges shorter than this are suppressed before they reach the decoder.
	GlitchFilterUS int `yaml:"glitch_filter_us"`

	// Timing overrides the link-layer timing windows. Zero values fall back
	// to the DALI nominal defaults (half bit 417us, short 350-490us,
	// long 760-900us, frame timeout 2ms).
	Timing BusTimingConfig `yaml:"timing"`

	// QueueSize is the capacity of the received-frame delivery queue.
	QueueSize int `yaml:"queue_size"`

	// HealthInterval is how often bridge health is published (seconds).
	HealthInterval int `yaml:"health_interval"`
}

// PigpiodConfig contains pigpio daemon connection details.
type PigpiodConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BusTimingConfig contains link-layer timing overrides in microseconds.
type BusTimingConfig struct {
	HalfBitUS      int `yaml:"half_bit_us"`
	ShortMinUS     int `yaml:"short_min_us"`
	ShortMaxUS     int `yaml:"short_max_us"`
	LongMinUS      int `yaml:"long_min_us"`
	LongMaxUS      int `yaml:"long_max_us"`
	FrameTimeoutMS int `yaml:"frame_timeout_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYDALI_SECTION_KEY
// For example: GRAYDALI_DATABASE_PATH, GRAYDALI_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/graydali.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-dali",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bus: BusConfig{
			Pigpiod: PigpiodConfig{
				Host: "localhost",
				Port: 8888,
			},
			RxPin:          6,
			TxPin:          5,
			GlitchFilterUS: 150,
			QueueSize:      16,
			HealthInterval: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYDALI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYDALI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYDALI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYDALI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYDALI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYDALI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Bus
	if v := os.Getenv("GRAYDALI_PIGPIOD_HOST"); v != "" {
		cfg.Bus.Pigpiod.Host = v
	}
	if v := os.Getenv("GRAYDALI_PIGPIOD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bus.Pigpiod.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Bus validation - the bridge owns two distinct GPIO pins
	const maxBCMPin = 31
	if c.Bus.RxPin < 0 || c.Bus.RxPin > maxBCMPin {
		errs = append(errs, "bus.rx_pin must be a valid BCM GPIO (0-31)")
	}
	if c.Bus.TxPin < 0 || c.Bus.TxPin > maxBCMPin {
		errs = append(errs, "bus.tx_pin must be a valid BCM GPIO (0-31)")
	}
	if c.Bus.RxPin == c.Bus.TxPin {
		errs = append(errs, "bus.rx_pin and bus.tx_pin must differ")
	}
	if c.Bus.GlitchFilterUS < 0 {
		errs = append(errs, "bus.glitch_filter_us must not be negative")
	}
	if c.Bus.QueueSize < 1 {
		errs = append(errs, "bus.queue_size must be at least 1")
	}
	if c.Bus.Pigpiod.Port < 1 || c.Bus.Pigpiod.Port > 65535 {
		errs = append(errs, "bus.pigpiod.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHealthInterval returns the health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bus.HealthInterval) * time.Second
}
