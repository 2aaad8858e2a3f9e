package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
site:
  id: test-site
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Bus.RxPin != 6 || cfg.Bus.TxPin != 5 {
		t.Errorf("Bus pins = rx %d tx %d, want rx 6 tx 5", cfg.Bus.RxPin, cfg.Bus.TxPin)
	}
	if cfg.Bus.GlitchFilterUS != 150 {
		t.Errorf("Bus.GlitchFilterUS = %d, want 150", cfg.Bus.GlitchFilterUS)
	}
	if cfg.Bus.QueueSize != 16 {
		t.Errorf("Bus.QueueSize = %d, want 16", cfg.Bus.QueueSize)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
site:
  id: test-site
bus:
  rx_pin: 17
  tx_pin: 27
  glitch_filter_us: 100
  timing:
    half_bit_us: 420
    frame_timeout_ms: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Bus.RxPin != 17 || cfg.Bus.TxPin != 27 {
		t.Errorf("Bus pins = rx %d tx %d, want rx 17 tx 27", cfg.Bus.RxPin, cfg.Bus.TxPin)
	}
	if cfg.Bus.Timing.HalfBitUS != 420 {
		t.Errorf("Timing.HalfBitUS = %d, want 420", cfg.Bus.Timing.HalfBitUS)
	}
	if cfg.Bus.Timing.FrameTimeoutMS != 3 {
		t.Errorf("Timing.FrameTimeoutMS = %d, want 3", cfg.Bus.Timing.FrameTimeoutMS)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRAYDALI_MQTT_HOST", "broker.example")
	t.Setenv("GRAYDALI_PIGPIOD_HOST", "pi.example")
	t.Setenv("GRAYDALI_PIGPIOD_PORT", "9999")

	path := writeConfig(t, `
site:
  id: test-site
mqtt:
  broker:
    host: file-host
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Bus.Pigpiod.Host != "pi.example" {
		t.Errorf("Bus.Pigpiod.Host = %q, want env override", cfg.Bus.Pigpiod.Host)
	}
	if cfg.Bus.Pigpiod.Port != 9999 {
		t.Errorf("Bus.Pigpiod.Port = %d, want 9999", cfg.Bus.Pigpiod.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "rx pin out of range",
			mutate:  func(c *Config) { c.Bus.RxPin = 42 },
			wantErr: true,
		},
		{
			name:    "rx and tx pins identical",
			mutate:  func(c *Config) { c.Bus.TxPin = c.Bus.RxPin },
			wantErr: true,
		},
		{
			name:    "negative glitch filter",
			mutate:  func(c *Config) { c.Bus.GlitchFilterUS = -1 },
			wantErr: true,
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Bus.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "invalid pigpiod port",
			mutate:  func(c *Config) { c.Bus.Pigpiod.Port = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
