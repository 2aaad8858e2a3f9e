package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWrite_NotConnectedIsNoOp(t *testing.T) {
	c := &Client{}

	// Must not panic even though no write API exists.
	c.WriteFrame("rx", 0xFE00, 16)
	c.WriteBusCounters(1, 2, 3, 4)
	c.WritePoint("dali_bus", nil, map[string]interface{}{"v": 1})
	c.Flush()
}
