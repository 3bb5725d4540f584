package influxdb

import (
	"errors"
	"testing"

	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWrite_Disconnected(t *testing.T) {
	// Writes on a disconnected client are dropped, never panic.
	c := &Client{}
	c.WriteMachineStatus(1, "idle", 0, 0, 0)
	c.WriteHeaterTemperature(1, 0, 21.5, 0)
}

func TestIsConnected_Initial(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("IsConnected() = true for zero client, want false")
	}
}
