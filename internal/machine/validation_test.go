package machine

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Machine)
		wantErr error
	}{
		{"valid", func(_ *Machine) {}, nil},
		{"valid zero interval", func(m *Machine) { m.PollIntervalMS = 0 }, nil},
		{"empty name", func(m *Machine) { m.Name = "" }, ErrInvalidName},
		{"name too long", func(m *Machine) { m.Name = strings.Repeat("x", 200) }, ErrInvalidName},
		{"empty type", func(m *Machine) { m.Type = "" }, ErrInvalidType},
		{"uppercase type", func(m *Machine) { m.Type = "OctoPrint" }, ErrInvalidType},
		{"type starting with digit", func(m *Machine) { m.Type = "3dprint" }, ErrInvalidType},
		{"interval too small", func(m *Machine) { m.PollIntervalMS = 50 }, ErrInvalidPollInterval},
		{"interval too large", func(m *Machine) { m.PollIntervalMS = 4_000_000 }, ErrInvalidPollInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMachine("bench-printer")
			tt.mutate(m)

			err := Validate(m)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrInvalidMachine) {
		t.Errorf("Validate(nil) error = %v, want ErrInvalidMachine", err)
	}
}

func TestPollInterval_Fallback(t *testing.T) {
	m := testMachine("p")
	m.PollIntervalMS = 0

	if got := m.PollInterval(2 * time.Second); got != 2*time.Second {
		t.Errorf("PollInterval() = %v, want fallback 2s", got)
	}

	m.PollIntervalMS = 500
	if got := m.PollInterval(2 * time.Second); got != 500*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 500ms", got)
	}
}

func TestDeepCopy(t *testing.T) {
	m := testMachine("p")
	m.Config = Config{
		"base_url": "http://printer.local",
		"nested":   map[string]any{"key": "value"},
		"list":     []any{"a", "b"},
	}

	cpy := m.DeepCopy()
	cpy.Config["base_url"] = "changed"
	cpy.Config["nested"].(map[string]any)["key"] = "changed"

	if m.Config["base_url"] != "http://printer.local" {
		t.Error("DeepCopy shares top-level config map")
	}
	if m.Config["nested"].(map[string]any)["key"] != "value" {
		t.Error("DeepCopy shares nested config map")
	}
}
