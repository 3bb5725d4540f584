package machine

import "time"

// Machine represents one configured device registration: a 3D printer or
// CNC machine the core monitors. This matches the machines table in
// migrations/20260801_120000_initial_schema.up.sql.
type Machine struct {
	// Identity
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Type is the provider type tag (e.g. "octoprint", "mqtt"). The
	// orchestrator resolves it against the provider factory registry.
	Type string `json:"type"`

	// Enabled controls whether the orchestrator runs a monitor for this
	// machine. Disabled machines keep their registration but have no
	// live handle.
	Enabled bool `json:"enabled"`

	// PollIntervalMS is the monitoring cadence in milliseconds. It also
	// bounds the liveness window (interval * multiplier). Zero means
	// "use the configured default".
	PollIntervalMS int64 `json:"poll_interval_ms"`

	// Config is the opaque provider configuration blob (connection
	// address, credentials, topics). The core passes it through to the
	// provider factory unmodified.
	Config Config `json:"config"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config is the opaque provider configuration for a machine.
// The core never interprets its contents.
type Config map[string]any

// PollInterval returns the poll interval as a Duration, or fallback when
// the registration does not specify one.
func (m *Machine) PollInterval(fallback time.Duration) time.Duration {
	if m.PollIntervalMS <= 0 {
		return fallback
	}
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// DeepCopy creates a complete independent copy of the Machine.
// The config map is cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (m *Machine) DeepCopy() *Machine {
	if m == nil {
		return nil
	}

	cpy := *m
	cpy.Config = deepCopyMap(m.Config)
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, etc.) are safe to copy by value
		return val
	}
}
