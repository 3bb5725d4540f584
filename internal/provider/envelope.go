package provider

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a monitored machine.
type State string

// Machine lifecycle states.
const (
	// StateOffline means the machine is unreachable or has gone silent.
	StateOffline State = "offline"

	// StateIdle means the machine is reachable with no job running.
	StateIdle State = "idle"

	// StatePaused means the current job is paused.
	StatePaused State = "paused"

	// StateOperational means a job is actively running.
	StateOperational State = "operational"
)

// Valid reports whether s is a recognised lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateOffline, StateIdle, StatePaused, StateOperational:
		return true
	}
	return false
}

// Temp is one heater temperature reading: measured and setpoint, in
// degrees Celsius.
type Temp struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Envelope is one immutable point-in-time status snapshot emitted by a
// provider. Envelopes are values; once created they are never mutated.
//
// The ID exists purely for deduplication and tracing - two envelopes
// with different IDs but identical remaining fields are Equal.
type Envelope struct {
	// ID uniquely identifies this emission (UUID).
	ID string

	// MachineID is the machine registration this status belongs to.
	MachineID int64

	// State is the machine's lifecycle state at emission time.
	State State

	// Elapsed is the running time of the current job, zero when idle.
	Elapsed time.Duration

	// Remaining is the estimated time to job completion, zero when unknown.
	Remaining time.Duration

	// Progress is the job completion fraction in [0,1].
	Progress float64

	// Temps maps heater index to its temperature reading. Key order
	// carries no meaning; providers may report heaters in any order.
	Temps map[int]Temp
}

// NewEnvelope creates an envelope with a fresh unique ID.
func NewEnvelope(machineID int64, state State) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		MachineID: machineID,
		State:     state,
	}
}

// Equal reports structural equality over all fields except ID.
// The temperature map is compared by key/value, independent of any
// iteration or insertion order.
func (e Envelope) Equal(other Envelope) bool {
	if e.MachineID != other.MachineID ||
		e.State != other.State ||
		e.Elapsed != other.Elapsed ||
		e.Remaining != other.Remaining ||
		e.Progress != other.Progress {
		return false
	}

	if len(e.Temps) != len(other.Temps) {
		return false
	}
	for heater, temp := range e.Temps {
		otherTemp, ok := other.Temps[heater]
		if !ok || temp != otherTemp {
			return false
		}
	}

	return true
}

// CloneTemps returns an independent copy of the temperature map.
// Providers that reuse a scratch map between emissions must clone it
// before handing the envelope off.
func CloneTemps(temps map[int]Temp) map[int]Temp {
	if temps == nil {
		return nil
	}
	cpy := make(map[int]Temp, len(temps))
	for k, v := range temps {
		cpy[k] = v
	}
	return cpy
}
