package provider

import (
	"context"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
)

// EmitFunc delivers one status envelope from a provider to its handle.
//
// Providers call it from their own goroutines. The function may block
// briefly under backpressure but never panics; envelopes emitted after
// the provider's context is cancelled are silently discarded by the
// receiving handle.
type EmitFunc func(Envelope)

// Provider is one running device monitor: the core's view of a single
// machine-specific integration (HTTP poller, MQTT listener, serial
// connection).
//
// Lifecycle: a provider instance is used exactly once. Start begins
// monitoring; Stop tears it down. A stopped provider is never restarted -
// the orchestrator constructs a fresh instance (and a fresh handle
// generation) instead.
type Provider interface {
	// Start begins monitoring and returns once the provider is running
	// or has definitively failed. Implementations must:
	//   - emit at least one envelope per poll interval while running,
	//     even when the device is idle (liveness depends on this)
	//   - observe ctx promptly: the context is cancelled on Stop, and
	//     in-flight network I/O must not outlive it by more than one
	//     poll interval
	//   - wrap definitive startup failures (bad credentials, unreachable
	//     host) with ErrStartFailed
	Start(ctx context.Context, emit EmitFunc) error

	// Stop terminates monitoring and releases resources. Idempotent.
	// After Stop returns no further emissions occur.
	Stop()

	// PauseJob requests that the current job be paused.
	// The error, if any, is the device's own and is surfaced verbatim.
	PauseJob(ctx context.Context) error

	// ResumeJob requests that a paused job be resumed.
	ResumeJob(ctx context.Context) error

	// CancelJob requests that the current job be aborted.
	CancelJob(ctx context.Context) error
}

// Factory constructs a provider instance for one machine registration.
//
// The machine's opaque Config blob carries provider-specific settings
// (connection address, credentials, topics); interval is the resolved
// poll interval for the machine. Factories validate config eagerly and
// return an error for malformed registrations - before any I/O happens.
type Factory func(m machine.Machine, interval time.Duration) (Provider, error)
