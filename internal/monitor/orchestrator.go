package monitor

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// Logger is the logging interface used by the monitor package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MachineSource supplies the current set of machine registrations.
// Satisfied by *machine.Registry.
type MachineSource interface {
	ListMachines(ctx context.Context) ([]machine.Machine, error)
}

// Options tunes orchestrator behaviour.
type Options struct {
	// OfflineMultiplier scales the poll interval into the offline
	// window: a machine silent for longer than interval*multiplier is
	// marked offline.
	OfflineMultiplier int

	// DefaultPollInterval applies to machines that do not set their own.
	DefaultPollInterval time.Duration

	// QueueSize is the per-handle envelope queue capacity.
	QueueSize int
}

// OrchestratorStats are cumulative counters exposed via the metrics endpoint.
type OrchestratorStats struct {
	Running       int    `json:"running"`
	Syncs         uint64 `json:"syncs"`
	Starts        uint64 `json:"starts"`
	StartFailures uint64 `json:"start_failures"`
	Stops         uint64 `json:"stops"`
}

// Orchestrator converges the set of running handles onto the set of
// enabled machine registrations.
//
// Sync is the only mutation path: it stops handles whose machines were
// disabled or deleted, restarts handles whose registrations changed, and
// starts handles for newly enabled machines. Each start bumps the
// machine's generation so envelopes from a superseded handle can never
// land in the table.
type Orchestrator struct {
	source     MachineSource
	factories  *provider.Registry
	reconciler *Reconciler
	opts       Options
	logger     Logger

	mu          sync.Mutex
	handles     map[int64]*Handle
	generations map[int64]uint64

	syncs         atomic.Uint64
	starts        atomic.Uint64
	startFailures atomic.Uint64
	stops         atomic.Uint64
}

// NewOrchestrator creates an orchestrator with no running handles.
func NewOrchestrator(source MachineSource, factories *provider.Registry,
	reconciler *Reconciler, opts Options, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		source:      source,
		factories:   factories,
		reconciler:  reconciler,
		opts:        opts,
		logger:      logger,
		handles:     make(map[int64]*Handle),
		generations: make(map[int64]uint64),
	}
}

// Sync converges running handles to the current registrations. It is
// safe to call concurrently; calls serialize. A provider that fails to
// start is logged and skipped; the next Sync retries it.
func (o *Orchestrator) Sync(ctx context.Context) error {
	machines, err := o.source.ListMachines(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.syncs.Add(1)

	known := make(map[int64]machine.Machine, len(machines))
	desired := make(map[int64]machine.Machine)
	for _, m := range machines {
		known[m.ID] = m
		if m.Enabled {
			desired[m.ID] = m
		}
	}

	// Stop handles for machines that are disabled or gone. A disabled
	// machine keeps its last table entry; a deleted one is purged.
	for id, h := range o.handles {
		if _, want := desired[id]; want {
			continue
		}
		h.Stop()
		delete(o.handles, id)
		o.stops.Add(1)
	}
	for id := range o.generations {
		if _, exists := known[id]; !exists {
			delete(o.generations, id)
			o.reconciler.Purge(id)
		}
	}

	// Start or restart handles for enabled machines.
	for id, m := range desired {
		if h, running := o.handles[id]; running {
			if sameSpec(h.Machine(), m) {
				continue
			}
			h.Stop()
			delete(o.handles, id)
			o.stops.Add(1)
		}
		o.startHandle(ctx, m)
	}

	return nil
}

// startHandle builds and starts a handle under a fresh generation.
// Caller holds o.mu.
func (o *Orchestrator) startHandle(ctx context.Context, m machine.Machine) {
	interval := m.PollInterval(o.opts.DefaultPollInterval)

	prov, err := o.factories.Build(m, interval)
	if err != nil {
		o.startFailures.Add(1)
		o.logger.Error("building provider failed",
			"machine_id", m.ID, "type", m.Type, "error", err)
		return
	}

	gen := o.generations[m.ID] + 1
	o.generations[m.ID] = gen
	o.reconciler.SetGeneration(m.ID, gen)

	h := newHandle(m, gen, interval, o.opts.OfflineMultiplier,
		o.opts.QueueSize, prov, o.reconciler, o.logger)
	if err := h.Start(ctx); err != nil {
		o.startFailures.Add(1)
		o.logger.Error("starting handle failed",
			"machine_id", m.ID, "type", m.Type, "generation", gen, "error", err)
		return
	}

	o.handles[m.ID] = h
	o.starts.Add(1)
}

// Stop stops all running handles. Used during shutdown.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, h := range o.handles {
		h.Stop()
		delete(o.handles, id)
		o.stops.Add(1)
	}
}

// handleFor returns the running handle for a machine, if any.
func (o *Orchestrator) handleFor(machineID int64) (*Handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	h, ok := o.handles[machineID]
	return h, ok
}

// Running returns the number of running handles.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

// Stats returns cumulative orchestrator counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	return OrchestratorStats{
		Running:       o.Running(),
		Syncs:         o.syncs.Load(),
		Starts:        o.starts.Load(),
		StartFailures: o.startFailures.Load(),
		Stops:         o.stops.Load(),
	}
}

// sameSpec reports whether two registration snapshots would produce an
// identical handle. Name changes do not force a restart; anything that
// affects the provider or its cadence does.
func sameSpec(a, b machine.Machine) bool {
	return a.Type == b.Type &&
		a.PollIntervalMS == b.PollIntervalMS &&
		reflect.DeepEqual(a.Config, b.Config)
}
