package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// Status is one reconciled table entry: the machine's current envelope
// plus bookkeeping about when and under which handle generation it
// arrived.
type Status struct {
	Envelope   provider.Envelope
	Generation uint64
	UpdatedAt  time.Time
}

// Subscriber receives reconciled status updates. Subscribers are called
// synchronously from the accepting goroutine and must return quickly;
// anything slow belongs behind the subscriber's own queue.
type Subscriber func(Status)

// ReconcilerStats are cumulative counters exposed via the metrics endpoint.
type ReconcilerStats struct {
	Accepted     uint64 `json:"accepted"`
	StaleDropped uint64 `json:"stale_dropped"`
	Duplicates   uint64 `json:"duplicates"`
	Purged       uint64 `json:"purged"`
}

// Reconciler maintains the authoritative status table: one entry per
// machine, last write wins.
//
// Writes are gated by handle generation: before starting a handle the
// orchestrator bumps the machine's generation, and any envelope carrying
// an older generation is dropped. This closes the restart race where a
// slow emission from a stopped provider would otherwise overwrite fresh
// state from its replacement.
type Reconciler struct {
	mu          sync.RWMutex
	table       map[int64]Status
	generations map[int64]uint64

	subMu       sync.RWMutex
	subscribers []Subscriber

	accepted     atomic.Uint64
	staleDropped atomic.Uint64
	duplicates   atomic.Uint64
	purged       atomic.Uint64
}

// NewReconciler creates an empty status table.
func NewReconciler() *Reconciler {
	return &Reconciler{
		table:       make(map[int64]Status),
		generations: make(map[int64]uint64),
	}
}

// Subscribe registers a callback for accepted status updates.
// Subscriptions are permanent; register them during wiring.
func (r *Reconciler) Subscribe(sub Subscriber) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// SetGeneration records the current handle generation for a machine.
// Called by the orchestrator before each handle start; generations only
// move forward.
func (r *Reconciler) SetGeneration(machineID int64, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation > r.generations[machineID] {
		r.generations[machineID] = generation
	}
}

// Accept applies one envelope to the table and reports whether it was
// recorded. Envelopes from superseded generations are dropped. An
// envelope whose ID matches the current entry's refreshes the entry
// without notifying subscribers, so redelivered messages cannot fan out
// twice.
func (r *Reconciler) Accept(env provider.Envelope, generation uint64) bool {
	r.mu.Lock()

	if generation < r.generations[env.MachineID] {
		r.mu.Unlock()
		r.staleDropped.Add(1)
		return false
	}

	duplicate := false
	if current, ok := r.table[env.MachineID]; ok && current.Envelope.ID == env.ID {
		duplicate = true
	}

	status := Status{
		Envelope:   env,
		Generation: generation,
		UpdatedAt:  time.Now(),
	}
	r.table[env.MachineID] = status
	r.mu.Unlock()

	if duplicate {
		r.duplicates.Add(1)
		return true
	}

	r.accepted.Add(1)
	r.notify(status)
	return true
}

// Get returns the current status for a machine.
func (r *Reconciler) Get(machineID int64) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.table[machineID]
	return status, ok
}

// List returns the full status table keyed by machine ID.
func (r *Reconciler) List() map[int64]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]Status, len(r.table))
	for id, status := range r.table {
		out[id] = status
	}
	return out
}

// Purge removes a machine's entry and generation record. Called when a
// machine registration is deleted; a merely disabled machine keeps its
// last known status.
func (r *Reconciler) Purge(machineID int64) {
	r.mu.Lock()
	_, existed := r.table[machineID]
	delete(r.table, machineID)
	delete(r.generations, machineID)
	r.mu.Unlock()

	if existed {
		r.purged.Add(1)
	}
}

// Stats returns cumulative reconciler counters.
func (r *Reconciler) Stats() ReconcilerStats {
	return ReconcilerStats{
		Accepted:     r.accepted.Load(),
		StaleDropped: r.staleDropped.Load(),
		Duplicates:   r.duplicates.Load(),
		Purged:       r.purged.Load(),
	}
}

func (r *Reconciler) notify(status Status) {
	r.subMu.RLock()
	subs := r.subscribers
	r.subMu.RUnlock()

	for _, sub := range subs {
		sub(status)
	}
}
