package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// Handle is one running provider attached to the status table.
//
// It owns two goroutines: a pump that forwards emitted envelopes to the
// reconciler in arrival order, and a liveness checker that synthesizes
// an offline status when the provider goes silent for longer than the
// offline window (poll interval times the offline multiplier).
//
// A handle runs exactly once. Stop is idempotent and returns only after
// both goroutines have exited and the provider has quiesced.
type Handle struct {
	machine    machine.Machine
	generation uint64
	interval   time.Duration
	window     time.Duration
	prov       provider.Provider
	reconciler *Reconciler
	logger     Logger

	queue chan provider.Envelope

	// lastSeen is the arrival time (UnixNano) of the most recent real
	// emission. Synthesized offline envelopes do not refresh it.
	lastSeen      atomic.Int64
	offlineMarked atomic.Bool

	cancel       context.CancelFunc
	done         chan struct{}
	wg           sync.WaitGroup
	stopOnce     sync.Once
	teardownOnce sync.Once
	stopped      atomic.Bool
}

// newHandle wires a provider to the reconciler under one generation.
func newHandle(m machine.Machine, generation uint64, interval time.Duration,
	multiplier int, queueSize int, prov provider.Provider,
	reconciler *Reconciler, logger Logger) *Handle {
	return &Handle{
		machine:    m,
		generation: generation,
		interval:   interval,
		window:     interval * time.Duration(multiplier),
		prov:       prov,
		reconciler: reconciler,
		logger:     logger,
		queue:      make(chan provider.Envelope, queueSize),
		done:       make(chan struct{}),
	}
}

// Start launches the pump and liveness goroutines, then starts the
// provider. On provider start failure the handle is fully torn down
// before returning.
func (h *Handle) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)

	h.lastSeen.Store(time.Now().UnixNano())

	h.wg.Add(2)
	go h.pump()
	go h.checkLiveness()

	if err := h.prov.Start(ctx, h.emit); err != nil {
		h.teardown()
		return fmt.Errorf("monitor: starting provider for machine %d (gen %d): %w",
			h.machine.ID, h.generation, err)
	}

	h.logger.Info("handle started",
		"machine_id", h.machine.ID,
		"type", h.machine.Type,
		"generation", h.generation,
		"interval", h.interval.String())
	return nil
}

// Stop shuts the handle down and waits for quiescence. Safe to call
// multiple times and from multiple goroutines.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		if h.cancel != nil {
			h.cancel()
		}
		// Provider contract: no emissions after Stop returns, so the
		// pump can drain and exit once this call completes.
		h.prov.Stop()
		h.teardown()

		h.logger.Info("handle stopped",
			"machine_id", h.machine.ID,
			"generation", h.generation)
	})
}

func (h *Handle) teardown() {
	h.teardownOnce.Do(func() {
		h.stopped.Store(true)
		close(h.done)
		h.wg.Wait()
	})
}

// Generation returns the handle's generation number.
func (h *Handle) Generation() uint64 { return h.generation }

// Machine returns the registration snapshot the handle was built from.
func (h *Handle) Machine() machine.Machine { return h.machine }

// emit is the EmitFunc handed to the provider. Emissions arriving after
// Stop are discarded.
func (h *Handle) emit(env provider.Envelope) {
	if h.stopped.Load() {
		return
	}

	h.lastSeen.Store(time.Now().UnixNano())
	h.offlineMarked.Store(false)

	select {
	case h.queue <- env:
	case <-h.done:
	}
}

// pump forwards queued envelopes to the reconciler in order. On
// shutdown it drains whatever is already buffered, so nothing queued
// before Stop is lost.
func (h *Handle) pump() {
	defer h.wg.Done()

	for {
		select {
		case env := <-h.queue:
			h.reconciler.Accept(env, h.generation)
		case <-h.done:
			for {
				select {
				case env := <-h.queue:
					h.reconciler.Accept(env, h.generation)
				default:
					return
				}
			}
		}
	}
}

// checkLiveness watches for provider silence. It runs at half the poll
// interval so an offline machine is detected no later than one check
// period past the window. Each silence episode synthesizes exactly one
// offline envelope; the next real emission rearms the detector.
func (h *Handle) checkLiveness() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			silence := time.Since(time.Unix(0, h.lastSeen.Load()))
			if silence <= h.window {
				continue
			}
			if h.offlineMarked.Swap(true) {
				continue
			}

			h.logger.Warn("machine went silent, marking offline",
				"machine_id", h.machine.ID,
				"generation", h.generation,
				"silence", silence.String())

			env := provider.NewEnvelope(h.machine.ID, provider.StateOffline)
			select {
			case h.queue <- env:
			case <-h.done:
				return
			}
		}
	}
}

// PauseJob forwards a pause command to the provider.
func (h *Handle) PauseJob(ctx context.Context) error {
	if h.stopped.Load() {
		return ErrHandleStopped
	}
	return h.prov.PauseJob(ctx)
}

// ResumeJob forwards a resume command to the provider.
func (h *Handle) ResumeJob(ctx context.Context) error {
	if h.stopped.Load() {
		return ErrHandleStopped
	}
	return h.prov.ResumeJob(ctx)
}

// CancelJob forwards a cancel command to the provider.
func (h *Handle) CancelJob(ctx context.Context) error {
	if h.stopped.Load() {
		return ErrHandleStopped
	}
	return h.prov.CancelJob(ctx)
}
