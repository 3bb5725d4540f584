package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// fakeProvider is a scripted provider driven from test code.
type fakeProvider struct {
	mu       sync.Mutex
	emit     provider.EmitFunc
	stopped  bool
	startErr error

	commands   []string
	commandErr error
}

func (f *fakeProvider) Start(_ context.Context, emit provider.EmitFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.emit = emit
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// emitNow pushes an envelope as if the device reported it. Honours the
// no-emissions-after-Stop contract.
func (f *fakeProvider) emitNow(env provider.Envelope) {
	f.mu.Lock()
	emit, stopped := f.emit, f.stopped
	f.mu.Unlock()

	if stopped || emit == nil {
		return
	}
	emit(env)
}

func (f *fakeProvider) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeProvider) command(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands = append(f.commands, name)
	return nil
}

func (f *fakeProvider) PauseJob(_ context.Context) error  { return f.command("pause") }
func (f *fakeProvider) ResumeJob(_ context.Context) error { return f.command("resume") }
func (f *fakeProvider) CancelJob(_ context.Context) error { return f.command("cancel") }

// fakeSource is a mutable in-memory MachineSource.
type fakeSource struct {
	mu       sync.Mutex
	machines map[int64]machine.Machine
}

func newFakeSource(machines ...machine.Machine) *fakeSource {
	s := &fakeSource{machines: make(map[int64]machine.Machine)}
	for _, m := range machines {
		s.machines[m.ID] = m
	}
	return s
}

func (s *fakeSource) ListMachines(_ context.Context) ([]machine.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]machine.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeSource) put(m machine.Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[m.ID] = m
}

func (s *fakeSource) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, id)
}

// providerTracker is a factory that records every provider it builds,
// keyed by machine ID in creation order.
type providerTracker struct {
	mu    sync.Mutex
	built map[int64][]*fakeProvider
}

func newProviderTracker() *providerTracker {
	return &providerTracker{built: make(map[int64][]*fakeProvider)}
}

func (p *providerTracker) factory(m machine.Machine, _ time.Duration) (provider.Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fp := &fakeProvider{}
	p.built[m.ID] = append(p.built[m.ID], fp)
	return fp, nil
}

// latest returns the most recently built provider for a machine.
func (p *providerTracker) latest(machineID int64) *fakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()

	providers := p.built[machineID]
	if len(providers) == 0 {
		return nil
	}
	return providers[len(providers)-1]
}

func (p *providerTracker) buildCount(machineID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.built[machineID])
}

func fakeMachine(id int64, enabled bool) machine.Machine {
	return machine.Machine{
		ID:             id,
		Name:           "machine",
		Type:           "fake",
		Enabled:        enabled,
		PollIntervalMS: 1000,
	}
}

func testOptions() Options {
	return Options{
		OfflineMultiplier:   2,
		DefaultPollInterval: time.Second,
		QueueSize:           16,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
