package machine

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides machine management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[int64]*Machine
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new machine registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[int64]*Machine),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all machines from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	machines, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading machines: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[int64]*Machine, len(machines))
	for i := range machines {
		m := machines[i]
		r.cache[m.ID] = m.DeepCopy()
	}

	r.logger.Info("machine cache refreshed", "count", len(machines))
	return nil
}

// GetMachine retrieves a machine by ID.
// Returns ErrMachineNotFound if the machine does not exist.
// The returned machine is a deep copy; callers can safely modify it.
func (r *Registry) GetMachine(ctx context.Context, id int64) (*Machine, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new machine not yet cached)
	m, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = m.DeepCopy()
	r.cacheMu.Unlock()

	return m, nil
}

// ListMachines retrieves all machines.
// The returned machines are deep copies; callers can safely modify them.
func (r *Registry) ListMachines(ctx context.Context) ([]Machine, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		machines := make([]Machine, 0, len(r.cache))
		for _, m := range r.cache {
			machines = append(machines, *m.DeepCopy())
		}
		return machines, nil
	}

	return r.repo.List(ctx)
}

// ListEnabledMachines retrieves all enabled machines.
// This is the orchestrator's view: the set of machines that should have
// a live monitor handle.
func (r *Registry) ListEnabledMachines(ctx context.Context) ([]Machine, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var machines []Machine
		for _, m := range r.cache {
			if m.Enabled {
				machines = append(machines, *m.DeepCopy())
			}
		}
		return machines, nil
	}

	return r.repo.ListEnabled(ctx)
}

// CreateMachine validates and persists a new machine registration.
func (r *Registry) CreateMachine(ctx context.Context, m *Machine) error {
	if err := Validate(m); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, m); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[m.ID] = m.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("machine created", "machine_id", m.ID, "name", m.Name, "type", m.Type)
	return nil
}

// UpdateMachine validates and persists changes to a machine registration.
func (r *Registry) UpdateMachine(ctx context.Context, m *Machine) error {
	if err := Validate(m); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, m); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[m.ID] = m.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("machine updated", "machine_id", m.ID, "name", m.Name)
	return nil
}

// DeleteMachine removes a machine registration.
func (r *Registry) DeleteMachine(ctx context.Context, id int64) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("machine deleted", "machine_id", id)
	return nil
}

// SetMachineEnabled flips the enabled flag for a machine.
func (r *Registry) SetMachineEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := r.repo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if m, ok := r.cache[id]; ok {
		m.Enabled = enabled
	}
	r.cacheMu.Unlock()

	r.logger.Info("machine enabled flag changed", "machine_id", id, "enabled", enabled)
	return nil
}

// GetMachineCount returns the number of cached machines.
func (r *Registry) GetMachineCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
