package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
)

// Registry maps machine type tags to provider factories.
//
// Factories are registered at startup (one per integration) and looked
// up by the orchestrator whenever it needs to build a provider for a
// machine registration. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register binds a factory to a machine type tag. Registering the same
// type twice is a wiring bug and is rejected.
func (r *Registry) Register(typeTag string, factory Factory) error {
	if typeTag == "" || factory == nil {
		return fmt.Errorf("%w: empty type or nil factory", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeTag]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, typeTag)
	}
	r.factories[typeTag] = factory
	return nil
}

// Build constructs a provider for the given machine using the factory
// registered for its type.
func (r *Registry) Build(m machine.Machine, interval time.Duration) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[m.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return factory(m, interval)
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
