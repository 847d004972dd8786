package aggregator

import (
	"sync"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

// Registry holds the adapters an Aggregator fans out to. Iteration order is
// registration order, which is also the tie-break order of Flatten.
type Registry struct {
	mu      sync.RWMutex
	order   []domain.SourceType
	sources map[domain.SourceType]sources.Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]sources.Adapter),
	}
}

// Register adds an adapter. Registering the same source type again replaces
// the adapter but keeps its original position.
func (r *Registry) Register(adapter sources.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := adapter.Source()
	if _, exists := r.sources[st]; !exists {
		r.order = append(r.order, st)
	}
	r.sources[st] = adapter
}

// Get returns the adapter for a source type, or nil if none is registered.
func (r *Registry) Get(st domain.SourceType) sources.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[st]
}

// Sources returns the registered source types in registration order.
func (r *Registry) Sources() []domain.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.SourceType(nil), r.order...)
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// selectAdapters returns the adapters for the given types in the given order,
// skipping unknown ones. An empty list selects every adapter.
func (r *Registry) selectAdapters(types []domain.SourceType) []sources.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(types) == 0 {
		types = r.order
	}
	adapters := make([]sources.Adapter, 0, len(types))
	for _, st := range types {
		if a, ok := r.sources[st]; ok {
			adapters = append(adapters, a)
		}
	}
	return adapters
}
