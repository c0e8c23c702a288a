package resilience

import (
	"context"
	"sort"
	"sync"
)

// Registry holds process-wide breakers keyed by logical service name.
type Registry struct {
	mu        sync.RWMutex
	defaults  Settings
	breakers  map[string]*CircuitBreaker
	listeners []StateListener
}

func NewRegistry(defaults Settings, listeners ...StateListener) *Registry {
	return &Registry{
		defaults:  defaults,
		breakers:  make(map[string]*CircuitBreaker),
		listeners: listeners,
	}
}

// Register creates (or replaces) the breaker for name with explicit settings.
func (r *Registry) Register(name string, settings Settings) *CircuitBreaker {
	cb := NewCircuitBreaker(name, settings, r.listeners...)

	r.mu.Lock()
	r.breakers[name] = cb
	r.mu.Unlock()

	return cb
}

// Get returns the breaker for name, creating it with the registry defaults.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, r.defaults, r.listeners...)
	r.breakers[name] = cb
	return cb
}

// Fire runs fn through the named breaker
func (r *Registry) Fire(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return r.Get(name).Execute(ctx, fn)
}

func (r *Registry) lookup(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// State returns StateUnknown for names that were never used.
func (r *Registry) State(name string) State {
	cb, ok := r.lookup(name)
	if !ok {
		return StateUnknown
	}
	return cb.State()
}

func (r *Registry) Stats(name string) (Stats, bool) {
	cb, ok := r.lookup(name)
	if !ok {
		return Stats{}, false
	}
	return cb.Stats(), true
}

// Snapshot returns stats for every breaker ordered by name
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	all := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		all = append(all, cb)
	}
	r.mu.RUnlock()

	out := make([]Stats, 0, len(all))
	for _, cb := range all {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
