package resilock

import "sync"

// CircuitBreakerRegistry is a process-wide name→instance map. The first
// GetOrCreate for a given name constructs and stores the breaker;
// subsequent calls with that name return the stored instance and silently
// ignore any options passed — reconfiguring an existing breaker requires an
// explicit TransitionTo* or Restart call, not a second constructor call.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

var defaultCircuitRegistry = &CircuitBreakerRegistry{breakers: make(map[string]*CircuitBreaker)}

// DefaultCircuitBreakerRegistry returns the process-wide registry used by
// the package-level NewCircuitBreaker constructor.
func DefaultCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return defaultCircuitRegistry
}

// GetOrCreate returns the breaker registered under name, constructing one
// with opts if absent.
func (r *CircuitBreakerRegistry) GetOrCreate(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := newCircuitBreaker(name, opts...)
	r.breakers[name] = cb
	return cb
}

// Get returns the breaker registered under name, if any.
func (r *CircuitBreakerRegistry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// All returns every registered breaker, in no particular order.
func (r *CircuitBreakerRegistry) All() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb)
	}
	return out
}

// Clear removes every registration. Intended for test teardown only.
func (r *CircuitBreakerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}
