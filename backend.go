// Package resilock provides the resilience and coordination core of a
// microservice support library: a named, expiring, fencing-token
// distributed lock over pluggable storage backends (in-memory, Redis,
// PostgreSQL), a leader-election primitive built on top of it, and an
// independent circuit breaker for guarding calls to unreliable
// collaborators.
//
// # Quick start
//
//	backend := resilock.NewMemoryBackend()
//	lock := resilock.NewLock("orders/123", resilock.WithBackend(backend))
//
//	err := lock.Run(ctx, 10*time.Second, func(ctx context.Context) error {
//	    // critical section
//	    return nil
//	})
//
// Production setup with Redis and observability:
//
//	settings, _ := resilock.LoadRedisSettingsFromEnv()
//	opts, _ := settings.Options()
//	backend := resilock.NewRedisBackend(redis.NewClient(opts), resilock.WithAutoRegister(true))
//
//	cb := resilock.NewCircuitBreaker("payments-api",
//	    resilock.WithErrorThreshold(5),
//	    resilock.WithResetTimeout(30*time.Second),
//	)
//	err := cb.Run(ctx, func(ctx context.Context) error {
//	    return callPaymentsAPI(ctx)
//	})
//
// # Core concepts
//
// SyncBackend: the storage abstraction every lock operation goes through.
// MemoryBackend, RedisBackend, and PostgresBackend all satisfy it and share
// the same acquire/release/locked/owned semantics (§3, §4.A of the design).
//
// Lock: the user-facing scoped lock built on top of any SyncBackend —
// mints a fencing token, auto-extends on reentry, and exposes both
// fail-fast and wait-with-timeout entry points.
//
// LeaderElection: a long-running loop that repeatedly re-acquires a Lock
// on behalf of a node identity, exposing "am I leader?" to the caller.
//
// CircuitBreaker: an independent per-name state machine (CLOSED / OPEN /
// HALF_OPEN / FORCED_CLOSED / FORCED_OPEN) guarding a code region.
package resilock

import (
	"context"
	"sync"
	"time"
)

// SyncBackend abstracts the four primitive operations a distributed lock
// needs, keyed by name and (where relevant) token. Implementations MUST
// NOT return false to disguise a storage failure — such failures are
// reported as an error, never as a false result for a well-formed request.
type SyncBackend interface {
	// Acquire attempts to claim name for token until now+duration.
	//
	// It succeeds (returns true) when the record is absent, expired, or
	// already held by the same token (in which case the deadline is
	// refreshed). A live record held by a different token causes Acquire
	// to return false without mutating anything.
	Acquire(ctx context.Context, name, token string, duration time.Duration) (bool, error)

	// Release deletes the record for name iff it is live and held by
	// token. Returns true only when a deletion occurred.
	Release(ctx context.Context, name, token string) (bool, error)

	// Locked reports whether a live record exists for name.
	Locked(ctx context.Context, name string) (bool, error)

	// Owned reports whether a live record exists for name held by token.
	Owned(ctx context.Context, name, token string) (bool, error)
}

// LockRecord is a snapshot of a single lock's state, used by LockManager
// for introspection across backends that support listing.
type LockRecord struct {
	Name     string
	Token    string
	ExpireAt time.Time
}

// Lister is implemented by backends that can enumerate their current lock
// records, used by LockManager. Not part of SyncBackend itself since not
// every conceivable backend can support it efficiently.
type Lister interface {
	ListLocks(ctx context.Context) ([]LockRecord, error)
}

// BackendRegistry is a process-wide category→backend map, documented here
// as the one deliberate global this module carries (per the design note
// against constructor-side-effect singletons): registration is an explicit
// call, never an implicit side effect of construction alone.
type BackendRegistry struct {
	mu       sync.RWMutex
	backends map[string]SyncBackend
}

var defaultRegistry = &BackendRegistry{backends: make(map[string]SyncBackend)}

// DefaultBackendRegistry returns the process-wide registry used by Lock and
// LeaderElection when no explicit backend is supplied.
func DefaultBackendRegistry() *BackendRegistry {
	return defaultRegistry
}

// Register publishes backend under category, overwriting any previous
// registration. Category "lock" is the only one this module currently
// reads from by default.
func (r *BackendRegistry) Register(category string, backend SyncBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[category] = backend
}

// Get returns the backend registered for category, or a
// backend-not-loaded error if none has been registered.
func (r *BackendRegistry) Get(category string) (SyncBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[category]
	if !ok {
		return nil, BackendNotLoaded(category)
	}
	return b, nil
}

// ClearForTests removes every registration. Intended for test teardown
// only; production code should never need to call it.
func (r *BackendRegistry) ClearForTests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = make(map[string]SyncBackend)
}

// GetLockBackend returns the process-wide registered lock backend, or a
// backend-not-loaded error if none has been registered yet.
func GetLockBackend() (SyncBackend, error) {
	return defaultRegistry.Get("lock")
}
