package resilock

import (
	"context"
	"fmt"
	"time"
)

// LockManager provides administrative introspection and cleanup over any
// backend that implements Lister, independent of which SyncBackend is in
// use underneath.
type LockManager struct {
	backend SyncBackend
	lister  Lister
	logger  Logger
	metrics Metrics
}

// NewLockManager creates a lock manager for administrative operations
// against backend. backend must also implement Lister (MemoryBackend,
// RedisBackend, and PostgresBackend all do) or ListLocks-dependent methods
// will fail with an out-of-context error.
func NewLockManager(backend SyncBackend, logger Logger, metrics Metrics) *LockManager {
	lm := &LockManager{
		backend: backend,
		logger:  orNoOpLogger(logger),
		metrics: orNoOpMetrics(metrics),
	}
	if lister, ok := backend.(Lister); ok {
		lm.lister = lister
	}
	return lm
}

// ListLocks returns every currently live lock record known to the backend.
//
// Example:
//
//	locks, err := lockManager.ListLocks(ctx)
//	for _, lock := range locks {
//	    fmt.Printf("Lock: %s, expires: %s\n", lock.Name, lock.ExpireAt)
//	}
func (lm *LockManager) ListLocks(ctx context.Context) ([]LockRecord, error) {
	if lm.lister == nil {
		return nil, OutOfContext("LockManager", "ListLocks")
	}
	records, err := lm.lister.ListLocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	lm.metrics.Gauge(MetricLockActive, float64(len(records)))
	return records, nil
}

// CleanupOrphanedLocks force-releases every listed lock whose expire_at is
// at or before now-minAge, and returns how many it removed.
//
// A lock's acquisition time is not recorded, so its age is not inferred:
// the only test is expire_at against now-minAge. Because ListLocks returns
// live records only (expire_at after now), a minAge of zero or more matches
// none of them; a negative minAge removes live locks expiring within
// -minAge from now.
func (lm *LockManager) CleanupOrphanedLocks(ctx context.Context, minAge time.Duration) (int, error) {
	records, err := lm.ListLocks(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-minAge)
	removed := 0
	for _, rec := range records {
		if rec.ExpireAt.After(cutoff) {
			continue
		}
		ok, err := lm.backend.Release(ctx, rec.Name, rec.Token)
		if err != nil {
			lm.logger.Warn("failed to release orphaned lock", "name", rec.Name, "error", err)
			continue
		}
		if ok {
			removed++
			lm.logger.Info("removed orphaned lock", "name", rec.Name, "expire_at", rec.ExpireAt)
			lm.metrics.Increment(MetricLockOrphaned, "name", rec.Name)
		}
	}

	if removed > 0 {
		lm.logger.Info("orphaned lock cleanup completed", "removed", removed, "min_age", minAge)
		lm.metrics.Increment(MetricLockCleanup)
	}
	return removed, nil
}

// ForceRelease releases name regardless of which token currently holds it.
//
// USE WITH CAUTION: only safe when the lock holder is known to have crashed.
func (lm *LockManager) ForceRelease(ctx context.Context, name string) error {
	records, err := lm.ListLocks(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Name != name {
			continue
		}
		ok, err := lm.backend.Release(ctx, rec.Name, rec.Token)
		if err != nil {
			return fmt.Errorf("force-releasing lock %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("lock %q was released concurrently", name)
		}
		lm.logger.Info("forcefully released lock", "name", name)
		lm.metrics.Increment(MetricLockForceRelease, "name", name)
		return nil
	}
	return fmt.Errorf("lock not found: %s", name)
}

// GetLockInfo retrieves the current record for a specific lock name, if live.
func (lm *LockManager) GetLockInfo(ctx context.Context, name string) (*LockRecord, error) {
	records, err := lm.ListLocks(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Name == name {
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("lock not found: %s", name)
}
