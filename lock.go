package resilock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Lock is a user-facing named distributed lock over any SyncBackend. One
// Lock value is meant to be reused across many acquire/release cycles by a
// single logical owner (a goroutine, a worker, a leader-election loop).
// Concurrent use of the same Lock value from multiple goroutines is
// memory-safe, but those goroutines share one token, so the backend treats
// them as the same owner: a second acquire through the same Lock value
// succeeds as a reentrant extension and does not exclude the first.
type Lock struct {
	name    string
	backend SyncBackend
	logger  Logger
	metrics Metrics
	retry   RetryConfig

	mu         sync.Mutex
	token      string // empty when the instance holds no live token
	fixedToken bool   // true when token was supplied by WithFixedToken, never minted or forgotten
}

// LockOption configures a Lock.
type LockOption func(*Lock)

// WithBackend supplies the SyncBackend a Lock acquires against. If omitted,
// the backend is resolved lazily from the default BackendRegistry on first
// use.
func WithBackend(backend SyncBackend) LockOption {
	return func(l *Lock) { l.backend = backend }
}

// WithLockLogger attaches a Logger to a Lock.
func WithLockLogger(logger Logger) LockOption {
	return func(l *Lock) { l.logger = logger }
}

// WithLockMetrics attaches a Metrics sink to a Lock.
func WithLockMetrics(metrics Metrics) LockOption {
	return func(l *Lock) { l.metrics = metrics }
}

// WithRetryConfig overrides the exponential backoff AcquireWait/RunWait fall
// back to when called with a zero pollInterval. Default DefaultRetryConfig.
func WithRetryConfig(cfg RetryConfig) LockOption {
	return func(l *Lock) { l.retry = cfg }
}

// WithFixedToken pins the Lock's acquisition token to a caller-supplied
// value instead of minting a random one on first acquire. The token is
// never forgotten on release, so it survives repeated acquire/release
// cycles for the lifetime of the Lock value — the shape LeaderElection
// needs so a node's identity is the fencing value it actually acquires
// with, not just a label attached to its logs.
func WithFixedToken(token string) LockOption {
	return func(l *Lock) {
		l.token = token
		l.fixedToken = true
	}
}

// NewLock constructs a Lock for name.
func NewLock(name string, opts ...LockOption) *Lock {
	l := &Lock{name: name, logger: &NoOpLogger{}, metrics: &NoOpMetrics{}, retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = orNoOpLogger(l.logger)
	l.metrics = orNoOpMetrics(l.metrics)
	return l
}

func (l *Lock) resolveBackend() (SyncBackend, error) {
	if l.backend != nil {
		return l.backend, nil
	}
	b, err := GetLockBackend()
	if err != nil {
		return nil, err
	}
	l.backend = b
	return b, nil
}

// newToken mints a fresh 128-bit random hex token.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("minting lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// currentToken returns the instance's live token, minting one if this is a
// cold acquire (the instance currently holds none).
func (l *Lock) currentToken() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return l.token, nil
	}
	t, err := newToken()
	if err != nil {
		return "", err
	}
	l.token = t
	return t, nil
}

// forgetToken clears the instance's live token so the next acquire mints a
// fresh one. A no-op for a WithFixedToken lock, whose token is permanent.
func (l *Lock) forgetToken() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fixedToken {
		return
	}
	l.token = ""
}

// TryAcquire attempts to acquire the lock for duration without waiting.
// Returns false (no error) if another token currently holds it.
func (l *Lock) TryAcquire(ctx context.Context, duration time.Duration) (bool, error) {
	backend, err := l.resolveBackend()
	if err != nil {
		return false, err
	}
	token, err := l.currentToken()
	if err != nil {
		return false, err
	}

	start := time.Now()
	ok, err := backend.Acquire(ctx, l.name, token, duration)
	l.metrics.Timing(MetricLockWaitTime, time.Since(start), "name", l.name)
	if err != nil {
		l.logger.Error("lock acquire failed", "name", l.name, "error", err)
		return false, err
	}
	if !ok {
		l.metrics.Increment(MetricLockFailed, "name", l.name)
		return false, nil
	}
	l.metrics.Increment(MetricLockAcquired, "name", l.name)
	l.metrics.Gauge(MetricLockActive, 1, "name", l.name)
	return true, nil
}

// AcquireWait blocks, retrying until the lock is acquired or ctx is done.
// A positive pollInterval polls at that fixed cadence. A zero pollInterval
// instead retries on the Lock's RetryConfig exponential-backoff-with-jitter
// schedule (see WithRetryConfig), the delay plateauing once MaxAttempts is
// reached rather than ever giving up — AcquireWait only gives up when ctx
// is done. Callers that want an overall deadline should derive ctx with a
// timeout.
func (l *Lock) AcquireWait(ctx context.Context, duration, pollInterval time.Duration) (bool, error) {
	attempt := 0
	for {
		ok, err := l.TryAcquire(ctx, duration)
		if err != nil || ok {
			return ok, err
		}
		wait := pollInterval
		if wait <= 0 {
			wait = l.retry.backoff(attempt)
			if attempt < l.retry.MaxAttempts-1 {
				attempt++
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Release releases the lock if this instance currently owns it. A release
// against a record this instance no longer owns (wrong token, or expired)
// is reported via the returned error's lock-not-owned kind — non-fatal, the
// caller should log rather than treat it as failure.
func (l *Lock) Release(ctx context.Context) error {
	backend, err := l.resolveBackend()
	if err != nil {
		return err
	}

	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return nil
	}

	ok, err := backend.Release(ctx, l.name, token)
	if err != nil {
		l.logger.Error("lock release failed", "name", l.name, "error", err)
		return err
	}
	if !ok {
		l.logger.Warn("lock release attempted without ownership", "name", l.name)
		return LockNotOwnedError(l.name, token)
	}
	l.forgetToken()
	l.metrics.Increment(MetricLockReleased, "name", l.name)
	l.metrics.Gauge(MetricLockActive, 0, "name", l.name)
	return nil
}

// Owned reports whether this instance currently owns a live record.
func (l *Lock) Owned(ctx context.Context) (bool, error) {
	backend, err := l.resolveBackend()
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return false, nil
	}
	return backend.Owned(ctx, l.name, token)
}

// Locked reports whether any token currently holds the lock, regardless of
// ownership.
func (l *Lock) Locked(ctx context.Context) (bool, error) {
	backend, err := l.resolveBackend()
	if err != nil {
		return false, err
	}
	return backend.Locked(ctx, l.name)
}

// Run is the fail-fast scoped region: it acquires the lock, runs fn, and
// always releases on exit (if acquired), returning fn's error unchanged. It
// returns a lock-acquire error (not a plain false) if the lock is already
// held by someone else, so callers who want a non-error "didn't get it"
// result should use TryRun instead.
func (l *Lock) Run(ctx context.Context, duration time.Duration, fn func(ctx context.Context) error) error {
	ok, err := l.TryAcquire(ctx, duration)
	if err != nil {
		return err
	}
	if !ok {
		return LockAcquireError(l.name, "", nil)
	}
	defer l.releaseBestEffort(ctx)
	return fn(ctx)
}

// TryRun is Run's non-error variant: acquired reports whether fn ran at
// all. fnErr is fn's return value when acquired is true, and nil otherwise.
func (l *Lock) TryRun(ctx context.Context, duration time.Duration, fn func(ctx context.Context) error) (acquired bool, fnErr error) {
	ok, err := l.TryAcquire(ctx, duration)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer l.releaseBestEffort(ctx)
	return true, fn(ctx)
}

// RunWait waits (polling at pollInterval, bounded by ctx) to acquire the
// lock, then runs fn and releases on exit.
func (l *Lock) RunWait(ctx context.Context, duration, pollInterval time.Duration, fn func(ctx context.Context) error) error {
	ok, err := l.AcquireWait(ctx, duration, pollInterval)
	if err != nil {
		return err
	}
	if !ok {
		return LockAcquireError(l.name, "", nil)
	}
	defer l.releaseBestEffort(ctx)
	return fn(ctx)
}

func (l *Lock) releaseBestEffort(ctx context.Context) {
	if err := l.Release(ctx); err != nil && !IsLockNotOwned(err) {
		l.logger.Error("deferred lock release failed", "name", l.name, "error", err)
	}
}
