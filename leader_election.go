package resilock

import (
	"context"
	"sync"
	"time"
)

// LeaderElection provides "am I leader?" semantics for a set of peers
// sharing a lock name and backend, by repeatedly re-acquiring a Lock on
// behalf of a long-lived per-node identity token.
//
// Only one goroutine should drive Run for a given LeaderElection
// value; IsLeader is safe to call concurrently from any number of readers.
type LeaderElection struct {
	name           string
	identity       string
	customIdentity string
	lease          time.Duration
	renewInterval  time.Duration
	retryInterval  time.Duration

	backend SyncBackend
	lock    *Lock
	logger  Logger
	metrics Metrics

	mu        sync.RWMutex
	isLeader  bool
	lastRenew time.Time
}

// LeaderElectionOption configures a LeaderElection.
type LeaderElectionOption func(*LeaderElection)

// WithLeaseBackend supplies the SyncBackend the underlying Lock acquires
// against. If omitted, resolved lazily from the default BackendRegistry.
func WithLeaseBackend(backend SyncBackend) LeaderElectionOption {
	return func(e *LeaderElection) { e.backend = backend }
}

// WithIdentity overrides the minted identity token with a caller-supplied
// one, so a node's identity can survive process restarts rather than only
// reconnects within one process's lifetime (e.g. derived from a stable pod
// name). Ignored, with a warning logged, if id is not a valid UUID.
func WithIdentity(id string) LeaderElectionOption {
	return func(e *LeaderElection) { e.customIdentity = id }
}

// WithLease sets the lock duration (the lease). renewInterval defaults to
// lease/3 and must stay below lease/2 so that one missed heartbeat never
// drops leadership.
func WithLease(lease time.Duration) LeaderElectionOption {
	return func(e *LeaderElection) { e.lease = lease }
}

// WithRenewInterval overrides the default renew interval.
func WithRenewInterval(d time.Duration) LeaderElectionOption {
	return func(e *LeaderElection) { e.renewInterval = d }
}

// WithRetryInterval overrides the interval between failed-acquire retries.
func WithRetryInterval(d time.Duration) LeaderElectionOption {
	return func(e *LeaderElection) { e.retryInterval = d }
}

// WithElectionLogger attaches a Logger.
func WithElectionLogger(l Logger) LeaderElectionOption {
	return func(e *LeaderElection) { e.logger = l }
}

// WithElectionMetrics attaches a Metrics sink.
func WithElectionMetrics(m Metrics) LeaderElectionOption {
	return func(e *LeaderElection) { e.metrics = m }
}

// NewLeaderElection constructs a LeaderElection contesting name. The
// identity token is minted once here (uuid v7, time-ordered) and survives
// reconnects for the lifetime of this instance; see WithIdentity to pin a
// caller-supplied identity instead. This identity is the fencing token the
// underlying Lock actually acquires with, per WithFixedToken.
func NewLeaderElection(name string, opts ...LeaderElectionOption) *LeaderElection {
	e := &LeaderElection{
		name:          name,
		identity:      NewID(),
		lease:         30 * time.Second,
		retryInterval: DefaultPollInterval,
		logger:        &NoOpLogger{},
		metrics:       &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = orNoOpLogger(e.logger)
	e.metrics = orNoOpMetrics(e.metrics)

	if e.customIdentity != "" {
		if IsValidID(e.customIdentity) {
			e.identity = e.customIdentity
		} else {
			e.logger.Warn("ignoring invalid WithIdentity override, minted identity kept",
				"name", name, "identity", e.customIdentity)
		}
	}

	lockOpts := []LockOption{WithFixedToken(e.identity)}
	if e.backend != nil {
		lockOpts = append(lockOpts, WithBackend(e.backend))
	}
	e.lock = NewLock(name, lockOpts...)

	if e.renewInterval <= 0 {
		e.renewInterval = e.lease / 3
	}
	return e
}

// Identity returns this node's long-lived election identity token.
func (e *LeaderElection) Identity() string {
	return e.identity
}

// IsLeader reports this node's last-observed leadership status. Consumers
// MUST re-check IsLeader inside any critical section guarded by the
// election, since leadership can be lost between the check and the action.
func (e *LeaderElection) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

func (e *LeaderElection) setLeader(v bool) {
	e.mu.Lock()
	changed := e.isLeader != v
	e.isLeader = v
	if v {
		e.lastRenew = time.Now()
	}
	e.mu.Unlock()
	if changed {
		e.logger.Info("leadership changed", "name", e.name, "identity", e.identity, "is_leader", v)
		if v {
			e.metrics.Gauge(MetricLeaderStatus, 1, "name", e.name)
		} else {
			e.metrics.Gauge(MetricLeaderStatus, 0, "name", e.name)
		}
	}
}

// Run drives the election loop until ctx is canceled. On return, a
// best-effort release of any held lease has already been attempted.
func (e *LeaderElection) Run(ctx context.Context) error {
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok, err := e.lock.TryAcquire(ctx, e.lease)
		if err != nil {
			e.logger.Error("leader election acquire failed", "name", e.name, "error", err)
			e.setLeader(false)
		} else if ok {
			e.setLeader(true)
			e.metrics.Increment(MetricLeaderRenewals, "name", e.name)
		} else {
			e.setLeader(false)
		}

		interval := e.retryInterval
		if ok {
			interval = e.renewInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (e *LeaderElection) shutdown() {
	e.setLeader(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.lock.Release(ctx); err != nil && !IsLockNotOwned(err) {
		e.logger.Warn("best-effort release on shutdown failed", "name", e.name, "error", err)
	}
}
