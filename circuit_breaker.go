package resilock

import (
	"context"
	"sync"
	"time"
)

// State is one of the five states a CircuitBreaker can occupy.
type State string

const (
	StateClosed       State = "closed"
	StateOpen         State = "open"
	StateHalfOpen     State = "half_open"
	StateForcedClosed State = "forced_closed"
	StateForcedOpen   State = "forced_open"
)

// ErrorInfo is a snapshot of the last failure a CircuitBreaker recorded.
type ErrorInfo struct {
	Message string
	At      time.Time
}

// CircuitBreakerMetrics is the point-in-time snapshot returned by Metrics().
type CircuitBreakerMetrics struct {
	Name                 string
	State                State
	ActiveCalls          int
	TotalSuccess         int64
	TotalErrors          int64
	ConsecutiveSuccesses int
	ConsecutiveErrors    int
	LastError            *ErrorInfo
}

// CircuitBreaker guards a region of code against cascading failure from an
// unreliable collaborator. One mutex guards all mutable state; it is never
// held across the guarded call itself.
//
// State machine:
//
//	               err >= errorThreshold
//	       CLOSED ───────────────────────▶ OPEN
//	         ▲                              │
//	         │ succ >= successThreshold      │ now >= openUntil
//	         │                               ▼
//	         └────────────────────────── HALF_OPEN ──err>=errorThreshold──▶ OPEN
//
// FORCED_OPEN and FORCED_CLOSED are sticky: only an explicit
// TransitionTo* call leaves them.
type CircuitBreaker struct {
	name string

	errorThreshold   int
	successThreshold int
	resetTimeout     time.Duration
	halfOpenCapacity int
	ignoreError      func(error) bool

	logger  Logger
	metrics Metrics

	mu                   sync.Mutex
	state                State
	activeCalls          int
	consecutiveErrors    int
	consecutiveSuccesses int
	totalSuccess         int64
	totalErrors          int64
	openUntil            time.Time
	lastError            *ErrorInfo
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithErrorThreshold sets the consecutive-error count that trips the
// breaker. Default 5.
func WithErrorThreshold(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.errorThreshold = n }
}

// WithSuccessThreshold sets the consecutive-success count required in
// HALF_OPEN to close the breaker. Default 1.
func WithSuccessThreshold(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.successThreshold = n }
}

// WithResetTimeout sets how long OPEN lasts before the breaker refreshes
// itself into HALF_OPEN. Default 30s.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithHalfOpenCapacity sets the probe concurrency limit in HALF_OPEN.
// Default 1.
func WithHalfOpenCapacity(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.halfOpenCapacity = n }
}

// WithIgnoreError supplies a predicate classifying certain errors as
// ignorable: the guarded call still returns the error unchanged, but it is
// accounted as a success rather than a failure. Analogous to an
// ignore_exceptions allow-list.
func WithIgnoreError(fn func(error) bool) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.ignoreError = fn }
}

// WithLogger attaches a Logger to a CircuitBreaker.
func WithLogger(l Logger) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.logger = l }
}

// WithBreakerMetrics attaches a Metrics sink to a CircuitBreaker.
func WithBreakerMetrics(m Metrics) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.metrics = m }
}

func newCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		errorThreshold:   5,
		successThreshold: 1,
		resetTimeout:     30 * time.Second,
		halfOpenCapacity: DefaultHalfOpenCapacity,
		logger:           &NoOpLogger{},
		metrics:          &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.logger = orNoOpLogger(cb.logger)
	cb.metrics = orNoOpMetrics(cb.metrics)
	cb.metrics.Gauge(MetricCircuitState, 1, "circuit", cb.name, "state", string(cb.state))
	return cb
}

// NewCircuitBreaker returns the named breaker from the default
// CircuitBreakerRegistry, creating it with opts on first call. A second
// call with the same name ignores opts and returns the already-configured
// instance — configuration is first-writer-wins, matching
// CircuitBreakerRegistry's documented behavior.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	return DefaultCircuitBreakerRegistry().GetOrCreate(name, opts...)
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the breaker's current state, refreshing OPEN→HALF_OPEN
// first if the reset timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return cb.state
}

// refreshLocked transitions OPEN to HALF_OPEN once the reset timeout has
// elapsed. Called on every permission check and metrics read. Must be
// called with cb.mu held.
func (cb *CircuitBreaker) refreshLocked() {
	if cb.state == StateOpen && !cb.openUntil.After(time.Now()) {
		cb.enterLocked(StateHalfOpen)
	}
}

// enterLocked transitions to state, clearing consecutive counters. Must be
// called with cb.mu held.
func (cb *CircuitBreaker) enterLocked(to State) {
	from := cb.state
	cb.state = to
	cb.consecutiveErrors = 0
	cb.consecutiveSuccesses = 0
	cb.metrics.Gauge(MetricCircuitState, 1, "circuit", cb.name, "state", string(to))
	if from == to {
		return
	}
	level := "INFO"
	if to == StateOpen {
		level = "ERROR"
	}
	fields := []interface{}{"circuit", cb.name, "from_state", from, "to_state", to}
	if level == "ERROR" {
		cb.logger.Error("circuit breaker transition", fields...)
	} else {
		cb.logger.Info("circuit breaker transition", fields...)
	}
	cb.metrics.Increment(MetricCircuitTransition, "circuit", cb.name, "from", string(from), "to", string(to))
}

// permit grants or denies entry, booking the active-call slot atomically
// with the decision. Must be called with cb.mu unlocked.
func (cb *CircuitBreaker) permit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()

	switch cb.state {
	case StateClosed, StateForcedClosed:
		cb.activeCalls++
		cb.metrics.Gauge(MetricCircuitActiveCalls, float64(cb.activeCalls), "circuit", cb.name)
		return nil
	case StateHalfOpen:
		if cb.activeCalls < cb.halfOpenCapacity {
			cb.activeCalls++
			cb.metrics.Gauge(MetricCircuitActiveCalls, float64(cb.activeCalls), "circuit", cb.name)
			return nil
		}
		cb.metrics.Increment(MetricCircuitDenied, "circuit", cb.name)
		return CircuitBreakerDeniedError(cb.name, cb.lastError)
	default: // StateOpen, StateForcedOpen
		cb.metrics.Increment(MetricCircuitDenied, "circuit", cb.name)
		return CircuitBreakerDeniedError(cb.name, cb.lastError)
	}
}

// classify books region exit: decrements active calls, updates counters and
// last error, and applies the transition rule.
func (cb *CircuitBreaker) classify(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.activeCalls--
	cb.metrics.Gauge(MetricCircuitActiveCalls, float64(cb.activeCalls), "circuit", cb.name)

	success := err == nil || (cb.ignoreError != nil && cb.ignoreError(err))
	if success {
		cb.consecutiveSuccesses++
		cb.consecutiveErrors = 0
		cb.totalSuccess++
		cb.metrics.Increment(MetricCircuitSuccessTotal, "circuit", cb.name)
		if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.successThreshold {
			cb.enterLocked(StateClosed)
		}
		return
	}

	cb.consecutiveErrors++
	cb.consecutiveSuccesses = 0
	cb.totalErrors++
	cb.lastError = &ErrorInfo{Message: err.Error(), At: time.Now()}
	cb.metrics.Increment(MetricCircuitErrorTotal, "circuit", cb.name)

	if (cb.state == StateClosed || cb.state == StateHalfOpen) && cb.consecutiveErrors >= cb.errorThreshold {
		cb.enterLocked(StateOpen)
		cb.openUntil = time.Now().Add(cb.resetTimeout)
	}
}

// Run is the scoped region: it checks permission, runs fn if permitted, and
// always classifies the outcome. The error from a denied entry is a
// circuit-breaker-error distinguishable from fn's own errors via Kind().
func (cb *CircuitBreaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.permit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.classify(err)
	return err
}

// Wrap returns fn wrapped so that every call goes through Run.
func (cb *CircuitBreaker) Wrap(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return cb.Run(ctx, fn)
	}
}

// Metrics returns a snapshot of the breaker's current counters and state.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return CircuitBreakerMetrics{
		Name:                 cb.name,
		State:                cb.state,
		ActiveCalls:          cb.activeCalls,
		TotalSuccess:         cb.totalSuccess,
		TotalErrors:          cb.totalErrors,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		ConsecutiveErrors:    cb.consecutiveErrors,
		LastError:            cb.lastError,
	}
}

// Restart zeroes totals and consecutive counters, clears the last error,
// and forces the breaker to CLOSED.
func (cb *CircuitBreaker) Restart() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalSuccess, cb.totalErrors = 0, 0
	cb.lastError = nil
	cb.enterLocked(StateClosed)
}

// TransitionToClosed forces CLOSED from any state.
func (cb *CircuitBreaker) TransitionToClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.enterLocked(StateClosed)
}

// TransitionToOpen forces OPEN from any state. An optional duration
// overrides the configured resetTimeout for this transition only.
func (cb *CircuitBreaker) TransitionToOpen(duration ...time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	d := cb.resetTimeout
	if len(duration) > 0 {
		d = duration[0]
	}
	cb.enterLocked(StateOpen)
	cb.openUntil = time.Now().Add(d)
}

// TransitionToHalfOpen forces HALF_OPEN from any state.
func (cb *CircuitBreaker) TransitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.enterLocked(StateHalfOpen)
}

// TransitionToForcedClosed forces FORCED_CLOSED, which always permits
// entry until another explicit transition leaves it.
func (cb *CircuitBreaker) TransitionToForcedClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.enterLocked(StateForcedClosed)
}

// TransitionToForcedOpen forces FORCED_OPEN, which always denies entry
// until another explicit transition leaves it.
func (cb *CircuitBreaker) TransitionToForcedOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.enterLocked(StateForcedOpen)
}
