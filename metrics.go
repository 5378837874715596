package resilock

import "time"

// Metrics provides observability for resilock operations. Lock, LockManager,
// LeaderElection, and CircuitBreaker all accept one; a nil Metrics is
// treated as NoOpMetrics.
type Metrics interface {
	// Increment increases a counter by 1.
	Increment(name string, tags ...string)

	// Gauge sets an absolute value.
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, size, etc).
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration.
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing.
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                     {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)          {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)      {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

func orNoOpMetrics(m Metrics) Metrics {
	if m == nil {
		return &NoOpMetrics{}
	}
	return m
}

// InMemoryMetrics stores metrics in memory; useful in tests that want to
// assert on what was recorded.
type InMemoryMetrics struct {
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}

// Metric names used by this package. MetricLockNotOwned, MetricLockDuration
// and MetricLockContention are defined and pre-registered by
// PrometheusMetrics, but no component in this package emits them.
const (
	MetricLockAcquired     = "resilock_lock_acquired"
	MetricLockFailed       = "resilock_lock_failed"
	MetricLockReleased     = "resilock_lock_released"
	MetricLockNotOwned     = "resilock_lock_not_owned"
	MetricLockDuration     = "resilock_lock_hold_duration"
	MetricLockContention   = "resilock_lock_contention" // retries needed
	MetricLockWaitTime     = "resilock_lock_wait_duration"
	MetricLockOrphaned     = "resilock_lock_orphaned"
	MetricLockCleanup      = "resilock_lock_cleanup"
	MetricLockForceRelease = "resilock_lock_force_release"
	MetricLockActive       = "resilock_lock_active"

	MetricLeaderStatus   = "resilock_leader_is_leader" // gauge, 1 or 0
	MetricLeaderRenewals = "resilock_leader_renewals"

	MetricCircuitState        = "resilock_circuitbreaker_state" // gauge, 1 for current state
	MetricCircuitActiveCalls  = "resilock_circuitbreaker_active_calls"
	MetricCircuitSuccessTotal = "resilock_circuitbreaker_success_total"
	MetricCircuitErrorTotal   = "resilock_circuitbreaker_error_total"
	MetricCircuitDenied       = "resilock_circuitbreaker_denied"
	MetricCircuitTransition   = "resilock_circuitbreaker_transition"
)

// Production integrations:
//
// For Prometheus (github.com/prometheus/client_golang): see PrometheusMetrics
// in prometheus_metrics.go.
//
// For Datadog (github.com/DataDog/datadog-go/statsd):
//   type DatadogMetrics struct { client *statsd.Client }
//   func (m *DatadogMetrics) Increment(name string, tags ...string) {
//       m.client.Incr(name, tags, 1)
//   }
