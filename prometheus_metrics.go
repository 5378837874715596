package resilock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance. If
// registry is nil, the default Prometheus registry is used.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

func (p *PrometheusMetrics) registerDefaultMetrics() {
	p.counters[MetricLockAcquired] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "acquired_total",
			Help:      "Total number of successful lock acquisitions",
		},
		[]string{"name"},
	)

	p.counters[MetricLockFailed] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "failed_total",
			Help:      "Total number of failed lock acquisitions",
		},
		[]string{"name"},
	)

	p.counters[MetricLockNotOwned] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "not_owned_total",
			Help:      "Total number of release attempts against a lock we didn't own",
		},
		[]string{"name"},
	)

	p.histograms[MetricLockWaitTime] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting to acquire a lock",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	p.histograms[MetricLockDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "hold_duration_seconds",
			Help:      "Duration a lock was held",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	p.gauges[MetricLockActive] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resilock",
			Subsystem: "lock",
			Name:      "active",
			Help:      "Number of currently active locks known to a LockManager",
		},
		[]string{},
	)

	p.gauges[MetricLeaderStatus] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resilock",
			Subsystem: "leader",
			Name:      "is_leader",
			Help:      "1 if this node currently believes it is leader, else 0",
		},
		[]string{"name"},
	)

	p.gauges[MetricCircuitActiveCalls] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resilock",
			Subsystem: "circuitbreaker",
			Name:      "active_calls",
			Help:      "Number of in-flight calls currently permitted by the circuit breaker",
		},
		[]string{"circuit"},
	)

	p.counters[MetricCircuitDenied] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilock",
			Subsystem: "circuitbreaker",
			Name:      "denied_total",
			Help:      "Total number of calls denied entry by the circuit breaker",
		},
		[]string{"circuit"},
	)

	p.counters[MetricCircuitTransition] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilock",
			Subsystem: "circuitbreaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"circuit", "from", "to"},
	)
}

// Increment increments a Prometheus counter, creating it dynamically (with
// labels inferred from tags) if it hasn't been registered yet.
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	counter, ok := p.counters[name]
	if !ok {
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilock",
				Name:      name,
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}

	labels := p.extractLabelValues(tags)
	counter.With(labels).Inc()
}

// Gauge sets a Prometheus gauge value.
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	gauge, ok := p.gauges[name]
	if !ok {
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "resilock",
				Name:      name,
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}

	labels := p.extractLabelValues(tags)
	gauge.With(labels).Set(value)
}

// Histogram records a value in a Prometheus histogram.
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	histogram, ok := p.histograms[name]
	if !ok {
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resilock",
				Name:      name,
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}

	labels := p.extractLabelValues(tags)
	histogram.With(labels).Observe(value)
}

// Timing records a duration in a Prometheus histogram, in seconds.
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		if i < len(tags) {
			labels = append(labels, tags[i])
		}
	}
	return labels
}

func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return prometheus.Labels{}
	}

	labels := make(prometheus.Labels)
	for i := 0; i < len(tags)-1; i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// GetRegistry returns the underlying Prometheus registry.
func (p *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return p.registry
}
