package resilock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := newCircuitBreaker("t")
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want %v", cb.State(), StateClosed)
	}
}

func TestCircuitBreakerEmitsStateGaugeOnConstruction(t *testing.T) {
	metrics := NewInMemoryMetrics()
	newCircuitBreaker("t", WithBreakerMetrics(metrics))
	if got := metrics.Gauges[MetricCircuitState]; got != 1 {
		t.Errorf("Gauges[%s] = %v, want 1 right after construction", MetricCircuitState, got)
	}
}

func TestCircuitBreakerEmitsActiveCallsGauge(t *testing.T) {
	metrics := NewInMemoryMetrics()
	cb := newCircuitBreaker("t", WithBreakerMetrics(metrics))

	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = cb.Run(context.Background(), func(ctx context.Context) error {
			<-block
			return nil
		})
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for metrics.Gauges[MetricCircuitActiveCalls] != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := metrics.Gauges[MetricCircuitActiveCalls]; got != 1 {
		t.Fatalf("Gauges[%s] = %v, want 1 while a call is in flight", MetricCircuitActiveCalls, got)
	}

	close(block)
	<-done
	if got := metrics.Gauges[MetricCircuitActiveCalls]; got != 0 {
		t.Errorf("Gauges[%s] = %v, want 0 after the call completes", MetricCircuitActiveCalls, got)
	}
}

func TestCircuitBreakerEmitsStateGaugeOnTransition(t *testing.T) {
	metrics := NewInMemoryMetrics()
	cb := newCircuitBreaker("t", WithErrorThreshold(1), WithBreakerMetrics(metrics))
	boom := errors.New("boom")

	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}
	if got := metrics.Gauges[MetricCircuitState]; got != 1 {
		t.Errorf("Gauges[%s] = %v, want 1 after transitioning to open", MetricCircuitState, got)
	}
}

func TestCircuitBreakerOpensAfterConsecutiveErrors(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(3))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	}

	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want %v after %d consecutive errors", cb.State(), StateOpen, 3)
	}
}

func TestCircuitBreakerDeniesWhileOpen(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1), WithResetTimeout(time.Hour))
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })

	called := false
	err := cb.Run(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("expected fn to not run while the breaker is OPEN")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind() != KindCircuitBreakerError {
		t.Errorf("expected a circuit-breaker-error, got %v", err)
	}
}

func TestCircuitBreakerRefreshesToHalfOpenAfterResetTimeout(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1), WithResetTimeout(20*time.Millisecond))
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })

	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN immediately after tripping, got %v", cb.State())
	}
	time.Sleep(40 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Errorf("expected HALF_OPEN after reset timeout elapsed, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cb := newCircuitBreaker("t",
		WithErrorThreshold(1),
		WithResetTimeout(10*time.Millisecond),
		WithSuccessThreshold(2),
	)
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %v", cb.State())
	}

	_ = cb.Run(context.Background(), func(ctx context.Context) error { return nil })
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected to remain HALF_OPEN after 1 of 2 required successes, got %v", cb.State())
	}
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after success threshold met, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenReopensOnError(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1), WithResetTimeout(10*time.Millisecond))
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %v", cb.State())
	}
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after a HALF_OPEN probe fails, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenCapacityLimitsConcurrentProbes(t *testing.T) {
	cb := newCircuitBreaker("t",
		WithErrorThreshold(1),
		WithResetTimeout(10*time.Millisecond),
		WithHalfOpenCapacity(1),
	)
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Run(context.Background(), func(ctx context.Context) error {
		t.Error("expected second probe to be denied while the first is in flight")
		return nil
	})
	close(release)

	var e *Error
	if !errors.As(err, &e) || e.Kind() != KindCircuitBreakerError {
		t.Errorf("expected the second concurrent HALF_OPEN probe to be denied, got %v", err)
	}
}

func TestCircuitBreakerIgnoreErrorCountsAsSuccess(t *testing.T) {
	notFound := errors.New("not found")
	cb := newCircuitBreaker("t",
		WithErrorThreshold(1),
		WithIgnoreError(func(err error) bool { return errors.Is(err, notFound) }),
	)

	err := cb.Run(context.Background(), func(ctx context.Context) error { return notFound })
	if !errors.Is(err, notFound) {
		t.Errorf("expected Run to return fn's error unchanged, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected ignored error to not trip the breaker, got %v", cb.State())
	}
	snap := cb.Metrics()
	if snap.TotalSuccess != 1 || snap.TotalErrors != 0 {
		t.Errorf("expected ignored error counted as success, got %+v", snap)
	}
}

func TestCircuitBreakerForcedOpenSticksUntilExplicitTransition(t *testing.T) {
	cb := newCircuitBreaker("t", WithResetTimeout(time.Millisecond))
	cb.TransitionToForcedOpen()
	time.Sleep(10 * time.Millisecond)

	if cb.State() != StateForcedOpen {
		t.Fatalf("expected FORCED_OPEN to stick past any reset timeout, got %v", cb.State())
	}
	err := cb.Run(context.Background(), func(ctx context.Context) error { return nil })
	var e *Error
	if !errors.As(err, &e) || e.Kind() != KindCircuitBreakerError {
		t.Errorf("expected FORCED_OPEN to deny entry, got %v", err)
	}

	cb.TransitionToClosed()
	if cb.State() != StateClosed {
		t.Errorf("expected explicit TransitionToClosed to leave FORCED_OPEN, got %v", cb.State())
	}
}

func TestCircuitBreakerForcedClosedAlwaysPermits(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1))
	cb.TransitionToForcedClosed()

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })
	}
	if cb.State() != StateForcedClosed {
		t.Errorf("expected FORCED_CLOSED to stick despite errors, got %v", cb.State())
	}
}

func TestCircuitBreakerRestartResetsCountersAndForcesClosed(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1))
	boom := errors.New("boom")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return boom })

	cb.Restart()

	snap := cb.Metrics()
	if snap.State != StateClosed {
		t.Errorf("expected Restart to force CLOSED, got %v", snap.State)
	}
	if snap.TotalErrors != 0 || snap.TotalSuccess != 0 || snap.LastError != nil {
		t.Errorf("expected Restart to clear counters, got %+v", snap)
	}
}

func TestCircuitBreakerWrap(t *testing.T) {
	cb := newCircuitBreaker("t", WithErrorThreshold(1), WithResetTimeout(time.Hour))
	wrapped := cb.Wrap(func(ctx context.Context) error { return errors.New("boom") })

	_ = wrapped(context.Background())
	if cb.State() != StateOpen {
		t.Errorf("expected Wrap to route through Run/classify, got %v", cb.State())
	}
}

func TestCircuitBreakerMetricsSnapshot(t *testing.T) {
	cb := newCircuitBreaker("payments-api")
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Run(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	snap := cb.Metrics()
	if snap.Name != "payments-api" {
		t.Errorf("Name = %q, want %q", snap.Name, "payments-api")
	}
	if snap.TotalSuccess != 1 || snap.TotalErrors != 1 {
		t.Errorf("expected 1 success and 1 error, got %+v", snap)
	}
	if snap.LastError == nil || snap.LastError.Message != "boom" {
		t.Errorf("expected LastError to capture the last failure, got %+v", snap.LastError)
	}
}

func TestNewCircuitBreakerRegistryFirstWriterWins(t *testing.T) {
	DefaultCircuitBreakerRegistry().Clear()
	defer DefaultCircuitBreakerRegistry().Clear()

	a := NewCircuitBreaker("shared", WithErrorThreshold(1))
	b := NewCircuitBreaker("shared", WithErrorThreshold(100))

	if a != b {
		t.Fatal("expected the same *CircuitBreaker instance to be returned for the same name")
	}

	boom := errors.New("boom")
	_ = a.Run(context.Background(), func(ctx context.Context) error { return boom })
	if a.State() != StateOpen {
		t.Errorf("expected the first writer's errorThreshold=1 to win, got %v", a.State())
	}
}
