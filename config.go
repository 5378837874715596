package resilock

import (
	"fmt"
	"math/rand"
	"time"
)

// Package-wide defaults.
const (
	// DefaultPollInterval is LeaderElection's default retry interval between
	// failed acquire attempts. Lock.AcquireWait and Lock.RunWait do not use
	// it: a zero pollInterval there selects the RetryConfig backoff instead.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultRetryMaxAttempts / DefaultRetryInitialBackoff configure the
	// exponential backoff Lock.AcquireWait and Lock.RunWait fall back to
	// when called with a zero pollInterval.
	DefaultRetryMaxAttempts     = 3
	DefaultRetryInitialBackoff  = 100 * time.Millisecond
	DefaultRetryBackoffMultiple = 2
	DefaultRetryJitterPercent   = 0.5

	// DefaultLockTTL is a 30s lock duration constant. No function in this
	// package applies it on its own; every acquire call takes an explicit
	// duration.
	DefaultLockTTL = 30 * time.Second

	// DefaultHalfOpenCapacity is the circuit breaker's default probe concurrency.
	DefaultHalfOpenCapacity = 1
)

// RetryConfig holds configuration for retrying a contended lock acquisition
// with exponential backoff and jitter.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	BackoffMultiple int
	JitterPercent   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultRetryMaxAttempts,
		InitialBackoff:  DefaultRetryInitialBackoff,
		BackoffMultiple: DefaultRetryBackoffMultiple,
		JitterPercent:   DefaultRetryJitterPercent,
	}
}

// Validate checks if the RetryConfig is usable.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: MaxAttempts=%d must be non-negative", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("%w: InitialBackoff=%s must be positive", ErrInvalidConfig, c.InitialBackoff)
	}
	if c.BackoffMultiple < 1 {
		return fmt.Errorf("%w: BackoffMultiple=%d must be >= 1", ErrInvalidConfig, c.BackoffMultiple)
	}
	if c.JitterPercent < 0 || c.JitterPercent > 1 {
		return fmt.Errorf("%w: JitterPercent=%f must be between 0 and 1", ErrInvalidConfig, c.JitterPercent)
	}
	return nil
}

// backoff returns the delay before retry attempt i (0-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= time.Duration(c.BackoffMultiple)
	}
	jitter := time.Duration(rand.Float64() * float64(d) * c.JitterPercent)
	return d + jitter
}

// ErrInvalidConfig marks a programmatic (non-env) configuration error,
// distinct from the settings-validation-error kind used for env-var parsing.
var ErrInvalidConfig = fmt.Errorf("invalid configuration")
