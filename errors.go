package resilock

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the errors this module returns, mirroring the
// taxonomy every component draws from: callers can switch on Kind() for
// programmatic handling, or use errors.Is against the sentinels below.
type ErrorKind string

const (
	KindBackendNotLoaded    ErrorKind = "backend-not-loaded"
	KindOutOfContext        ErrorKind = "out-of-context"
	KindSettingsValidation  ErrorKind = "settings-validation-error"
	KindLockAcquireError    ErrorKind = "lock-acquire-error"
	KindLockReleaseError    ErrorKind = "lock-release-error"
	KindLockNotOwned        ErrorKind = "lock-not-owned"
	KindCircuitBreakerError ErrorKind = "circuit-breaker-error"
)

// Error is the concrete error type returned for every kind in the taxonomy.
// Kind-specific detail lives in the optional fields; most callers only need
// Kind() and Error().
type Error struct {
	kind    ErrorKind
	msg     string
	wrapped error

	// Name/Token identify the lock or circuit breaker involved, when applicable.
	Name  string
	Token string

	// LastError carries a circuit breaker's last recorded failure, if any.
	LastError *ErrorInfo

	// OffendingKeys lists the environment variable names that produced a
	// settings-validation-error.
	OffendingKeys []string
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return string(e.kind)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Kind reports which member of the error taxonomy this error belongs to.
func (e *Error) Kind() ErrorKind {
	return e.kind
}

// Is implements errors.Is matching by Kind, so a freshly constructed *Error
// (with a name/token/context attached) still compares equal to the bare
// sentinel of the same kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.kind == te.kind
	}
	return false
}

func newError(kind ErrorKind, wrapped error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), wrapped: wrapped}
}

// Sentinel values usable with errors.Is.
var (
	ErrBackendNotLoaded    = &Error{kind: KindBackendNotLoaded, msg: "backend not loaded"}
	ErrOutOfContext        = &Error{kind: KindOutOfContext, msg: "backend used outside its initialized lifecycle"}
	ErrSettingsValidation  = &Error{kind: KindSettingsValidation, msg: "invalid settings"}
	ErrLockAcquireError    = &Error{kind: KindLockAcquireError, msg: "failed to acquire lock"}
	ErrLockReleaseError    = &Error{kind: KindLockReleaseError, msg: "failed to release lock"}
	ErrLockNotOwned        = &Error{kind: KindLockNotOwned, msg: "lock not owned"}
	ErrCircuitBreakerError = &Error{kind: KindCircuitBreakerError, msg: "circuit breaker denied the call"}
)

// BackendNotLoaded reports that no backend is registered for the category.
func BackendNotLoaded(category string) error {
	return newError(KindBackendNotLoaded, ErrBackendNotLoaded, "could not load backend %q, try initializing one first", category)
}

// OutOfContext reports a method called on a value that cannot support it in
// its current setup. LockManager returns it when its backend does not
// implement Lister; the backends themselves have no Init step and never
// return it.
func OutOfContext(backend, method string) error {
	return newError(KindOutOfContext, ErrOutOfContext, "%s.%s called outside an initialized backend context", backend, method)
}

// SettingsValidationError reports invalid or ambiguous environment configuration.
func SettingsValidationError(msg string, offendingKeys ...string) error {
	e := newError(KindSettingsValidation, ErrSettingsValidation, "%s", msg)
	e.OffendingKeys = offendingKeys
	return e
}

// LockAcquireError wraps a backend failure observed during acquire.
func LockAcquireError(name, token string, cause error) error {
	e := newError(KindLockAcquireError, ErrLockAcquireError, "failed to acquire lock: name=%s token=%s", name, token)
	e.Name, e.Token, e.wrapped = name, token, cause
	return e
}

// LockReleaseError wraps a backend failure observed during release.
func LockReleaseError(name, token string, cause error) error {
	e := newError(KindLockReleaseError, ErrLockReleaseError, "failed to release lock: name=%s token=%s", name, token)
	e.Name, e.Token, e.wrapped = name, token, cause
	return e
}

// LockNotOwnedError reports a release attempted against a record we no
// longer own (wrong token, or expired) — non-fatal, commonly a sign of lost
// leadership rather than a bug.
func LockNotOwnedError(name, token string) error {
	e := newError(KindLockNotOwned, ErrLockNotOwned, "failed to release lock: name=%s token=%s, reason=lock not owned", name, token)
	e.Name, e.Token = name, token
	return e
}

// CircuitBreakerDeniedError reports a call denied by an open or forced-open
// circuit breaker, or by a half-open one whose probe capacity is in use,
// carrying the breaker's name and last-failure snapshot.
func CircuitBreakerDeniedError(name string, last *ErrorInfo) error {
	e := newError(KindCircuitBreakerError, ErrCircuitBreakerError, "circuit breaker %q denied the call", name)
	e.Name = name
	e.LastError = last
	return e
}

// IsLockNotOwned reports whether err represents a non-fatal release-not-owned condition.
func IsLockNotOwned(err error) bool {
	return errors.Is(err, ErrLockNotOwned)
}
