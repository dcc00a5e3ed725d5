package capability

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited marks a backing-service throttle response.
var ErrRateLimited = errors.New("rate limited by backing service")

// Error wraps a failure from a capability invocation. Transient failures
// (timeouts, rate limits) are eligible for retry by the coordinator;
// permanent failures (validation, permission, policy) are not.
type Error struct {
	Capability string
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("capability %s: %s error: %v", e.Capability, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure of the named capability.
func Transient(name string, err error) error {
	return &Error{Capability: name, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable failure of the named capability.
func Permanent(name string, err error) error {
	return &Error{Capability: name, Transient: false, Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Transient
	}
	return false
}
