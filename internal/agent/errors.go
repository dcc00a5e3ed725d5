package agent

import (
	"errors"
	"fmt"

	"github.com/rahul/vidya/internal/capability"
)

// ClassificationError means no viable intent could be derived from the
// user's message. It is surfaced as a clarification request, never retried.
type ClassificationError struct {
	Message string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed: %s", e.Message)
}

// PlanningError is an invariant violation during plan construction. It is
// fatal for the turn; the user receives a generic apology.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

// ErrTimeout marks a capability call that exceeded its deadline. Treated
// as transient until the retry budget is exhausted, then permanent.
var ErrTimeout = errors.New("capability call timed out")

// IsTransient reports whether a task failure should be retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	return capability.IsTransient(err)
}
