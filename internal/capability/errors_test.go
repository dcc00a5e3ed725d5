package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient wrap", Transient("research_topic", errors.New("flaky")), true},
		{"permanent wrap", Permanent("research_topic", errors.New("bad input")), false},
		{"rate limited", fmt.Errorf("call failed: %w", ErrRateLimited), true},
		{"deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("whatever"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := Permanent("generate_quiz", inner)
	if !errors.Is(wrapped, inner) {
		t.Error("Wrapped error should unwrap to the inner error")
	}

	var capErr *Error
	if !errors.As(wrapped, &capErr) {
		t.Fatal("Expected *Error")
	}
	if capErr.Capability != "generate_quiz" || capErr.Transient {
		t.Errorf("Unexpected wrap: %+v", capErr)
	}
}

func TestClassifyModelErr(t *testing.T) {
	transient := []string{
		"rate limit exceeded",
		"unexpected status 429",
		"request timeout",
		"context deadline exceeded",
		"upstream returned 503",
		"model overloaded, retry later",
	}
	for _, msg := range transient {
		if !IsTransient(classifyModelErr(errors.New(msg))) {
			t.Errorf("%q should classify as transient", msg)
		}
	}

	permanent := []string{
		"invalid api key",
		"model not found",
		"content policy violation",
	}
	for _, msg := range permanent {
		if IsTransient(classifyModelErr(errors.New(msg))) {
			t.Errorf("%q should classify as permanent", msg)
		}
	}
}
