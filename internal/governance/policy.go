package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a capability invocation to be evaluated.
type Request struct {
	Capability string
	Params     map[string]string
	UserID     string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates capability invocations against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedCapabilities map[string]bool
	DeniedParams       []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
		DeniedParams:       make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.DeniedCapabilities[name] = true
}

func (e *DefaultPolicyEngine) DenyParams(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedParams = append(e.DeniedParams, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedCapabilities[req.Capability] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Capability '%s' is restricted by system policy", req.Capability),
		}, nil
	}

	for _, re := range e.DeniedParams {
		for _, v := range req.Params {
			if re.MatchString(v) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("Parameters match restricted pattern: %s", re.String()),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
