package invauth

import (
	"context"

	"github.com/MrEthical07/invauth/internal/rate"
)

// RateAction names a rate-limited operation.
type RateAction = rate.Action

// RateDecision is the outcome of [Engine.CheckRate].
type RateDecision = rate.Decision

// RatePolicy bounds the attempts of one action.
type RatePolicy = rate.Policy

// RatePolicies maps actions to their policy.
type RatePolicies = rate.Policies

const (
	ActionLogin         = rate.ActionLogin
	ActionPasswordReset = rate.ActionPasswordReset
	ActionRegistration  = rate.ActionRegistration
	ActionRefresh       = rate.ActionRefresh
)

// DefaultRatePolicies returns the built-in attempt budgets.
func DefaultRatePolicies() RatePolicies {
	return rate.DefaultPolicies()
}

// CheckRate counts one attempt of action by subject from the client IP in ctx.
// Services outside the engine (password reset, registration) call it before doing
// work. A rejection returns the decision together with a [*RateLimitError].
func (e *Engine) CheckRate(ctx context.Context, action RateAction, subject string) (RateDecision, error) {
	if !e.ready() {
		return RateDecision{}, ErrEngineNotReady
	}
	d, err := e.limiter.Check(ctx, subject, action, ClientIPFromContext(ctx))
	if err != nil {
		return RateDecision{}, e.storeFailure(ctx, "rate_check", 0, err)
	}
	if !d.Allowed {
		return d, e.rateLimited(ctx, action, subject, d)
	}
	return d, nil
}

// RecordSuccess clears the counter of action for subject so earlier failures do not
// count against a user who has since succeeded.
func (e *Engine) RecordSuccess(ctx context.Context, action RateAction, subject string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.limiter.RecordSuccess(ctx, subject, action, ClientIPFromContext(ctx)); err != nil {
		return e.storeFailure(ctx, "rate_reset", 0, err)
	}
	return nil
}
