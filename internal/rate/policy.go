package rate

import (
	"fmt"
	"time"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionLogin         Action = "login"
	ActionPasswordReset Action = "password-reset"
	ActionRegistration  Action = "registration"
	ActionRefresh       Action = "refresh"
)

// Policy bounds one action.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0")
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be > 0")
	}
	if p.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be > 0")
	}
	return nil
}

// Policies maps actions to their bounds.
type Policies map[Action]Policy

// DefaultPolicies returns a fresh copy of the built-in policy table.
func DefaultPolicies() Policies {
	return Policies{
		ActionLogin:         {MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
		ActionPasswordReset: {MaxAttempts: 3, Window: time.Hour, BlockDuration: 2 * time.Hour},
		ActionRegistration:  {MaxAttempts: 3, Window: time.Hour, BlockDuration: 2 * time.Hour},
		ActionRefresh:       {MaxAttempts: 30, Window: time.Minute, BlockDuration: 5 * time.Minute},
	}
}

// Validate checks every policy in the table.
func (ps Policies) Validate() error {
	for action, p := range ps {
		if action == "" {
			return fmt.Errorf("empty action name")
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", action, err)
		}
	}
	return nil
}

func (ps Policies) lookup(action Action) (Policy, error) {
	p, ok := ps[action]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return p, nil
}
