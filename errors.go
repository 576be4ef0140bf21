package invauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredential is returned when a request carries neither the access cookie nor a bearer header.
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedToken is returned when the token text or its claims do not have the expected shape.
	ErrMalformedToken = errors.New("malformed token")
	// ErrTokenInvalid is returned when the signature, algorithm, issuer, audience or expiry check fails.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token id or its session id is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRoleNotAllowed is returned when the role claim is not a known role.
	ErrRoleNotAllowed = errors.New("role not allowed")
	// ErrRateLimited is returned when an action exceeded its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRefreshNotFound is returned when no refresh credential matches the presented secret.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshRevoked is returned for consumed, rotated or revoked refresh credentials.
	ErrRefreshRevoked = errors.New("refresh token revoked")
	// ErrRefreshExpired is returned when the refresh credential outlived its expiry or the role idle timeout.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrAccountInactive is returned when the account is missing or deactivated.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidCredentials is returned when email and password do not match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTenantRequired is returned when the identity is not bound to a tenant.
	ErrTenantRequired = errors.New("tenant required")
	// ErrTenantNotFound is returned when the identity's tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrStoreUnavailable is returned when a backing store failed. Callers must deny.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods called on an unbuilt or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError carries the limiter decision behind a rejection. It matches
// [ErrRateLimited] with errors.Is.
type RateLimitError struct {
	Action       string
	Remaining    int
	ResetAt      time.Time
	BlockedUntil time.Time
	now          time.Time
}

func (e *RateLimitError) Error() string {
	if !e.BlockedUntil.IsZero() {
		return fmt.Sprintf("rate limited: %s blocked until %s", e.Action, e.BlockedUntil.UTC().Format(time.RFC3339))
	}
	return "rate limited: " + e.Action
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter is the time the caller should wait before trying again.
func (e *RateLimitError) RetryAfter() time.Duration {
	until := e.BlockedUntil
	if until.IsZero() {
		until = e.ResetAt
	}
	now := e.now
	if now.IsZero() {
		now = time.Now()
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Reason codes returned in rejection bodies.
const (
	ReasonMissingCredential  = "missing_credential"
	ReasonMalformedToken     = "malformed_token"
	ReasonInvalidToken       = "invalid_token"
	ReasonTokenRevoked       = "token_revoked"
	ReasonRoleNotAllowed     = "role_not_allowed"
	ReasonRateLimited        = "rate_limited"
	ReasonRefreshNotFound    = "refresh_not_found"
	ReasonRefreshRevoked     = "refresh_revoked"
	ReasonRefreshExpired     = "refresh_expired"
	ReasonAccountInactive    = "account_inactive"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTenantRequired     = "no_tenant_assigned"
	ReasonTenantNotFound     = "tenant_not_found"
	ReasonStoreUnavailable   = "store_unavailable"
	ReasonInternal           = "internal_error"
)

// ReasonCode maps an engine error to its machine-readable reason.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return ReasonMissingCredential
	case errors.Is(err, ErrMalformedToken):
		return ReasonMalformedToken
	case errors.Is(err, ErrTokenInvalid):
		return ReasonInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return ReasonTokenRevoked
	case errors.Is(err, ErrRoleNotAllowed):
		return ReasonRoleNotAllowed
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrRefreshNotFound):
		return ReasonRefreshNotFound
	case errors.Is(err, ErrRefreshRevoked):
		return ReasonRefreshRevoked
	case errors.Is(err, ErrRefreshExpired):
		return ReasonRefreshExpired
	case errors.Is(err, ErrAccountInactive):
		return ReasonAccountInactive
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrTenantRequired):
		return ReasonTenantRequired
	case errors.Is(err, ErrTenantNotFound):
		return ReasonTenantNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return ReasonStoreUnavailable
	default:
		return ReasonInternal
	}
}

func wrap(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
