package invauth

import (
	"context"
	"time"

	"github.com/MrEthical07/invauth/role"
)

// Identity is the verified caller behind an access token. It is returned by
// [Engine.Validate] and [Engine.ValidateRequest].
type Identity struct {
	UserID   int64
	Email    string
	Role     role.Role
	TenantID *int64

	TokenID    string
	SessionID  string
	RefreshJTI string
	ExpiresAt  time.Time
}

// HasTenant reports whether the identity is bound to a tenant.
func (i *Identity) HasTenant() bool {
	return i != nil && i.TenantID != nil
}

// TokenPair is the credential set handed to a client after login or refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	Identity         Identity
}

// SessionInfo describes the caller's session state for introspection endpoints.
type SessionInfo struct {
	UserID         int64
	Role           role.Role
	SessionID      string
	ActiveSessions int
	MaxSessions    int
	Tenant         *TenantInfo
}

// TenantInfo is the cached view of a tenant.
type TenantInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// Validator is the narrow surface HTTP adapters depend on.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}
