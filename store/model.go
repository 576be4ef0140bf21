package store

import "time"

// RefreshCredential is one issued refresh secret. The raw secret is never stored.
type RefreshCredential struct {
	TokenID    string
	SecretHash string
	UserID     int64
	SessionID  string
	// ParentID is the token id this credential replaced on rotation.
	ParentID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// Active reports whether c is neither revoked nor expired at now.
func (c RefreshCredential) Active(now time.Time) bool {
	return !c.Revoked && c.ExpiresAt.After(now)
}

// RevocationEntry marks a token or session id as rejected until ExpiresAt.
type RevocationEntry struct {
	TokenID   string
	UserID    int64
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// User is the account view the core needs: credentials, role and tenant binding.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	TenantID     *int64
	Active       bool
}

// Tenant is an organization (empresa) that scopes authorization.
type Tenant struct {
	ID   int64
	Name string
}
