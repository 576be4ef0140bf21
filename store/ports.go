package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps every other backend failure, including timeouts.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrConflict is returned when an insert collides with an existing key.
	ErrConflict = errors.New("store: conflict")
)

// RefreshRepository persists refresh credentials.
type RefreshRepository interface {
	InsertRefresh(ctx context.Context, cred RefreshCredential) error
	FindRefreshByHash(ctx context.Context, secretHash string) (RefreshCredential, error)
	// RevokeRefreshIfActive flips revoked from false to true in a single atomic
	// update and reports whether this call performed the transition.
	RevokeRefreshIfActive(ctx context.Context, tokenID string, at time.Time) (bool, error)
	// RevokeRefreshForUser revokes every non-revoked credential of the user and
	// returns the rows it changed.
	RevokeRefreshForUser(ctx context.Context, userID int64, at time.Time) ([]RefreshCredential, error)
	RevokeRefreshForSession(ctx context.Context, sessionID string, at time.Time) ([]RefreshCredential, error)
	// ListActiveRefresh returns non-revoked, non-expired credentials ordered by
	// IssuedAt ascending.
	ListActiveRefresh(ctx context.Context, userID int64, now time.Time) ([]RefreshCredential, error)
	DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error)
}

// RevocationRepository persists revocation entries keyed by token id.
type RevocationRepository interface {
	// UpsertRevocation inserts the entry or extends an existing one.
	UpsertRevocation(ctx context.Context, entry RevocationEntry) error
	GetRevocation(ctx context.Context, tokenID string) (RevocationEntry, error)
	// DeleteRevocationIfExpired removes the entry only when it expired at now.
	DeleteRevocationIfExpired(ctx context.Context, tokenID string, now time.Time) error
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

// UserRepository reads accounts.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID int64) (User, error)
	ListUserIDsByTenant(ctx context.Context, tenantID int64) ([]int64, error)
}

// TenantRepository reads tenants.
type TenantRepository interface {
	GetTenant(ctx context.Context, tenantID int64) (Tenant, error)
}

// Transactor runs fn atomically. Repository calls made with the context passed to fn
// join the transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every port a backend provides.
type Store interface {
	RefreshRepository
	RevocationRepository
	UserRepository
	TenantRepository
	Transactor
	Ping(ctx context.Context) error
	Close()
}
