package flows

import "context"

// AdminResult reports the outcome of an incident-response revocation.
type AdminResult struct {
	Err                error
	RevokedCredentials int
}

// AdminDeps captures administrative revocation dependencies.
type AdminDeps struct {
	RevokeAllForUser   func(ctx context.Context, userID int64, reason string) (int, error)
	RevokeAllForTenant func(ctx context.Context, tenantID int64, reason string) (int, error)
	InvalidateTenant   func(tenantID int64)
}

// RunRevokeUser kills every session of one account.
func RunRevokeUser(ctx context.Context, userID int64, reason string, deps AdminDeps) AdminResult {
	n, err := deps.RevokeAllForUser(ctx, userID, reason)
	return AdminResult{Err: err, RevokedCredentials: n}
}

// RunRevokeTenant kills every session of every account in a tenant and drops the
// cached tenant answer so the next authorization re-reads it.
func RunRevokeTenant(ctx context.Context, tenantID int64, reason string, deps AdminDeps) AdminResult {
	n, err := deps.RevokeAllForTenant(ctx, tenantID, reason)
	if deps.InvalidateTenant != nil {
		deps.InvalidateTenant(tenantID)
	}
	return AdminResult{Err: err, RevokedCredentials: n}
}
