package flows

import (
	"context"

	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/session"
	"github.com/MrEthical07/invauth/tenant"
)

// IntrospectResult describes the caller's session state.
type IntrospectResult struct {
	ActiveSessions int
	MaxSessions    int
	Tenant         *tenant.Info
}

// IntrospectDeps captures read-only lookups for the current identity.
type IntrospectDeps struct {
	CheckLimit func(ctx context.Context, userID int64, r role.Role) (session.Status, error)
	GetTenant  func(ctx context.Context, tenantID int64) (*tenant.Info, error)
}

// RunIntrospect reports active sessions and the resolved tenant for verified claims.
func RunIntrospect(ctx context.Context, claims *jwt.AccessClaims, deps IntrospectDeps) (IntrospectResult, error) {
	r, _ := role.Parse(claims.Role)
	status, err := deps.CheckLimit(ctx, claims.UserID, r)
	if err != nil {
		return IntrospectResult{}, err
	}
	out := IntrospectResult{ActiveSessions: status.Current, MaxSessions: status.Max}

	if claims.TenantID != nil && deps.GetTenant != nil {
		info, err := deps.GetTenant(ctx, *claims.TenantID)
		if err != nil {
			return IntrospectResult{}, err
		}
		out.Tenant = info
	}
	return out, nil
}
