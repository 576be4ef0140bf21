package invauth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/invauth/internal/flows"
	"github.com/MrEthical07/invauth/revocation"
	"go.uber.org/zap"
)

// Logout ends the session behind id. The access token is revoked until its own
// expiry when it has a jti, then every credential and outstanding token of the
// session. refreshToken is optional and only consulted when the access token carries
// no session id. A token with neither a jti nor a way to find its session cannot be
// logged out and yields ErrMissingCredential.
func (e *Engine) Logout(ctx context.Context, id *Identity, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if id == nil || (id.TokenID == "" && id.SessionID == "" && refreshToken == "") {
		return ErrMissingCredential
	}

	res := e.flow.Logout(ctx, claimsFromIdentity(id), refreshToken)
	if res.Failure != flows.LogoutFailureNone {
		return e.storeFailure(ctx, "logout", id.UserID, res.Err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditRecord{
		event:     auditEventLogoutSession,
		success:   true,
		userID:    id.UserID,
		tenantID:  id.TenantID,
		sessionID: res.SessionID,
		meta: func() map[string]string {
			return map[string]string{"revoked_credentials": strconv.Itoa(res.RevokedCredentials)}
		},
	})
	return nil
}

// LogoutAll revokes every session of userID and returns the number of refresh
// credentials revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int, error) {
	return e.revokeUser(ctx, userID, revocation.ReasonLogoutAll)
}

// RevokeUser is the incident-response form of [Engine.LogoutAll]. An empty reason is
// recorded as "admin".
func (e *Engine) RevokeUser(ctx context.Context, userID int64, reason string) (int, error) {
	r := revocation.Reason(reason)
	if r == "" {
		r = revocation.ReasonAdmin
	}
	return e.revokeUser(ctx, userID, r)
}

func (e *Engine) revokeUser(ctx context.Context, userID int64, reason revocation.Reason) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	res := e.flow.RevokeUser(ctx, userID, string(reason))
	if res.Err != nil {
		return 0, e.storeFailure(ctx, "revoke_user", userID, res.Err)
	}

	e.metricInc(MetricLogoutAll)
	e.logger.Info("user sessions revoked",
		zap.Int64("user_id", userID),
		zap.String("reason", string(reason)),
		zap.Int("credentials", res.RevokedCredentials),
	)
	e.emitAudit(ctx, auditRecord{
		event:   auditEventLogoutAll,
		success: true,
		userID:  userID,
		meta: func() map[string]string {
			return map[string]string{
				"reason":              string(reason),
				"revoked_credentials": strconv.Itoa(res.RevokedCredentials),
			}
		},
	})
	return res.RevokedCredentials, nil
}

// RevokeTenant revokes every session of every account in tenantID and drops the
// cached tenant answer. An empty reason is recorded as "tenant_incident".
func (e *Engine) RevokeTenant(ctx context.Context, tenantID int64, reason string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	r := revocation.Reason(reason)
	if r == "" {
		r = revocation.ReasonTenantIncident
	}

	res := e.flow.RevokeTenant(ctx, tenantID, string(r))
	if res.Err != nil {
		return 0, e.storeFailure(ctx, "revoke_tenant", 0, res.Err)
	}

	e.metricInc(MetricTenantRevoked)
	e.logger.Warn("tenant sessions revoked",
		zap.Int64("tenant_id", tenantID),
		zap.String("reason", string(r)),
		zap.Int("credentials", res.RevokedCredentials),
	)
	e.emitAudit(ctx, auditRecord{
		event:    auditEventTenantRevoked,
		success:  true,
		tenantID: &tenantID,
		meta: func() map[string]string {
			return map[string]string{
				"reason":              string(r),
				"revoked_credentials": strconv.Itoa(res.RevokedCredentials),
			}
		},
	})
	return res.RevokedCredentials, nil
}

// Introspect reports the active session count of the caller and the tenant they are
// bound to, if any.
func (e *Engine) Introspect(ctx context.Context, id *Identity) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if id == nil {
		return nil, ErrMissingCredential
	}

	res, err := e.flow.Introspect(ctx, claimsFromIdentity(id))
	if err != nil {
		return nil, e.storeFailure(ctx, "introspect", id.UserID, err)
	}
	info := &SessionInfo{
		UserID:         id.UserID,
		Role:           id.Role,
		SessionID:      id.SessionID,
		ActiveSessions: res.ActiveSessions,
		MaxSessions:    res.MaxSessions,
	}
	if res.Tenant != nil {
		info.Tenant = &TenantInfo{ID: res.Tenant.ID, Name: res.Tenant.Name}
	}
	return info, nil
}
