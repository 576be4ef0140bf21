package invauth

import (
	"context"
	"strconv"
)

// Tenant returns the cached view of tenantID. A tenant that does not exist returns
// [ErrTenantNotFound]; a lookup failure returns [ErrStoreUnavailable].
func (e *Engine) Tenant(ctx context.Context, tenantID int64) (*TenantInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	info, err := e.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, e.storeFailure(ctx, "tenant_lookup", 0, err)
	}
	if info == nil {
		return nil, ErrTenantNotFound
	}
	return &TenantInfo{ID: info.ID, Name: info.Name}, nil
}

// RequireTenant authorizes tenant-scoped work for id. Identities without a tenant get
// [ErrTenantRequired] so clients can route the user to tenant setup.
func (e *Engine) RequireTenant(ctx context.Context, id *Identity) (*TenantInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if id == nil {
		return nil, ErrMissingCredential
	}
	if !id.HasTenant() {
		return nil, e.tenantDenied(ctx, id, ErrTenantRequired)
	}

	info, err := e.Tenant(ctx, *id.TenantID)
	switch {
	case err == nil:
		return info, nil
	case err == ErrTenantNotFound:
		return nil, e.tenantDenied(ctx, id, ErrTenantNotFound)
	default:
		return nil, err
	}
}

// InvalidateTenant drops the cached answer for tenantID so the next lookup reads the
// store. Call it after a tenant is created, renamed or deleted.
func (e *Engine) InvalidateTenant(tenantID int64) {
	if e == nil || e.tenants == nil {
		return
	}
	e.tenants.Invalidate(tenantID)
}

func (e *Engine) tenantDenied(ctx context.Context, id *Identity, err error) error {
	e.metricInc(MetricTenantRejected)
	e.emitAudit(ctx, auditRecord{
		event:     auditEventTenantAccessDenied,
		userID:    id.UserID,
		tenantID:  id.TenantID,
		sessionID: id.SessionID,
		err:       err,
		meta: func() map[string]string {
			if id.TenantID == nil {
				return nil
			}
			return map[string]string{"tenant_id": strconv.FormatInt(*id.TenantID, 10)}
		},
	})
	return err
}
