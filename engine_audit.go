package invauth

import (
	"context"
	"strconv"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/invauth/internal/audit"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReplay       = "refresh_replay_rejected"
	auditEventTokenRejected       = "token_rejected"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventTenantRevoked       = "tenant_revoked"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
	auditEventSessionEvicted      = "session_evicted"
	auditEventSuspiciousActivity  = "suspicious_activity"
	auditEventTenantAccessDenied  = "tenant_access_denied"
	auditEventStoreUnavailable    = "store_unavailable"
	auditEventRateLimitStoreError = "rate_limit_store_error"
)

type auditRecord struct {
	event     string
	success   bool
	userID    int64
	tenantID  *int64
	sessionID string
	err       error
	meta      func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	ev := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: rec.event,
		SessionID: rec.sessionID,
		Origin:    ClientIPFromContext(ctx),
		Success:   rec.success,
		Reason:    ReasonCode(rec.err),
	}
	if rec.userID != 0 {
		ev.UserID = strconv.FormatInt(rec.userID, 10)
	}
	if rec.tenantID != nil {
		ev.TenantID = strconv.FormatInt(*rec.tenantID, 10)
	}
	if rec.meta != nil {
		ev.Metadata = rec.meta()
	}
	e.audit.Emit(ctx, ev)
}

func (e *Engine) emitRateLimit(ctx context.Context, action, subject string, rl *RateLimitError) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditRecord{
		event: auditEventRateLimitTriggered,
		err:   ErrRateLimited,
		meta: func() map[string]string {
			m := map[string]string{
				"action":    action,
				"remaining": strconv.Itoa(rl.Remaining),
			}
			if subject != "" {
				m["subject"] = maskIdentifier(subject)
			}
			if !rl.BlockedUntil.IsZero() {
				m["blocked_until"] = rl.BlockedUntil.UTC().Format(time.RFC3339)
			}
			return m
		},
	})
}

// maskIdentifier keeps enough of an email or name to correlate log lines without
// exposing it: "alice@example.com" becomes "a***e@example.com".
func maskIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	local, domain, hasAt := strings.Cut(s, "@")
	masked := maskPart(local)
	if hasAt {
		return masked + "@" + domain
	}
	return masked
}

func maskPart(s string) string {
	r := []rune(s)
	switch len(r) {
	case 0:
		return ""
	case 1, 2:
		return string(r[0]) + "***"
	default:
		return string(r[0]) + "***" + string(r[len(r)-1])
	}
}
