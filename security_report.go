package invauth

import (
	"github.com/MrEthical07/invauth/internal/security"
	"github.com/MrEthical07/invauth/role"
)

// SecurityReport summarizes the effective security posture of an engine.
type SecurityReport = security.Report

// RoleReport is one row of [SecurityReport.Roles].
type RoleReport = security.RoleReport

// RateReport is one row of [SecurityReport.RateLimits].
type RateReport = security.RateReport

// SecurityReport returns the posture derived from the engine's configuration and the
// role table. It never includes key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	limits := make([]RateReport, 0, len(e.config.RateLimit.Policies))
	for action, p := range e.config.RateLimit.Policies {
		limits = append(limits, RateReport{
			Action:        string(action),
			MaxAttempts:   p.MaxAttempts,
			Window:        p.Window,
			BlockDuration: p.BlockDuration,
		})
	}
	roles := make([]RoleReport, 0, len(role.All()))
	for _, r := range role.All() {
		l := role.LimitsFor(r)
		roles = append(roles, RoleReport{
			Role:        r.String(),
			MaxSessions: l.MaxSessions,
			AccessTTL:   l.AccessTTL,
			IdleTimeout: l.IdleTimeout,
		})
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:  e.config.JWT.SigningMethod,
		Issuer:            e.config.JWT.Issuer,
		Audience:          e.config.JWT.Audience,
		Leeway:            e.config.JWT.Leeway,
		RefreshTTL:        e.config.Refresh.TTL,
		RevocationTTL:     e.config.Revocation.DefaultTTL,
		TenantCacheTTL:    e.config.TenantCache.TTL,
		RateLimitBackend:  string(e.config.RateLimit.Backend),
		RateLimits:        limits,
		Roles:             roles,
		AsyncSignal:       e.config.Session.AsyncSignal,
		AuditEnabled:      e.config.Audit.Enabled,
		MetricsEnabled:    e.config.Metrics.Enabled,
		LatencyHistograms: e.config.Metrics.EnableLatencyHistograms,
	})
}
