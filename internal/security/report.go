package security

import (
	"sort"
	"time"
)

// RoleReport is the effective limits of one role.
type RoleReport struct {
	Role        string
	MaxSessions int
	AccessTTL   time.Duration
	IdleTimeout time.Duration
}

// RateReport is the effective budget of one rate-limited action.
type RateReport struct {
	Action        string
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

type Report struct {
	SigningAlgorithm  string
	Issuer            string
	Audience          string
	Leeway            time.Duration
	RefreshTTL        time.Duration
	RevocationTTL     time.Duration
	TenantCacheTTL    time.Duration
	RateLimitBackend  string
	RateLimits        []RateReport
	Roles             []RoleReport
	SingleSession     bool
	SuspiciousSignal  bool
	AuditEnabled      bool
	MetricsEnabled    bool
	LatencyHistograms bool
}

type ReportInput struct {
	SigningAlgorithm  string
	Issuer            string
	Audience          string
	Leeway            time.Duration
	RefreshTTL        time.Duration
	RevocationTTL     time.Duration
	TenantCacheTTL    time.Duration
	RateLimitBackend  string
	RateLimits        []RateReport
	Roles             []RoleReport
	AsyncSignal       bool
	AuditEnabled      bool
	MetricsEnabled    bool
	LatencyHistograms bool
}

// BuildReport derives the posture summary. Rate limits are sorted by action so
// reports diff cleanly between deployments.
func BuildReport(input ReportInput) Report {
	single := len(input.Roles) > 0
	for _, r := range input.Roles {
		if r.MaxSessions != 1 {
			single = false
		}
	}

	limits := append([]RateReport(nil), input.RateLimits...)
	sort.Slice(limits, func(i, j int) bool { return limits[i].Action < limits[j].Action })

	return Report{
		SigningAlgorithm:  input.SigningAlgorithm,
		Issuer:            input.Issuer,
		Audience:          input.Audience,
		Leeway:            input.Leeway,
		RefreshTTL:        input.RefreshTTL,
		RevocationTTL:     input.RevocationTTL,
		TenantCacheTTL:    input.TenantCacheTTL,
		RateLimitBackend:  input.RateLimitBackend,
		RateLimits:        limits,
		Roles:             append([]RoleReport(nil), input.Roles...),
		SingleSession:     single,
		SuspiciousSignal:  input.AsyncSignal,
		AuditEnabled:      input.AuditEnabled,
		MetricsEnabled:    input.MetricsEnabled,
		LatencyHistograms: input.MetricsEnabled && input.LatencyHistograms,
	}
}
