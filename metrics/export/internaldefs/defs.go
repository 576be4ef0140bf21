package internaldefs

import (
	"github.com/MrEthical07/invauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   invauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   invauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "invauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: invauth.MetricLoginSuccess, Name: "invauth_login_success_total", Help: "Successful logins."},
	{ID: invauth.MetricLoginFailure, Name: "invauth_login_failure_total", Help: "Rejected logins."},
	{ID: invauth.MetricLoginRateLimited, Name: "invauth_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: invauth.MetricRefreshSuccess, Name: "invauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: invauth.MetricRefreshFailure, Name: "invauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: invauth.MetricRefreshReplayRejected, Name: "invauth_refresh_replay_rejected_total", Help: "Refresh attempts with a consumed or revoked credential."},
	{ID: invauth.MetricRefreshRateLimited, Name: "invauth_refresh_rate_limited_total", Help: "Refresh attempts rejected by the rate limiter."},
	{ID: invauth.MetricValidateSuccess, Name: "invauth_validate_success_total", Help: "Access tokens accepted."},
	{ID: invauth.MetricValidateRejected, Name: "invauth_validate_rejected_total", Help: "Access tokens rejected."},
	{ID: invauth.MetricValidateRevoked, Name: "invauth_validate_revoked_total", Help: "Access tokens rejected as revoked."},
	{ID: invauth.MetricStoreUnavailable, Name: "invauth_store_unavailable_total", Help: "Operations denied because a backing store failed."},
	{ID: invauth.MetricRateLimitHit, Name: "invauth_rate_limit_hit_total", Help: "Rate-limit checks that denied a request."},
	{ID: invauth.MetricSessionCreated, Name: "invauth_session_created_total", Help: "Sessions created by login."},
	{ID: invauth.MetricSessionEvicted, Name: "invauth_session_evicted_total", Help: "Sessions evicted by the per-role session cap."},
	{ID: invauth.MetricSuspiciousSignal, Name: "invauth_suspicious_signal_total", Help: "Origins flagged for unusual validation volume."},
	{ID: invauth.MetricLogout, Name: "invauth_logout_total", Help: "Single-session logouts."},
	{ID: invauth.MetricLogoutAll, Name: "invauth_logout_all_total", Help: "Per-user revocations."},
	{ID: invauth.MetricTenantRevoked, Name: "invauth_tenant_revoked_total", Help: "Tenant-wide revocations."},
	{ID: invauth.MetricTenantRejected, Name: "invauth_tenant_rejected_total", Help: "Requests denied for a missing or unknown tenant."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: invauth.MetricValidateLatency, Name: "invauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine keeps
// one extra +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters without
// native histogram support.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// BucketCount is len(HistogramUpperBounds)+1.
const BucketCount = 8

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
