package invauth

import (
	internalmetrics "github.com/MrEthical07/invauth/internal/metrics"
)

// MetricID identifies a counter or histogram in [MetricsSnapshot].
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of engine counters.
type MetricsSnapshot = internalmetrics.Snapshot

// Metrics is the engine's counter set.
type Metrics = internalmetrics.Metrics

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited      = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricRefreshReplayRejected = internalmetrics.MetricRefreshReplayRejected
	MetricRefreshRateLimited    = internalmetrics.MetricRefreshRateLimited
	MetricValidateSuccess       = internalmetrics.MetricValidateSuccess
	MetricValidateRejected      = internalmetrics.MetricValidateRejected
	MetricValidateRevoked       = internalmetrics.MetricValidateRevoked
	MetricStoreUnavailable      = internalmetrics.MetricStoreUnavailable
	MetricRateLimitHit          = internalmetrics.MetricRateLimitHit
	MetricSessionCreated        = internalmetrics.MetricSessionCreated
	MetricSessionEvicted        = internalmetrics.MetricSessionEvicted
	MetricSuspiciousSignal      = internalmetrics.MetricSuspiciousSignal
	MetricLogout                = internalmetrics.MetricLogout
	MetricLogoutAll             = internalmetrics.MetricLogoutAll
	MetricTenantRevoked         = internalmetrics.MetricTenantRevoked
	MetricTenantRejected        = internalmetrics.MetricTenantRejected
	MetricValidateLatency       = internalmetrics.MetricValidateLatency
)

// NewMetrics builds a counter set from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}
