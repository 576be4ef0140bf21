// Package prometheus exposes engine counters as a client_golang Collector.
//
// Counter names are invauth_*_total; the one histogram is
// invauth_validate_latency_seconds and is only published when latency
// collection is enabled.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
