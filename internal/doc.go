// Package internal holds the random material helpers shared by the credential
// packages: token ids and refresh secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: file and environment configuration for the invauthd binaries
//   - flows: flow orchestrators for every Engine operation
//   - metrics: lock-free counters and latency histograms
//   - obs: logger, metrics endpoint and OTLP meter provider bootstrap
//   - rate: fixed-window limiter with memory and Redis backends
//   - security: effective security configuration report
//   - sweep: periodic expiry sweeps
//
// # What this package must NOT do
//
//   - Export types that appear in the public invauth API.
//   - Log or persist raw refresh secrets.
package internal
