// Package invauth is the token and session security core of the inventory backend:
// it issues, validates, revokes and rate-limits credentials and authorizes
// tenant-scoped work.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
// Background sweeps run between [Engine.Start] and [Engine.Close].
//
// # Architecture boundaries
//
// invauth is the public surface. It exposes [Engine], [Builder], [Config], the error
// sentinels and value types ([Identity], [TokenPair], [SessionInfo]). Components with
// their own state (revocation list, refresh credentials, session limiter, tenant
// cache) live in sibling packages; flow orchestration, rate limiting and audit
// dispatch live under internal/ and are never exported.
//
// # Failure model
//
// Every security decision fails closed. A store error during validation, refresh or
// logout surfaces as [ErrStoreUnavailable] and the request is denied. The only
// advisory path is the suspicious-activity signal, whose failures are logged.
//
// # What this package must NOT do
//
//   - Expose database pools, Redis clients or secret hashes in its public API.
//   - Perform I/O during construction; Build only wires components.
//   - Import any sub-package that re-imports invauth.
//
// # Performance contract
//
// Validate is the hot path: one signature check and at most two revocation lookups.
// Login and Refresh each run in a bounded number of store round-trips.
package invauth
