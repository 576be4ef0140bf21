// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunValidate, RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying a failure kind instead of a root
// sentinel. The Engine maps kinds to its public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the JWT manager, revocation store, refresh manager,
// session limiter and rate limiter. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import invauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency fields.
package flows
