// Package role defines the closed set of account roles and the single table that maps
// each role to its session and token limits.
//
// # Roles
//
// The wire value of a role is the string carried in the access-token "rol" claim.
// [Parse] is the only way to turn a wire value into a [Role]; anything outside the
// fixed set is rejected.
//
// # Architecture boundaries
//
// This package is a pure in-memory lookup with no I/O. Session limits, access-token
// lifetimes and idle timeouts are read from [LimitsFor] by the session limiter, the
// refresh manager and the engine so role branching lives in one place.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import invauth, jwt, or session.
package role
