// Package session enforces the per-account concurrent session limit and raises
// advisory suspicious-activity signals.
//
// A session is the chain of refresh credentials sharing one session id. Active sessions
// are the distinct session ids among a user's non-revoked, non-expired credentials.
// When a login or rotation leaves a user above their role's limit, the sessions with
// the oldest most-recent credential are revoked first, and each evicted session id is
// written to the revocation store so its outstanding access tokens stop validating.
//
// # Architecture boundaries
//
// Limiter reads credentials through a narrow repository port and revokes through
// SessionRevoker (satisfied by *revocation.Store). It never mints tokens.
//
// # What this package must NOT do
//
//   - Block a request on the suspicious signal. The signal is advisory.
//   - Hold one lock for all users. Locks are sharded by user id.
package session
