// Package refresh issues, validates, consumes and rotates opaque refresh credentials.
//
// # Token format
//
// A refresh secret is 64 random bytes encoded as unpadded base64url. Only its SHA-256
// hex digest is stored. Every credential carries a token id (uuid), the session it
// belongs to and, after rotation, the id of the credential it replaced.
//
// # Lifecycle
//
// Active -> Consumed | Revoked | Expired. Every terminal state is final. Consumption is
// a single conditional update, so of two concurrent rotations exactly one wins and the
// other observes ErrRevoked.
//
// # What this package must NOT do
//
//   - Write revocation entries for access tokens (see package revocation).
//   - Decide session limits (see package session).
package refresh
