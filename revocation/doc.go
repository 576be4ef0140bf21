// Package revocation keeps the durable set of rejected token and session ids.
//
// An id present with a future expiry is rejected by token validation regardless of its
// signature. Expired entries are removed lazily on lookup and by an hourly sweep; the
// lazy path is authoritative, the sweep only bounds storage.
//
// # Architecture boundaries
//
// Revoking a whole user or session also revokes the refresh credentials behind it in
// the same transaction, so no new access token can be minted for a killed session.
//
// # What this package must NOT do
//
//   - Parse or verify access tokens.
//   - Swallow store failures. Lookups fail closed with ErrStoreUnavailable.
package revocation
