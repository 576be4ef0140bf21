// Package jwt mints and verifies the signed access tokens carried by every request.
//
// Verification pins one signing algorithm, checks issuer, audience, expiry and issued-at
// skew, then checks the shape of the custom claims. Failures are split into two
// classes: ErrMalformedToken for token text or claims that cannot be interpreted, and
// ErrInvalidToken for well-formed tokens that fail signature or time checks.
package jwt
