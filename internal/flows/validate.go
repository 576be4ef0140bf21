package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/role"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureInvalid
	ValidateFailureRoleNotAllowed
	ValidateFailureRevoked
	ValidateFailureStoreUnavailable
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Role    role.Role
}

// RevocationChecker answers whether a token or session id is revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Revocations RevocationChecker
}

// RunValidate verifies a raw access token. Structural checks run before the revocation
// lookup, so a malformed token is reported as malformed even if its id is revoked.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrMalformedToken) {
			return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	r, ok := role.Parse(claims.Role)
	if !ok {
		return ValidateResult{Failure: ValidateFailureRoleNotAllowed, Err: role.ErrNotAllowed, Claims: claims}
	}

	for _, id := range []string{claims.TokenID, claims.SessionID} {
		if id == "" {
			continue
		}
		revoked, err := deps.Revocations.IsRevoked(ctx, id)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureStoreUnavailable, Err: err, Claims: claims}
		}
		if revoked {
			return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims, Role: r}
		}
	}

	return ValidateResult{Claims: claims, Role: r}
}
