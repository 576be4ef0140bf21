package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/store"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureStoreUnavailable
)

// LogoutResult reports what was revoked.
type LogoutResult struct {
	Failure            LogoutFailureKind
	Err                error
	UserID             int64
	SessionID          string
	RevokedCredentials int
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	RevokeTokenUntil func(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error
	RevokeSession    func(ctx context.Context, userID int64, sessionID string) (int, error)
	RevokeRefresh    func(ctx context.Context, secret string) (store.RefreshCredential, error)
}

// RunLogout revokes the presented access token until its expiry when it carries a
// token id, then the session behind it. When the token carries no session id the
// refresh secret, if given, identifies the session instead.
func RunLogout(ctx context.Context, claims *jwt.AccessClaims, refreshSecret string, deps LogoutDeps) LogoutResult {
	res := LogoutResult{UserID: claims.UserID, SessionID: claims.SessionID}

	if claims.TokenID != "" {
		if err := deps.RevokeTokenUntil(ctx, claims.TokenID, claims.UserID, claims.ExpiresAt); err != nil {
			res.Failure, res.Err = LogoutFailureStoreUnavailable, err
			return res
		}
	}

	if res.SessionID == "" && refreshSecret != "" && deps.RevokeRefresh != nil {
		cred, err := deps.RevokeRefresh(ctx, refreshSecret)
		switch {
		case err == nil:
			if cred.UserID == claims.UserID {
				res.SessionID = cred.SessionID
			}
		case errors.Is(err, refresh.ErrNotFound):
		default:
			res.Failure, res.Err = LogoutFailureStoreUnavailable, err
			return res
		}
	}

	if res.SessionID != "" {
		n, err := deps.RevokeSession(ctx, claims.UserID, res.SessionID)
		if err != nil {
			res.Failure, res.Err = LogoutFailureStoreUnavailable, err
			return res
		}
		res.RevokedCredentials = n
	}
	return res
}
