package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureAccountInactive
	LoginFailureRoleNotAllowed
	LoginFailureStoreUnavailable
	LoginFailureIssue
)

// LoginResult carries either issued credentials or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	Decision rate.Decision
	User     store.User
	Role     role.Role

	AccessToken      string
	AccessClaims     jwt.AccessClaims
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	Evicted          int
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	CheckRate     func(ctx context.Context, email, origin string) (rate.Decision, error)
	RecordSuccess func(ctx context.Context, email, origin string) error

	GetUserByEmail func(ctx context.Context, email string) (store.User, error)
	VerifyPassword func(hash, password string) (bool, error)
	// DummyHash is verified when the account does not exist so both paths cost the same.
	DummyHash string

	IssueRefresh func(ctx context.Context, userID int64) (refresh.Issued, error)
	MintAccess   func(user store.User, r role.Role, sessionID, refreshJTI string) (string, jwt.AccessClaims, error)
	EvictExcess  func(ctx context.Context, userID int64, r role.Role) (int, error)
	Track        func(userID int64, at time.Time)
	// AbortSession revokes a session opened by a login that then failed, so the
	// account never holds more sessions than its role allows.
	AbortSession func(ctx context.Context, userID int64, sessionID string) error

	Warn func(string, ...any)
}

// RunLogin authenticates email/password and opens a new session.
func RunLogin(ctx context.Context, email, password, origin string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if deps.CheckRate != nil {
		d, err := deps.CheckRate(ctx, email, origin)
		if err != nil {
			return LoginResult{Failure: LoginFailureStoreUnavailable, Err: err}
		}
		if !d.Allowed {
			return LoginResult{Failure: LoginFailureRateLimited, Decision: d}
		}
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(deps.DummyHash, password)
			}
			return LoginResult{Failure: LoginFailureInvalidCredentials}
		}
		return LoginResult{Failure: LoginFailureStoreUnavailable, Err: err}
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err, User: user}
	}
	if !user.Active {
		return LoginResult{Failure: LoginFailureAccountInactive, User: user}
	}
	r, ok := role.Parse(user.Role)
	if !ok {
		return LoginResult{Failure: LoginFailureRoleNotAllowed, Err: role.ErrNotAllowed, User: user}
	}

	if deps.RecordSuccess != nil {
		if err := deps.RecordSuccess(ctx, email, origin); err != nil {
			deps.Warn("invauth: clearing login rate counter failed")
		}
	}

	issued, err := deps.IssueRefresh(ctx, user.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureStoreUnavailable, Err: err, User: user, Role: r}
	}
	sessionID := issued.Credential.SessionID

	access, claims, err := deps.MintAccess(user, r, sessionID, "")
	if err != nil {
		abortSession(ctx, deps, user.ID, sessionID)
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user, Role: r}
	}

	if deps.Track != nil {
		deps.Track(user.ID, deps.Now())
	}
	evicted, err := deps.EvictExcess(ctx, user.ID, r)
	if err != nil {
		abortSession(ctx, deps, user.ID, sessionID)
		return LoginResult{Failure: LoginFailureStoreUnavailable, Err: err, User: user, Role: r}
	}

	return LoginResult{
		User:             user,
		Role:             r,
		AccessToken:      access,
		AccessClaims:     claims,
		RefreshToken:     issued.Secret,
		RefreshExpiresAt: issued.Credential.ExpiresAt,
		SessionID:        sessionID,
		Evicted:          evicted,
	}
}

func abortSession(ctx context.Context, deps LoginDeps, userID int64, sessionID string) {
	if deps.AbortSession == nil || sessionID == "" {
		return
	}
	if err := deps.AbortSession(ctx, userID, sessionID); err != nil {
		deps.Warn("invauth: revoking aborted login session failed", "user_id", userID, "error", err)
	}
}
