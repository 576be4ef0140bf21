package flows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
)

type revocationSet map[string]bool

func (r revocationSet) IsRevoked(_ context.Context, id string) (bool, error) {
	return r[id], nil
}

type failingRevocations struct{}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func parseFixed(claims *jwt.AccessClaims, err error) func(string) (*jwt.AccessClaims, error) {
	return func(string) (*jwt.AccessClaims, error) { return claims, err }
}

func TestValidateMalformedBeatsRevoked(t *testing.T) {
	deps := ValidateDeps{
		ParseAccess: parseFixed(nil, fmt.Errorf("%w: claim sub", jwt.ErrMalformedToken)),
		Revocations: revocationSet{"jti-1": true},
	}
	res := RunValidate(context.Background(), "tok", deps)
	if res.Failure != ValidateFailureMalformed {
		t.Fatalf("expected malformed, got %v", res.Failure)
	}
}

func TestValidateClassification(t *testing.T) {
	good := &jwt.AccessClaims{UserID: 1, Role: "admin", TokenID: "jti-1", SessionID: "sess-1"}

	cases := []struct {
		name string
		deps ValidateDeps
		want ValidateFailureKind
	}{
		{"invalid", ValidateDeps{ParseAccess: parseFixed(nil, jwt.ErrInvalidToken), Revocations: revocationSet{}}, ValidateFailureInvalid},
		{"role", ValidateDeps{ParseAccess: parseFixed(&jwt.AccessClaims{Role: "owner", TokenID: "x"}, nil), Revocations: revocationSet{}}, ValidateFailureRoleNotAllowed},
		{"jti revoked", ValidateDeps{ParseAccess: parseFixed(good, nil), Revocations: revocationSet{"jti-1": true}}, ValidateFailureRevoked},
		{"session revoked", ValidateDeps{ParseAccess: parseFixed(good, nil), Revocations: revocationSet{"sess-1": true}}, ValidateFailureRevoked},
		{"store down", ValidateDeps{ParseAccess: parseFixed(good, nil), Revocations: failingRevocations{}}, ValidateFailureStoreUnavailable},
		{"ok", ValidateDeps{ParseAccess: parseFixed(good, nil), Revocations: revocationSet{}}, ValidateFailureNone},
	}
	for _, tc := range cases {
		res := RunValidate(context.Background(), "tok", tc.deps)
		if res.Failure != tc.want {
			t.Fatalf("%s: failure = %v, want %v", tc.name, res.Failure, tc.want)
		}
	}
}

func loginDeps(user store.User, allowed bool) LoginDeps {
	return LoginDeps{
		CheckRate: func(context.Context, string, string) (rate.Decision, error) {
			return rate.Decision{Allowed: allowed, Remaining: 0}, nil
		},
		GetUserByEmail: func(_ context.Context, email string) (store.User, error) {
			if email != user.Email {
				return store.User{}, store.ErrNotFound
			}
			return user, nil
		},
		VerifyPassword: func(hash, pw string) (bool, error) { return hash == "hash:"+pw, nil },
		DummyHash:      "hash:dummy",
		IssueRefresh: func(_ context.Context, uid int64) (refresh.Issued, error) {
			return refresh.Issued{Secret: "secret", Credential: store.RefreshCredential{UserID: uid, SessionID: "sess-9"}}, nil
		},
		MintAccess: func(u store.User, r role.Role, sid, rj string) (string, jwt.AccessClaims, error) {
			return "access", jwt.AccessClaims{UserID: u.ID, SessionID: sid}, nil
		},
		EvictExcess: func(context.Context, int64, role.Role) (int, error) { return 1, nil },
	}
}

func TestLoginOutcomes(t *testing.T) {
	user := store.User{ID: 3, Email: "a@acme.io", PasswordHash: "hash:pw", Role: "operator", Active: true}
	ctx := context.Background()

	res := RunLogin(ctx, " A@acme.io ", "pw", "10.0.0.1", loginDeps(user, true))
	if res.Failure != LoginFailureNone || res.AccessToken != "access" || res.SessionID != "sess-9" || res.Evicted != 1 {
		t.Fatalf("unexpected success result %+v", res)
	}

	if res := RunLogin(ctx, "a@acme.io", "pw", "", loginDeps(user, false)); res.Failure != LoginFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
	if res := RunLogin(ctx, "a@acme.io", "nope", "", loginDeps(user, true)); res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", res.Failure)
	}
	if res := RunLogin(ctx, "ghost@acme.io", "pw", "", loginDeps(user, true)); res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("unknown account must look like bad credentials, got %v", res.Failure)
	}

	inactive := user
	inactive.Active = false
	if res := RunLogin(ctx, "a@acme.io", "pw", "", loginDeps(inactive, true)); res.Failure != LoginFailureAccountInactive {
		t.Fatalf("expected inactive, got %v", res.Failure)
	}

	badRole := user
	badRole.Role = "owner"
	if res := RunLogin(ctx, "a@acme.io", "pw", "", loginDeps(badRole, true)); res.Failure != LoginFailureRoleNotAllowed {
		t.Fatalf("expected role not allowed, got %v", res.Failure)
	}

	deps := loginDeps(user, true)
	deps.EvictExcess = func(context.Context, int64, role.Role) (int, error) { return 0, errors.New("down") }
	if res := RunLogin(ctx, "a@acme.io", "pw", "", deps); res.Failure != LoginFailureStoreUnavailable || res.AccessToken != "" {
		t.Fatalf("eviction failure must fail closed, got %+v", res)
	}
}

func TestLoginAbortsSessionOnLateFailure(t *testing.T) {
	user := store.User{ID: 3, Email: "a@acme.io", PasswordHash: "hash:pw", Role: "operator", Active: true}
	ctx := context.Background()

	var aborted []string
	withAbort := func(d LoginDeps) LoginDeps {
		d.AbortSession = func(_ context.Context, uid int64, sid string) error {
			if uid != user.ID {
				t.Errorf("aborted session of user %d", uid)
			}
			aborted = append(aborted, sid)
			return nil
		}
		return d
	}

	deps := withAbort(loginDeps(user, true))
	deps.EvictExcess = func(context.Context, int64, role.Role) (int, error) { return 0, errors.New("down") }
	if res := RunLogin(ctx, "a@acme.io", "pw", "", deps); res.Failure != LoginFailureStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", res.Failure)
	}

	deps = withAbort(loginDeps(user, true))
	deps.MintAccess = func(store.User, role.Role, string, string) (string, jwt.AccessClaims, error) {
		return "", jwt.AccessClaims{}, errors.New("sign")
	}
	if res := RunLogin(ctx, "a@acme.io", "pw", "", deps); res.Failure != LoginFailureIssue {
		t.Fatalf("expected issue failure, got %v", res.Failure)
	}

	if len(aborted) != 2 || aborted[0] != "sess-9" || aborted[1] != "sess-9" {
		t.Fatalf("aborted sessions = %v", aborted)
	}

	aborted = nil
	if res := RunLogin(ctx, "a@acme.io", "pw", "", withAbort(loginDeps(user, true))); res.Failure != LoginFailureNone {
		t.Fatalf("expected success, got %v", res.Failure)
	}
	if len(aborted) != 0 {
		t.Fatalf("successful login aborted %v", aborted)
	}
}

func TestRefreshClassification(t *testing.T) {
	ctx := context.Background()
	for err, want := range map[error]RefreshFailureKind{
		refresh.ErrNotFound:        RefreshFailureNotFound,
		refresh.ErrRevoked:         RefreshFailureRevoked,
		refresh.ErrExpired:         RefreshFailureExpired,
		refresh.ErrAccountInactive: RefreshFailureAccountInactive,
		fmt.Errorf("%w: %w", refresh.ErrMintFailed, role.ErrNotAllowed): RefreshFailureRoleNotAllowed,
		refresh.ErrStoreUnavailable:                                     RefreshFailureStoreUnavailable,
	} {
		e := err
		res := RunRefresh(ctx, "s", "", RefreshDeps{
			Rotate: func(context.Context, string) (refresh.Rotation, error) { return refresh.Rotation{}, e },
		})
		if res.Failure != want {
			t.Fatalf("%v: failure = %v, want %v", err, res.Failure, want)
		}
	}
}

func TestRefreshRateLimitedBeforeRotate(t *testing.T) {
	rotated := false
	res := RunRefresh(context.Background(), "s", "1.1.1.1", RefreshDeps{
		CheckRate: func(context.Context, string) (rate.Decision, error) {
			return rate.Decision{Allowed: false, BlockedUntil: time.Now().Add(time.Minute)}, nil
		},
		Rotate: func(context.Context, string) (refresh.Rotation, error) {
			rotated = true
			return refresh.Rotation{}, nil
		},
	})
	if res.Failure != RefreshFailureRateLimited || rotated {
		t.Fatalf("expected rate limit before rotation, got %v rotated=%v", res.Failure, rotated)
	}
}

func TestLogoutRevokesTokenAndSession(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	var tokenRevoked, sessionRevoked string
	deps := LogoutDeps{
		RevokeTokenUntil: func(_ context.Context, id string, _ int64, until time.Time) error {
			if !until.Equal(exp) {
				t.Errorf("token revoked until %v, want %v", until, exp)
			}
			tokenRevoked = id
			return nil
		},
		RevokeSession: func(_ context.Context, _ int64, sid string) (int, error) {
			sessionRevoked = sid
			return 1, nil
		},
	}
	res := RunLogout(context.Background(), &jwt.AccessClaims{UserID: 2, TokenID: "jti", SessionID: "sess", ExpiresAt: exp}, "", deps)
	if res.Failure != LogoutFailureNone || tokenRevoked != "jti" || sessionRevoked != "sess" || res.RevokedCredentials != 1 {
		t.Fatalf("unexpected logout result %+v token=%s session=%s", res, tokenRevoked, sessionRevoked)
	}
}

func TestLogoutFindsSessionFromRefreshSecret(t *testing.T) {
	var sessionRevoked string
	deps := LogoutDeps{
		RevokeTokenUntil: func(context.Context, string, int64, time.Time) error { return nil },
		RevokeRefresh: func(context.Context, string) (store.RefreshCredential, error) {
			return store.RefreshCredential{UserID: 2, SessionID: "from-refresh"}, nil
		},
		RevokeSession: func(_ context.Context, _ int64, sid string) (int, error) {
			sessionRevoked = sid
			return 0, nil
		},
	}
	RunLogout(context.Background(), &jwt.AccessClaims{UserID: 2, TokenID: "jti"}, "secret", deps)
	if sessionRevoked != "from-refresh" {
		t.Fatalf("expected session from refresh credential, got %q", sessionRevoked)
	}
}

func TestLogoutWithoutTokenIDRevokesSessionOnly(t *testing.T) {
	var sessionRevoked string
	deps := LogoutDeps{
		RevokeTokenUntil: func(context.Context, string, int64, time.Time) error {
			t.Fatal("token without jti must not be revoked by id")
			return nil
		},
		RevokeSession: func(_ context.Context, _ int64, sid string) (int, error) {
			sessionRevoked = sid
			return 1, nil
		},
	}
	res := RunLogout(context.Background(), &jwt.AccessClaims{UserID: 2, SessionID: "sess"}, "", deps)
	if res.Failure != LogoutFailureNone || sessionRevoked != "sess" {
		t.Fatalf("unexpected logout result %+v session=%s", res, sessionRevoked)
	}
}
