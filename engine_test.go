package invauth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/role"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func (h *harness) signRaw(t *testing.T, claims gojwt.MapClaims) string {
	t.Helper()
	tok := gojwt.NewWithClaims(gojwt.SigningMethodEdDSA, claims)
	s, err := tok.SignedString(h.priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (h *harness) baseClaims(userID int64, jti string) gojwt.MapClaims {
	now := h.clock.Now()
	return gojwt.MapClaims{
		"sub":   strconv.FormatInt(userID, 10),
		"email": "x@acme.io",
		"rol":   "viewer",
		"jti":   jti,
		"iss":   "invauth-test",
		"aud":   "inventory",
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	}
}

func TestLoginRateLimitBlocksThenRecovers(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "frank@acme.io", role.Viewer, nil)
	ctx := WithClientIP(context.Background(), "198.51.100.4")

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Login(ctx, "frank@acme.io", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := h.engine.Login(ctx, "frank@acme.io", testPassword)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rl.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", rl.Remaining)
	}
	if want := h.clock.Now().Add(30 * time.Minute); !rl.BlockedUntil.Equal(want) {
		t.Fatalf("expected block until %v, got %v", want, rl.BlockedUntil)
	}
	if rl.RetryAfter() != 30*time.Minute {
		t.Fatalf("expected 30m retry, got %v", rl.RetryAfter())
	}

	// A different origin has its own counter.
	other := WithClientIP(context.Background(), "198.51.100.5")
	if _, err := h.engine.Login(other, "frank@acme.io", testPassword); err != nil {
		t.Fatalf("other origin must not be blocked: %v", err)
	}

	h.clock.Advance(31 * time.Minute)
	if _, err := h.engine.Login(ctx, "frank@acme.io", testPassword); err != nil {
		t.Fatalf("login after block expiry failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginRateLimited] != 1 || snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("unexpected rate limit counters: %+v", snap.Counters)
	}
}

func TestLoginRejections(t *testing.T) {
	h := newHarness(t, nil)
	u := h.addUser(t, "gina@acme.io", role.Admin, nil)
	ctx := context.Background()

	if _, err := h.engine.Login(ctx, "nobody@acme.io", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "gina@acme.io", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty password: expected ErrInvalidCredentials, got %v", err)
	}

	h.mem.SetUserActive(u.ID, false)
	if _, err := h.engine.Login(ctx, "gina@acme.io", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive + wrong password must not reveal status, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "gina@acme.io", testPassword); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	events := h.closeAndDrainAudit()
	for _, ev := range events {
		if ev != auditEventLoginFailure {
			t.Fatalf("unexpected audit event %q", ev)
		}
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 login_failure events, got %v", events)
	}
}

func TestRefreshRejections(t *testing.T) {
	h := newHarness(t, nil)
	u := h.addUser(t, "hank@acme.io", role.Viewer, nil)
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, "not-a-real-secret"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}

	pair, err := h.engine.Login(ctx, "hank@acme.io", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	h.mem.SetUserActive(u.ID, false)
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	h.mem.SetUserActive(u.ID, true)
	h.clock.Advance(role.LimitsFor(role.Viewer).IdleTimeout + time.Minute)
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired after idle timeout, got %v", err)
	}
}

func TestRefreshRateLimitedPerOrigin(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.RateLimit.Policies[ActionRefresh] = RatePolicy{MaxAttempts: 2, Window: time.Minute, BlockDuration: 5 * time.Minute}
	})
	ctx := WithClientIP(context.Background(), "192.0.2.1")

	for i := 0; i < 2; i++ {
		if _, err := h.engine.Refresh(ctx, "unknown-secret"); !errors.Is(err, ErrRefreshNotFound) {
			t.Fatalf("attempt %d: expected ErrRefreshNotFound, got %v", i+1, err)
		}
	}
	if _, err := h.engine.Refresh(ctx, "unknown-secret"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestValidateMalformedBeatsRevoked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	claims := h.baseClaims(1, "revoked-jti")
	claims["sub"] = "not-a-number"
	tok := h.signRaw(t, claims)
	if err := h.engine.revocations.Revoke(ctx, "revoked-jti", 1, "admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err := h.engine.Validate(ctx, tok)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	if ReasonCode(err) != ReasonMalformedToken {
		t.Fatalf("unexpected reason %q", ReasonCode(err))
	}

	if _, err := h.engine.Validate(ctx, "definitely.not.jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("garbage: expected ErrMalformedToken, got %v", err)
	}
}

func TestValidateRejectsUnknownRoleAndForeignKey(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	claims := h.baseClaims(4, "jti-role")
	claims["rol"] = "janitor"
	if _, err := h.engine.Validate(ctx, h.signRaw(t, claims)); !errors.Is(err, ErrRoleNotAllowed) {
		t.Fatalf("expected ErrRoleNotAllowed, got %v", err)
	}

	_, foreign := testKeys(t)
	tok := gojwt.NewWithClaims(gojwt.SigningMethodEdDSA, h.baseClaims(4, "jti-foreign"))
	signed, err := tok.SignedString(foreign)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.engine.Validate(ctx, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	expired := h.baseClaims(4, "jti-expired")
	expired["exp"] = h.clock.Now().Add(-time.Hour).Unix()
	if _, err := h.engine.Validate(ctx, h.signRaw(t, expired)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestValidateFailsClosedWhenStoreDown(t *testing.T) {
	h := newHarness(t, nil)
	h.addUser(t, "ivy@acme.io", role.Operator, nil)
	ctx := context.Background()

	pair, err := h.engine.Login(ctx, "ivy@acme.io", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	h.mem.SetUnavailable(true)
	_, err = h.engine.Validate(ctx, pair.AccessToken)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("refresh: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "ivy@acme.io", testPassword); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("login: expected ErrStoreUnavailable, got %v", err)
	}

	h.mem.SetUnavailable(false)
	if _, err := h.engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("validate after recovery: %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricStoreUnavailable]; got != 3 {
		t.Fatalf("expected 3 store failures, got %d", got)
	}
}

func TestRequireTenant(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.RequireTenant(ctx, &Identity{UserID: 1}); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	} else if ReasonCode(err) != "no_tenant_assigned" {
		t.Fatalf("unexpected reason %q", ReasonCode(err))
	}

	id := &Identity{UserID: 2, TenantID: int64Ptr(5)}
	if _, err := h.engine.RequireTenant(ctx, id); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	h.mem.PutTenant(storeTenant(5, "Dock 5"))
	if _, err := h.engine.RequireTenant(ctx, id); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("negative answer must stay cached until invalidated, got %v", err)
	}
	h.engine.InvalidateTenant(5)
	info, err := h.engine.RequireTenant(ctx, id)
	if err != nil {
		t.Fatalf("RequireTenant after invalidate: %v", err)
	}
	if info.Name != "Dock 5" {
		t.Fatalf("unexpected tenant %+v", info)
	}

	h.mem.SetUnavailable(true)
	h.engine.InvalidateTenant(5)
	if _, err := h.engine.RequireTenant(ctx, id); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCheckRateForExternalActions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := WithClientIP(context.Background(), "192.0.2.77")

	for i := 0; i < 3; i++ {
		d, err := h.engine.CheckRate(ctx, ActionPasswordReset, "jo@acme.io")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if d.Remaining != 2-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i+1, 2-i, d.Remaining)
		}
	}
	d, err := h.engine.CheckRate(ctx, ActionPasswordReset, "jo@acme.io")
	if !errors.Is(err, ErrRateLimited) || d.Allowed {
		t.Fatalf("expected rejection, got %+v %v", d, err)
	}

	if err := h.engine.RecordSuccess(ctx, ActionRegistration, "jo@acme.io"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if _, err := h.engine.CheckRate(ctx, "unknown-action", "jo@acme.io"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("unconfigured action must fail closed, got %v", err)
	}
}

func TestSuspiciousSignalIsAdvisory(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Session.AsyncSignal = true
		c.Session.SuspiciousIssuedThreshold = 1
	})
	h.addUser(t, "kim@acme.io", role.Viewer, nil)
	ctx := context.Background()

	var last *TokenPair
	for i := 0; i < 3; i++ {
		p, err := h.engine.Login(ctx, "kim@acme.io", testPassword)
		if err != nil {
			t.Fatalf("login %d: %v", i+1, err)
		}
		h.clock.Advance(time.Second)
		last = p
	}
	if _, err := h.engine.Validate(ctx, last.AccessToken); err != nil {
		t.Fatalf("suspicious accounts still validate: %v", err)
	}

	events := h.closeAndDrainAudit()
	found := false
	for _, ev := range events {
		if ev == auditEventSuspiciousActivity {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected suspicious_activity audit event, got %v", events)
	}
	if h.engine.MetricsSnapshot().Counters[MetricSuspiciousSignal] != 1 {
		t.Fatal("expected one suspicious signal")
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Validate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("nil engine: expected ErrEngineNotReady, got %v", err)
	}

	h := newHarness(t, nil)
	h.engine.Close()
	if _, err := h.engine.Login(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("closed engine: expected ErrEngineNotReady, got %v", err)
	}
	h.engine.Close()
}

func TestBuilderRequirements(t *testing.T) {
	pub, priv := testKeys(t)
	if _, err := New().WithConfig(testEngineConfig(pub, priv)).Build(); err == nil {
		t.Fatal("expected error without store")
	}

	cfg := testEngineConfig(pub, priv)
	cfg.RateLimit.Backend = RateLimitRedis
	h := newHarness(t, nil)
	if _, err := New().WithConfig(cfg).WithStore(h.mem).Build(); err == nil {
		t.Fatal("expected error for redis backend without client")
	}

	b := New().WithConfig(testEngineConfig(pub, priv)).WithStore(h.mem)
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}

func TestLogoutHoldsThroughParserLeeway(t *testing.T) {
	h := newHarness(t, nil)
	u := h.addUser(t, "kiosk@acme.io", role.Viewer, nil)
	ctx := context.Background()

	token, _, err := h.engine.jwt.CreateAccess(jwt.AccessInput{
		UserID: u.ID,
		Email:  u.Email,
		Role:   role.Viewer.String(),
		TTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	id, err := h.engine.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.SessionID != "" {
		t.Fatalf("expected a sessionless token, got session %q", id.SessionID)
	}
	if err := h.engine.Logout(ctx, id, ""); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Past exp but inside the 30s leeway the parser still accepts.
	h.clock.Advance(time.Minute + 10*time.Second)
	if _, err := h.engine.Validate(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked inside leeway, got %v", err)
	}

	h.clock.Advance(time.Minute)
	if _, err := h.engine.Validate(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after leeway, got %v", err)
	}
}

func TestValidateAcceptsTokenWithoutJTI(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	claims := h.baseClaims(8, "")
	delete(claims, "jti")
	id, err := h.engine.Validate(ctx, h.signRaw(t, claims))
	if err != nil {
		t.Fatalf("validate without jti: %v", err)
	}
	if id.UserID != 8 || id.TokenID != "" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if err := h.engine.Logout(ctx, id, ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for an unrevocable token, got %v", err)
	}

	claims = h.baseClaims(8, "")
	delete(claims, "jti")
	claims["sessionId"] = "sess-no-jti"
	id, err = h.engine.Validate(ctx, h.signRaw(t, claims))
	if err != nil {
		t.Fatalf("validate with session: %v", err)
	}
	if err := h.engine.Logout(ctx, id, ""); err != nil {
		t.Fatalf("logout by session: %v", err)
	}
	if _, err := h.engine.Validate(ctx, h.signRaw(t, claims)); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
}
