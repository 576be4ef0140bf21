package revocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *memory.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mem := memory.New()
	return New(mem, Config{Now: clock.Now, SweepInterval: -1}, nil), mem, clock
}

func insertCredential(t *testing.T, mem *memory.Store, id string, userID int64, session string, issued time.Time) {
	t.Helper()
	err := mem.InsertRefresh(context.Background(), store.RefreshCredential{
		TokenID:    id,
		SecretHash: "hash-" + id,
		UserID:     userID,
		SessionID:  session,
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("InsertRefresh(%s) failed: %v", id, err)
	}
}

func TestRevokedStaysRevokedUntilExpiry(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.RevokeUntil(ctx, "jti-1", 7, ReasonLogout, clock.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("RevokeUntil failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		revoked, err := s.IsRevoked(ctx, "jti-1")
		if err != nil || !revoked {
			t.Fatalf("lookup %d: revoked=%v err=%v", i, revoked, err)
		}
		clock.Advance(5 * time.Minute)
	}

	clock.Advance(20 * time.Minute)
	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expired entry must not reject: revoked=%v err=%v", revoked, err)
	}
}

func TestLazyCleanupDeletesExpiredEntry(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Revoke(ctx, "jti-2", 1, ReasonAdmin); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	clock.Advance(DefaultTTL + time.Second)
	if revoked, _ := s.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("expected expired entry")
	}
	if _, err := mem.GetRevocation(ctx, "jti-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected lazy delete, got %v", err)
	}
}

func TestRevokeInPastIsNoop(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.RevokeUntil(ctx, "old", 1, ReasonLogout, clock.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeUntil failed: %v", err)
	}
	if _, err := mem.GetRevocation(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no entry, got %v", err)
	}
	if err := s.Revoke(ctx, "", 1, ReasonLogout); !errors.Is(err, ErrEmptyTokenID) {
		t.Fatalf("expected ErrEmptyTokenID, got %v", err)
	}
}

func TestStoreFailureFailsClosed(t *testing.T) {
	s, mem, _ := newTestStore(t)
	mem.SetUnavailable(true)

	_, err := s.IsRevoked(context.Background(), "jti")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRevokeAllForUserCoversCredentialsAndSessions(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()
	now := clock.Now()

	insertCredential(t, mem, "r1", 10, "s1", now.Add(-3*time.Hour))
	insertCredential(t, mem, "r2", 10, "s1", now.Add(-2*time.Hour))
	insertCredential(t, mem, "r3", 10, "s2", now.Add(-time.Hour))
	insertCredential(t, mem, "other", 11, "s9", now.Add(-time.Hour))

	n, err := s.RevokeAllForUser(ctx, 10, ReasonLogoutAll)
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 credentials processed, got %d", n)
	}

	for _, id := range []string{"r1", "r2", "r3", "s1", "s2"} {
		revoked, err := s.IsRevoked(ctx, id)
		if err != nil || !revoked {
			t.Fatalf("%s: revoked=%v err=%v", id, revoked, err)
		}
	}
	if revoked, _ := s.IsRevoked(ctx, "s9"); revoked {
		t.Fatalf("other user's session must not be revoked")
	}

	active, err := mem.ListActiveRefresh(ctx, 10, now)
	if err != nil {
		t.Fatalf("ListActiveRefresh failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active credentials, got %d", len(active))
	}

	n, err = s.RevokeAllForUser(ctx, 10, ReasonLogoutAll)
	if err != nil || n != 0 {
		t.Fatalf("second call should be a no-op: n=%d err=%v", n, err)
	}
}

func TestRevokeSession(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()
	now := clock.Now()

	insertCredential(t, mem, "a", 3, "sess-a", now)
	insertCredential(t, mem, "b", 3, "sess-b", now)

	n, err := s.RevokeSession(ctx, 3, "sess-a", ReasonSessionEvicted)
	if err != nil || n != 1 {
		t.Fatalf("RevokeSession: n=%d err=%v", n, err)
	}
	if revoked, _ := s.IsRevoked(ctx, "sess-a"); !revoked {
		t.Fatalf("session id must be revoked")
	}
	active, _ := mem.ListActiveRefresh(ctx, 3, now)
	if len(active) != 1 || active[0].TokenID != "b" {
		t.Fatalf("expected only credential b active, got %+v", active)
	}
}

func TestRevokeAllForTenant(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()
	now := clock.Now()

	tenantID := int64(42)
	u1 := mem.PutUser(store.User{Email: "a@acme.io", TenantID: &tenantID, Active: true})
	u2 := mem.PutUser(store.User{Email: "b@acme.io", TenantID: &tenantID, Active: true})
	u3 := mem.PutUser(store.User{Email: "c@other.io", Active: true})

	insertCredential(t, mem, "t1", u1.ID, "s-1", now)
	insertCredential(t, mem, "t2", u2.ID, "s-2", now)
	insertCredential(t, mem, "t3", u3.ID, "s-3", now)

	n, err := s.RevokeAllForTenant(ctx, tenantID, ReasonTenantIncident)
	if err != nil {
		t.Fatalf("RevokeAllForTenant failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 credentials, got %d", n)
	}
	if active, _ := mem.ListActiveRefresh(ctx, u3.ID, now); len(active) != 1 {
		t.Fatalf("user outside tenant must keep their credential")
	}
}

func TestSweepExpired(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	_ = s.RevokeUntil(ctx, "short", 1, ReasonLogout, clock.Now().Add(time.Minute))
	_ = s.RevokeUntil(ctx, "long", 1, ReasonLogout, clock.Now().Add(time.Hour))
	clock.Advance(2 * time.Minute)

	n, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if revoked, _ := s.IsRevoked(ctx, "long"); !revoked {
		t.Fatalf("unexpired entry must survive the sweep")
	}
}

func TestEntryOutlivesExpiryByLeeway(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mem := memory.New()
	s := New(mem, Config{Now: clock.Now, SweepInterval: -1, Leeway: 30 * time.Second}, nil)
	ctx := context.Background()

	exp := clock.Now().Add(time.Minute)
	if err := s.RevokeUntil(ctx, "jti-skew", 3, ReasonLogout, exp); err != nil {
		t.Fatalf("RevokeUntil failed: %v", err)
	}

	clock.Advance(time.Minute + 10*time.Second)
	revoked, err := s.IsRevoked(ctx, "jti-skew")
	if err != nil || !revoked {
		t.Fatalf("inside leeway: revoked=%v err=%v", revoked, err)
	}

	clock.Advance(30 * time.Second)
	revoked, err = s.IsRevoked(ctx, "jti-skew")
	if err != nil || revoked {
		t.Fatalf("past leeway: revoked=%v err=%v", revoked, err)
	}

	// A token inside its own leeway window can still validate, so it is still recorded.
	if err := s.RevokeUntil(ctx, "jti-late", 3, ReasonLogout, clock.Now().Add(-10*time.Second)); err != nil {
		t.Fatalf("RevokeUntil failed: %v", err)
	}
	if revoked, err := s.IsRevoked(ctx, "jti-late"); err != nil || !revoked {
		t.Fatalf("late revoke: revoked=%v err=%v", revoked, err)
	}
}
