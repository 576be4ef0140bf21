package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/invauth/role"
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

type fixture struct {
	mgr   *Manager
	mem   *memory.Store
	clock *fakeClock
	user  store.User
}

func newFixture(t *testing.T, r role.Role, minter Minter) fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	mem := memory.New()
	user := mem.PutUser(store.User{Email: "op@acme.io", Role: r.String(), Active: true})
	return fixture{
		mgr:   NewManager(mem, minter, Config{Now: clock.Now}, nil),
		mem:   mem,
		clock: clock,
		user:  user,
	}
}

func TestIssueStoresOnlyHash(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()

	issued, err := f.mgr.Issue(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(issued.Secret) != 86 {
		t.Fatalf("unexpected secret length %d", len(issued.Secret))
	}
	if issued.Credential.SecretHash == issued.Secret {
		t.Fatalf("raw secret must not be stored")
	}
	if issued.Credential.SessionID == "" || issued.Credential.ParentID != "" {
		t.Fatalf("unexpected session/parent: %+v", issued.Credential)
	}
	if want := f.clock.Now().Add(DefaultTTL); !issued.Credential.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", issued.Credential.ExpiresAt, want)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()

	issued, _ := f.mgr.Issue(ctx, f.user.ID)
	c, err := f.mgr.ValidateAndConsume(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if c.User.ID != f.user.ID {
		t.Fatalf("unexpected user %d", c.User.ID)
	}
	if _, err := f.mgr.ValidateAndConsume(ctx, issued.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("second consume: expected ErrRevoked, got %v", err)
	}
}

func TestValidateErrorOrder(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()

	if _, err := f.mgr.Validate(ctx, "garbage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("malformed secret: expected ErrNotFound, got %v", err)
	}

	issued, _ := f.mgr.Issue(ctx, f.user.ID)
	if _, err := f.mgr.Validate(ctx, issued.Secret); err != nil {
		t.Fatalf("validate active: %v", err)
	}
	// Validate must not consume.
	if _, err := f.mgr.Validate(ctx, issued.Secret); err != nil {
		t.Fatalf("validate twice: %v", err)
	}

	f.mem.SetUserActive(f.user.ID, false)
	if _, err := f.mgr.Validate(ctx, issued.Secret); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	// Expiry is reported before the inactive account.
	f.clock.Advance(role.LimitsFor(role.Operator).IdleTimeout + time.Second)
	if _, err := f.mgr.Validate(ctx, issued.Secret); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// Revocation is reported before expiry.
	if _, err := f.mgr.Revoke(ctx, issued.Secret); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := f.mgr.Validate(ctx, issued.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestIdleTimeoutDependsOnRole(t *testing.T) {
	ctx := context.Background()

	admin := newFixture(t, role.Admin, nil)
	viewer := newFixture(t, role.Viewer, nil)
	a, _ := admin.mgr.Issue(ctx, admin.user.ID)
	v, _ := viewer.mgr.Issue(ctx, viewer.user.ID)

	admin.clock.Advance(3 * time.Hour)
	viewer.clock.Advance(3 * time.Hour)

	if _, err := admin.mgr.Validate(ctx, a.Secret); err != nil {
		t.Fatalf("admin credential should survive 3h idle: %v", err)
	}
	if _, err := viewer.mgr.Validate(ctx, v.Secret); !errors.Is(err, ErrExpired) {
		t.Fatalf("viewer credential should expire after 2h idle, got %v", err)
	}
}

func TestRotateKeepsSessionAndChain(t *testing.T) {
	var minted atomic.Int32
	minter := func(u store.User, sessionID, refreshJTI string) (Access, error) {
		minted.Add(1)
		return Access{Token: "access-" + refreshJTI}, nil
	}
	f := newFixture(t, role.Manager, minter)
	ctx := context.Background()

	issued, _ := f.mgr.Issue(ctx, f.user.ID)
	rot, err := f.mgr.Rotate(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rot.Issued.Credential.SessionID != issued.Credential.SessionID {
		t.Fatalf("rotation must stay in the session")
	}
	if rot.Issued.Credential.ParentID != issued.Credential.TokenID {
		t.Fatalf("parent id = %q, want %q", rot.Issued.Credential.ParentID, issued.Credential.TokenID)
	}
	if rot.Access.Token != "access-"+issued.Credential.TokenID {
		t.Fatalf("access token must reference the consumed credential, got %q", rot.Access.Token)
	}

	if _, err := f.mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("replay: expected ErrRevoked, got %v", err)
	}
	if _, err := f.mgr.Rotate(ctx, rot.Issued.Secret); err != nil {
		t.Fatalf("rotating the successor failed: %v", err)
	}
	if minted.Load() != 2 {
		t.Fatalf("expected 2 minted tokens, got %d", minted.Load())
	}
}

func TestRotateRollsBackWhenMintFails(t *testing.T) {
	fail := true
	minter := func(store.User, string, string) (Access, error) {
		if fail {
			return Access{}, errors.New("signer offline")
		}
		return Access{Token: "ok"}, nil
	}
	f := newFixture(t, role.Operator, minter)
	ctx := context.Background()

	issued, _ := f.mgr.Issue(ctx, f.user.ID)
	if _, err := f.mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrMintFailed) {
		t.Fatalf("expected ErrMintFailed, got %v", err)
	}

	active, _ := f.mem.ListActiveRefresh(ctx, f.user.ID, f.clock.Now())
	if len(active) != 1 || active[0].TokenID != issued.Credential.TokenID {
		t.Fatalf("failed rotation must leave only the original credential active, got %+v", active)
	}

	fail = false
	if _, err := f.mgr.Rotate(ctx, issued.Secret); err != nil {
		t.Fatalf("retry after rollback failed: %v", err)
	}
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()
	issued, _ := f.mgr.Issue(ctx, f.user.ID)

	const n = 16
	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		revoked atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.mgr.Rotate(ctx, issued.Secret)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRevoked):
				revoked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || revoked.Load() != n-1 {
		t.Fatalf("wins=%d revoked=%d, want 1 and %d", wins.Load(), revoked.Load(), n-1)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()
	issued, _ := f.mgr.Issue(ctx, f.user.ID)

	f.mem.SetUnavailable(true)
	if _, err := f.mgr.ValidateAndConsume(ctx, issued.Secret); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := f.mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Rotate, got %v", err)
	}
}

func TestRevokeAllAndSession(t *testing.T) {
	f := newFixture(t, role.Operator, nil)
	ctx := context.Background()

	a, _ := f.mgr.Issue(ctx, f.user.ID)
	_, _ = f.mgr.Issue(ctx, f.user.ID)

	n, err := f.mgr.RevokeSession(ctx, a.Credential.SessionID)
	if err != nil || n != 1 {
		t.Fatalf("RevokeSession: n=%d err=%v", n, err)
	}
	n, err = f.mgr.RevokeAllForUser(ctx, f.user.ID)
	if err != nil || n != 1 {
		t.Fatalf("RevokeAllForUser: n=%d err=%v", n, err)
	}
	if _, err := f.mgr.Validate(ctx, a.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

type revokedIDs map[string]bool

func (r revokedIDs) IsRevoked(_ context.Context, id string) (bool, error) { return r[id], nil }

type brokenChecker struct{}

func (brokenChecker) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("lookup timeout")
}

func TestRevokedSessionRejectsLiveCredential(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	mem := memory.New()
	user := mem.PutUser(store.User{Email: "op@acme.io", Role: role.Operator.String(), Active: true})
	sessions := revokedIDs{}
	mgr := NewManager(mem, nil, Config{Now: clock.Now, Sessions: sessions}, nil)
	ctx := context.Background()

	issued, err := mgr.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	// The credential row is still active; only the session id was revoked.
	sessions[issued.Credential.SessionID] = true

	if _, err := mgr.Validate(ctx, issued.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Validate: expected ErrRevoked, got %v", err)
	}
	if _, err := mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Rotate: expected ErrRevoked, got %v", err)
	}

	broken := NewManager(mem, nil, Config{Now: clock.Now, Sessions: brokenChecker{}}, nil)
	if _, err := broken.Validate(ctx, issued.Secret); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("lookup failure must fail closed, got %v", err)
	}
}
