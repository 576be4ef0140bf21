package test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/role"
)

func TestReplicasShareLoginBudget(t *testing.T) {
	c := newCluster(t)
	a := c.node(t, false)
	b := c.node(t, false)
	c.addUser(t, "target@dock.io", role.Admin, nil)
	ctx := invauth.WithClientIP(context.Background(), "203.0.113.50")

	for i, e := range []*invauth.Engine{a, a, a, b, b} {
		if _, err := e.Login(ctx, "target@dock.io", "guess"); !errors.Is(err, invauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	_, err := a.Login(ctx, "target@dock.io", testPassword)
	var rl *invauth.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit on replica a, got %v", err)
	}
	if rl.BlockedUntil.IsZero() {
		t.Fatal("expected a block after exhausting the budget")
	}
	if _, err := b.Login(ctx, "target@dock.io", testPassword); !errors.Is(err, invauth.ErrRateLimited) {
		t.Fatalf("expected rate limit on replica b, got %v", err)
	}

	// Another origin has its own budget.
	other := invauth.WithClientIP(context.Background(), "203.0.113.51")
	if _, err := b.Login(other, "target@dock.io", testPassword); err != nil {
		t.Fatalf("login from other origin: %v", err)
	}
}

func TestReplicasShareRevocations(t *testing.T) {
	c := newCluster(t)
	a := c.node(t, false)
	b := c.node(t, false)
	c.addUser(t, "roam@dock.io", role.Operator, nil)
	ctx := context.Background()

	pair, err := a.Login(ctx, "roam@dock.io", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	id, err := b.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate on b: %v", err)
	}

	rotated, err := b.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh on b: %v", err)
	}
	if _, err := a.Refresh(ctx, pair.RefreshToken); !errors.Is(err, invauth.ErrRefreshRevoked) {
		t.Fatalf("replay on a: expected ErrRefreshRevoked, got %v", err)
	}

	if err := b.Logout(ctx, id, rotated.RefreshToken); err != nil {
		t.Fatalf("logout on b: %v", err)
	}
	if _, err := a.Validate(ctx, rotated.AccessToken); !errors.Is(err, invauth.ErrTokenRevoked) {
		t.Fatalf("validate on a after logout: expected ErrTokenRevoked, got %v", err)
	}
}
