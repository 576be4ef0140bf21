package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureRevoked
	RefreshFailureExpired
	RefreshFailureAccountInactive
	RefreshFailureRoleNotAllowed
	RefreshFailureStoreUnavailable
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Decision rate.Decision
	Rotation refresh.Rotation
	Role     role.Role
	Evicted  int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now         func() time.Time
	CheckRate   func(ctx context.Context, origin string) (rate.Decision, error)
	Rotate      func(ctx context.Context, secret string) (refresh.Rotation, error)
	EvictExcess func(ctx context.Context, userID int64, r role.Role) (int, error)
	Track       func(userID int64, at time.Time)
}

// RunRefresh exchanges a refresh secret for a new access token and refresh secret.
func RunRefresh(ctx context.Context, secret, origin string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.CheckRate != nil {
		d, err := deps.CheckRate(ctx, origin)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStoreUnavailable, Err: err}
		}
		if !d.Allowed {
			return RefreshResult{Failure: RefreshFailureRateLimited, Decision: d}
		}
	}

	rot, err := deps.Rotate(ctx, secret)
	if err != nil {
		return RefreshResult{Failure: classifyRefreshError(err), Err: err}
	}

	r, _ := role.Parse(rot.User.Role)
	if deps.Track != nil {
		deps.Track(rot.User.ID, deps.Now())
	}
	evicted, err := deps.EvictExcess(ctx, rot.User.ID, r)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStoreUnavailable, Err: err, Rotation: rot, Role: r}
	}
	return RefreshResult{Rotation: rot, Role: r, Evicted: evicted}
}

func classifyRefreshError(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		return RefreshFailureNotFound
	case errors.Is(err, refresh.ErrRevoked):
		return RefreshFailureRevoked
	case errors.Is(err, refresh.ErrExpired):
		return RefreshFailureExpired
	case errors.Is(err, refresh.ErrAccountInactive):
		return RefreshFailureAccountInactive
	case errors.Is(err, role.ErrNotAllowed):
		return RefreshFailureRoleNotAllowed
	case errors.Is(err, refresh.ErrMintFailed):
		return RefreshFailureIssue
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, refresh.ErrStoreUnavailable):
		return RefreshFailureStoreUnavailable
	default:
		return RefreshFailureStoreUnavailable
	}
}
