package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/invauth/internal/sweep"
	"github.com/MrEthical07/invauth/store"
	"go.uber.org/zap"
)

// Reason records why an id was revoked.
type Reason string

const (
	ReasonLogout         Reason = "logout"
	ReasonLogoutAll      Reason = "logout_all"
	ReasonSessionEvicted Reason = "session_evicted"
	ReasonLoginAborted   Reason = "login_aborted"
	ReasonSuspicious     Reason = "suspicious_activity"
	ReasonTenantIncident Reason = "tenant_incident"
	ReasonAdmin          Reason = "admin"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot answer.
	ErrStoreUnavailable = errors.New("revocation: store unavailable")
	// ErrEmptyTokenID is returned for an empty id.
	ErrEmptyTokenID = errors.New("revocation: empty token id")
)

// Repository is the persistence the store needs.
type Repository interface {
	store.RevocationRepository
	store.Transactor
	RevokeRefreshForUser(ctx context.Context, userID int64, at time.Time) ([]store.RefreshCredential, error)
	RevokeRefreshForSession(ctx context.Context, sessionID string, at time.Time) ([]store.RefreshCredential, error)
	ListUserIDsByTenant(ctx context.Context, tenantID int64) ([]int64, error)
}

type Config struct {
	// DefaultTTL bounds entries created without an explicit expiry. It must exceed the
	// longest access token lifetime.
	DefaultTTL time.Duration
	// Leeway extends every entry past the expiry it was given. It must be at least
	// the clock skew the token parser accepts after exp.
	Leeway        time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	repo       Repository
	defaultTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
	logger     *zap.Logger
	sweeper    *sweep.Task
}

// New builds a revocation store over repo.
func New(repo Repository, cfg Config, logger *zap.Logger) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		repo:       repo,
		defaultTTL: cfg.DefaultTTL,
		leeway:     cfg.Leeway,
		now:        cfg.Now,
		logger:     logger.With(zap.String("component", "revocation")),
	}
	s.sweeper = sweep.New("revocation", cfg.SweepInterval, s.SweepExpired, logger)
	return s
}

// Revoke rejects tokenID for DefaultTTL.
func (s *Store) Revoke(ctx context.Context, tokenID string, userID int64, reason Reason) error {
	return s.RevokeUntil(ctx, tokenID, userID, reason, s.now().Add(s.defaultTTL))
}

// RevokeUntil rejects tokenID until expiresAt plus the leeway. An expiry already past
// that point is a no-op since the token can no longer validate anyway.
func (s *Store) RevokeUntil(ctx context.Context, tokenID string, userID int64, reason Reason, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	expiresAt = expiresAt.Add(s.leeway)
	now := s.now()
	if !expiresAt.After(now) {
		return nil
	}
	err := s.repo.UpsertRevocation(ctx, store.RevocationEntry{
		TokenID:   tokenID,
		UserID:    userID,
		Reason:    string(reason),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Error("revoke failed", zap.String("reason", string(reason)), zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID is currently rejected.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	entry, err := s.repo.GetRevocation(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("revocation lookup failed", zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	if entry.ExpiresAt.After(now) {
		return true, nil
	}
	if err := s.repo.DeleteRevocationIfExpired(ctx, tokenID, now); err != nil {
		s.logger.Warn("lazy revocation cleanup failed", zap.Error(err))
	}
	return false, nil
}

// RevokeSession revokes every active credential of sessionID and rejects the session
// id itself so access tokens already minted for it stop validating. It returns the
// number of credentials revoked.
func (s *Store) RevokeSession(ctx context.Context, userID int64, sessionID string, reason Reason) (int, error) {
	if sessionID == "" {
		return 0, ErrEmptyTokenID
	}
	var revoked int
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		creds, err := s.repo.RevokeRefreshForSession(ctx, sessionID, now)
		if err != nil {
			return err
		}
		revoked = len(creds)
		return s.upsertAll(ctx, userID, reason, now, creds, []string{sessionID})
	})
	if err != nil {
		s.logger.Error("revoke session failed", zap.Int64("user_id", userID), zap.String("reason", string(reason)), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return revoked, nil
}

// RevokeAllForUser revokes every active credential of the user, writes an entry for
// each credential id and each affected session id, and returns the number of
// credentials processed. The whole operation is one transaction.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64, reason Reason) (int, error) {
	var revoked int
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		creds, err := s.repo.RevokeRefreshForUser(ctx, userID, now)
		if err != nil {
			return err
		}
		revoked = len(creds)

		seen := make(map[string]struct{}, len(creds))
		sessions := make([]string, 0, len(creds))
		for _, c := range creds {
			if c.SessionID == "" {
				continue
			}
			if _, ok := seen[c.SessionID]; ok {
				continue
			}
			seen[c.SessionID] = struct{}{}
			sessions = append(sessions, c.SessionID)
		}
		return s.upsertAll(ctx, userID, reason, now, creds, sessions)
	})
	if err != nil {
		s.logger.Error("revoke all for user failed", zap.Int64("user_id", userID), zap.String("reason", string(reason)), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked > 0 {
		s.logger.Info("user credentials revoked",
			zap.Int64("user_id", userID),
			zap.String("reason", string(reason)),
			zap.Int("credentials", revoked),
		)
	}
	return revoked, nil
}

// RevokeAllForTenant applies RevokeAllForUser to every user of the tenant. On failure
// it returns the count processed so far together with the error.
func (s *Store) RevokeAllForTenant(ctx context.Context, tenantID int64, reason Reason) (int, error) {
	userIDs, err := s.repo.ListUserIDsByTenant(ctx, tenantID)
	if err != nil {
		s.logger.Error("list tenant users failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	total := 0
	for _, id := range userIDs {
		n, err := s.RevokeAllForUser(ctx, id, reason)
		if err != nil {
			return total, err
		}
		total += n
	}
	s.logger.Warn("tenant credentials revoked",
		zap.Int64("tenant_id", tenantID),
		zap.Int("users", len(userIDs)),
		zap.Int("credentials", total),
		zap.String("reason", string(reason)),
	)
	return total, nil
}

// SweepExpired deletes expired entries once.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredRevocations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Start launches the hourly sweep.
func (s *Store) Start(ctx context.Context) { s.sweeper.Start(ctx) }

// Stop halts the sweep and waits for it.
func (s *Store) Stop() { s.sweeper.Stop() }

func (s *Store) upsertAll(ctx context.Context, userID int64, reason Reason, now time.Time, creds []store.RefreshCredential, sessions []string) error {
	for _, c := range creds {
		err := s.repo.UpsertRevocation(ctx, store.RevocationEntry{
			TokenID:   c.TokenID,
			UserID:    userID,
			Reason:    string(reason),
			ExpiresAt: c.ExpiresAt.Add(s.leeway),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	for _, sid := range sessions {
		err := s.repo.UpsertRevocation(ctx, store.RevocationEntry{
			TokenID:   sid,
			UserID:    userID,
			Reason:    string(reason),
			ExpiresAt: now.Add(s.defaultTTL),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
