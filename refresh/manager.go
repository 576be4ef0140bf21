package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/invauth/internal"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
	"go.uber.org/zap"
)

// DefaultTTL is the absolute lifetime of a refresh credential.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrNotFound         = errors.New("refresh: credential not found")
	ErrRevoked          = errors.New("refresh: credential revoked")
	ErrExpired          = errors.New("refresh: credential expired")
	ErrAccountInactive  = errors.New("refresh: account inactive")
	ErrStoreUnavailable = errors.New("refresh: store unavailable")
	// ErrMintFailed wraps a Minter error. The rotation was rolled back.
	ErrMintFailed = errors.New("refresh: access token mint failed")
)

// Repository is the persistence the manager needs.
type Repository interface {
	store.RefreshRepository
	store.Transactor
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
}

// Minter issues the access token that accompanies a rotated credential. refreshJTI is
// the id of the credential that was consumed.
type Minter func(user store.User, sessionID, refreshJTI string) (Access, error)

// Access is a signed access token minted during rotation.
type Access struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// RevocationChecker reports whether an id was revoked. Sessions are looked up by
// their session id.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, id string) (bool, error)
}

type Config struct {
	TTL time.Duration
	Now func() time.Time
	// Sessions rejects credentials whose session was revoked after they were
	// written, such as a successor committed while its session was being evicted.
	Sessions RevocationChecker
}

// Issued is a newly created credential and its raw secret. The secret is returned
// exactly once.
type Issued struct {
	Secret     string
	Credential store.RefreshCredential
}

// Consumed is a credential that was atomically moved out of the active state.
type Consumed struct {
	Credential store.RefreshCredential
	User       store.User
}

// Rotation is the result of exchanging one secret for a new one in the same session.
type Rotation struct {
	Previous store.RefreshCredential
	Issued   Issued
	User     store.User
	Access   Access
}

// Manager is safe for concurrent use.
type Manager struct {
	repo     Repository
	ttl      time.Duration
	now      func() time.Time
	minter   Minter
	sessions RevocationChecker
	logger   *zap.Logger
}

// NewManager builds a manager over repo. minter may be nil, in which case Rotate does
// not produce an access token.
func NewManager(repo Repository, minter Minter, cfg Config, logger *zap.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:     repo,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		minter:   minter,
		sessions: cfg.Sessions,
		logger:   logger.With(zap.String("component", "refresh")),
	}
}

// Issue creates a credential for a new session of userID.
func (m *Manager) Issue(ctx context.Context, userID int64) (Issued, error) {
	return m.issue(ctx, userID, internal.NewTokenID(), "")
}

func (m *Manager) issue(ctx context.Context, userID int64, sessionID, parentID string) (Issued, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return Issued{}, fmt.Errorf("refresh: generate secret: %w", err)
	}

	now := m.now()
	cred := store.RefreshCredential{
		TokenID:    internal.NewTokenID(),
		SecretHash: internal.HashSecret(secret),
		UserID:     userID,
		SessionID:  sessionID,
		ParentID:   parentID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.repo.InsertRefresh(ctx, cred); err != nil {
		return Issued{}, m.unavailable("insert", err)
	}
	return Issued{Secret: secret, Credential: cred}, nil
}

// Validate checks a secret without changing any state. Errors are reported in the
// order not found, revoked, expired, account inactive.
func (m *Manager) Validate(ctx context.Context, secret string) (Consumed, error) {
	if !internal.ValidRefreshSecret(secret) {
		return Consumed{}, ErrNotFound
	}

	cred, err := m.repo.FindRefreshByHash(ctx, internal.HashSecret(secret))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Consumed{}, ErrNotFound
		}
		return Consumed{}, m.unavailable("find", err)
	}
	if cred.Revoked {
		return Consumed{Credential: cred}, ErrRevoked
	}
	if m.sessions != nil && cred.SessionID != "" {
		revoked, err := m.sessions.IsRevoked(ctx, cred.SessionID)
		if err != nil {
			return Consumed{}, m.unavailable("session lookup", err)
		}
		if revoked {
			return Consumed{Credential: cred}, ErrRevoked
		}
	}

	user, err := m.repo.GetUserByID(ctx, cred.UserID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Consumed{}, m.unavailable("load user", err)
	}

	now := m.now()
	r := role.Unknown
	if found {
		r, _ = role.Parse(user.Role)
	}
	if !cred.ExpiresAt.After(now) || now.Sub(cred.IssuedAt) > role.LimitsFor(r).IdleTimeout {
		return Consumed{Credential: cred}, ErrExpired
	}

	if !found || !user.Active {
		return Consumed{Credential: cred}, ErrAccountInactive
	}
	return Consumed{Credential: cred, User: user}, nil
}

// ValidateAndConsume validates the secret and atomically marks it used. Of several
// concurrent callers presenting the same secret exactly one succeeds.
func (m *Manager) ValidateAndConsume(ctx context.Context, secret string) (Consumed, error) {
	c, err := m.Validate(ctx, secret)
	if err != nil {
		m.logRejection(c, err)
		return Consumed{}, err
	}

	ok, err := m.repo.RevokeRefreshIfActive(ctx, c.Credential.TokenID, m.now())
	if err != nil {
		return Consumed{}, m.unavailable("consume", err)
	}
	if !ok {
		m.logRejection(c, ErrRevoked)
		return Consumed{}, ErrRevoked
	}
	c.Credential.Revoked = true
	return c, nil
}

// Rotate consumes secret and issues its successor in the same session, together with
// a fresh access token when a Minter is configured. Everything happens in one
// transaction; on any failure the old credential stays usable.
func (m *Manager) Rotate(ctx context.Context, secret string) (Rotation, error) {
	var rot Rotation
	err := m.repo.WithTx(ctx, func(ctx context.Context) error {
		c, err := m.ValidateAndConsume(ctx, secret)
		if err != nil {
			return err
		}

		issued, err := m.issue(ctx, c.User.ID, c.Credential.SessionID, c.Credential.TokenID)
		if err != nil {
			return err
		}

		rot = Rotation{Previous: c.Credential, Issued: issued, User: c.User}
		if m.minter != nil {
			access, err := m.minter(c.User, c.Credential.SessionID, c.Credential.TokenID)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMintFailed, err)
			}
			rot.Access = access
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return Rotation{}, err
		}
		return Rotation{}, m.unavailable("rotate", err)
	}
	return rot, nil
}

// Revoke revokes the credential behind secret. Revoking an already revoked credential
// succeeds.
func (m *Manager) Revoke(ctx context.Context, secret string) (store.RefreshCredential, error) {
	if !internal.ValidRefreshSecret(secret) {
		return store.RefreshCredential{}, ErrNotFound
	}
	cred, err := m.repo.FindRefreshByHash(ctx, internal.HashSecret(secret))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.RefreshCredential{}, ErrNotFound
		}
		return store.RefreshCredential{}, m.unavailable("find", err)
	}
	if _, err := m.repo.RevokeRefreshIfActive(ctx, cred.TokenID, m.now()); err != nil {
		return store.RefreshCredential{}, m.unavailable("revoke", err)
	}
	cred.Revoked = true
	return cred, nil
}

// RevokeAllForUser revokes every active credential of the user.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	creds, err := m.repo.RevokeRefreshForUser(ctx, userID, m.now())
	if err != nil {
		return 0, m.unavailable("revoke user", err)
	}
	return len(creds), nil
}

// RevokeSession revokes every active credential of the session.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) (int, error) {
	creds, err := m.repo.RevokeRefreshForSession(ctx, sessionID, m.now())
	if err != nil {
		return 0, m.unavailable("revoke session", err)
	}
	return len(creds), nil
}

func (m *Manager) unavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	m.logger.Error("refresh store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (m *Manager) logRejection(c Consumed, err error) {
	if !errors.Is(err, ErrRevoked) || c.Credential.TokenID == "" {
		return
	}
	m.logger.Warn("revoked refresh credential presented",
		zap.Int64("user_id", c.Credential.UserID),
		zap.String("session_id", c.Credential.SessionID),
	)
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrMintFailed)
}
