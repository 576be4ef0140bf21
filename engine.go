package invauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/invauth/internal/audit"
	"github.com/MrEthical07/invauth/internal/flows"
	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/revocation"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/session"
	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/tenant"
	"go.uber.org/zap"
)

// Engine is the token and session security core. Build one with [New] and
// [Builder.Build], call [Engine.Start] to run background sweeps and [Engine.Close] on
// shutdown.
//
// All methods are safe for concurrent use.
type Engine struct {
	config Config
	store  store.Store
	logger *zap.Logger
	now    func() time.Time

	passwords PasswordVerifier
	dummyHash string

	limiter     rate.Limiter
	jwt         *jwt.Manager
	revocations *revocation.Store
	refresh     *refresh.Manager
	sessions    *session.Limiter
	tenants     *tenant.Cache

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	flow    flows.Service

	signalMu  sync.RWMutex
	signals   sync.WaitGroup
	closing   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

const signalTimeout = 2 * time.Second

// Start launches the rate-counter, revocation and session sweeps. They stop when ctx
// is cancelled or [Engine.Close] is called. Start is idempotent.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.startOnce.Do(func() {
		e.limiter.Start(ctx)
		e.revocations.Start(ctx)
		e.sessions.Start(ctx)
		e.logger.Info("engine started",
			zap.String("rate_limit_backend", string(e.config.RateLimit.Backend)),
			zap.String("signing_method", e.config.JWT.SigningMethod),
		)
	})
}

// Close stops the sweeps, waits for in-flight suspicious-activity checks and drains
// the audit dispatcher. The store is owned by the caller and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.signalMu.Lock()
		e.closing.Store(true)
		e.signalMu.Unlock()

		e.limiter.Stop()
		e.revocations.Stop()
		e.sessions.Stop()
		e.signals.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
		e.logger.Info("engine closed")
	})
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized() && !e.closing.Load()
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.Add(id, uint64(n))
	}
}

// mint signs an access token whose lifetime comes from the role table.
func (e *Engine) mint(user store.User, r role.Role, sessionID, refreshJTI string) (string, jwt.AccessClaims, error) {
	return e.jwt.CreateAccess(jwt.AccessInput{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       r.String(),
		TenantID:   user.TenantID,
		SessionID:  sessionID,
		RefreshJTI: refreshJTI,
		TTL:        role.LimitsFor(r).AccessTTL,
	})
}

// mintForRotation is the refresh manager's minter. It runs inside the rotation
// transaction, so an error here rolls the rotation back.
func (e *Engine) mintForRotation(user store.User, sessionID, refreshJTI string) (refresh.Access, error) {
	r, ok := role.Parse(user.Role)
	if !ok {
		return refresh.Access{}, role.ErrNotAllowed
	}
	token, claims, err := e.mint(user, r, sessionID, refreshJTI)
	if err != nil {
		return refresh.Access{}, err
	}
	return refresh.Access{Token: token, TokenID: claims.TokenID, ExpiresAt: claims.ExpiresAt}, nil
}

func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Validate: flows.ValidateDeps{
			ParseAccess: e.jwt.ParseAccess,
			Revocations: e.revocations,
		},
		Login: flows.LoginDeps{
			Now: e.now,
			CheckRate: func(ctx context.Context, email, origin string) (rate.Decision, error) {
				return e.limiter.Check(ctx, email, rate.ActionLogin, origin)
			},
			RecordSuccess: func(ctx context.Context, email, origin string) error {
				return e.limiter.RecordSuccess(ctx, email, rate.ActionLogin, origin)
			},
			GetUserByEmail: e.store.GetUserByEmail,
			VerifyPassword: func(hash, password string) (bool, error) {
				return e.passwords.Verify(password, hash)
			},
			DummyHash:    e.dummyHash,
			IssueRefresh: e.refresh.Issue,
			MintAccess:   e.mint,
			EvictExcess:  e.sessions.EvictExcess,
			Track:        e.sessions.Track,
			AbortSession: func(ctx context.Context, userID int64, sessionID string) error {
				_, err := e.revocations.RevokeSession(ctx, userID, sessionID, revocation.ReasonLoginAborted)
				return err
			},
			Warn: func(msg string, kv ...any) {
				e.logger.Sugar().Warnw(msg, kv...)
			},
		},
		Refresh: flows.RefreshDeps{
			Now: e.now,
			CheckRate: func(ctx context.Context, origin string) (rate.Decision, error) {
				if origin == "" {
					return rate.Decision{Allowed: true}, nil
				}
				return e.limiter.Check(ctx, "", rate.ActionRefresh, origin)
			},
			Rotate:      e.refresh.Rotate,
			EvictExcess: e.sessions.EvictExcess,
			Track:       e.sessions.Track,
		},
		Logout: flows.LogoutDeps{
			RevokeTokenUntil: func(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error {
				return e.revocations.RevokeUntil(ctx, tokenID, userID, revocation.ReasonLogout, expiresAt)
			},
			RevokeSession: func(ctx context.Context, userID int64, sessionID string) (int, error) {
				return e.revocations.RevokeSession(ctx, userID, sessionID, revocation.ReasonLogout)
			},
			RevokeRefresh: e.refresh.Revoke,
		},
		Admin: flows.AdminDeps{
			RevokeAllForUser: func(ctx context.Context, userID int64, reason string) (int, error) {
				return e.revocations.RevokeAllForUser(ctx, userID, revocation.Reason(reason))
			},
			RevokeAllForTenant: func(ctx context.Context, tenantID int64, reason string) (int, error) {
				return e.revocations.RevokeAllForTenant(ctx, tenantID, revocation.Reason(reason))
			},
			InvalidateTenant: e.tenants.Invalidate,
		},
		Introspect: flows.IntrospectDeps{
			CheckLimit: e.sessions.CheckLimit,
			GetTenant:  e.tenants.Get,
		},
	}
}

// storeFailure logs, counts and audits a backend failure and returns the
// fail-closed error.
func (e *Engine) storeFailure(ctx context.Context, op string, userID int64, err error) error {
	e.metricInc(MetricStoreUnavailable)
	event := auditEventStoreUnavailable
	if errors.Is(err, rate.ErrStoreUnavailable) {
		event = auditEventRateLimitStoreError
	}
	e.logger.Error("store unavailable, denying request",
		zap.String("op", op),
		zap.Int64("user_id", userID),
		zap.Error(err),
	)
	e.emitAudit(ctx, auditRecord{
		event:  event,
		userID: userID,
		err:    ErrStoreUnavailable,
		meta:   func() map[string]string { return map[string]string{"op": op} },
	})
	return wrap(ErrStoreUnavailable, err)
}

// rateLimited converts a rejecting decision into the public error and records it.
func (e *Engine) rateLimited(ctx context.Context, action rate.Action, subject string, d rate.Decision) *RateLimitError {
	rl := &RateLimitError{
		Action:       string(action),
		Remaining:    d.Remaining,
		ResetAt:      d.ResetAt,
		BlockedUntil: d.BlockedUntil,
		now:          e.now(),
	}
	fields := []zap.Field{
		zap.String("action", string(action)),
		zap.String("origin", ClientIPFromContext(ctx)),
	}
	if subject != "" {
		fields = append(fields, zap.String("subject", maskIdentifier(subject)))
	}
	if !d.BlockedUntil.IsZero() {
		fields = append(fields, zap.Time("blocked_until", d.BlockedUntil))
	}
	e.logger.Warn("rate limit triggered", fields...)
	e.emitRateLimit(ctx, string(action), subject, rl)
	return rl
}

func identityFromClaims(c *jwt.AccessClaims, r role.Role) *Identity {
	return &Identity{
		UserID:     c.UserID,
		Email:      c.Email,
		Role:       r,
		TenantID:   c.TenantID,
		TokenID:    c.TokenID,
		SessionID:  c.SessionID,
		RefreshJTI: c.RefreshJTI,
		ExpiresAt:  c.ExpiresAt,
	}
}

func claimsFromIdentity(id *Identity) *jwt.AccessClaims {
	return &jwt.AccessClaims{
		UserID:     id.UserID,
		Email:      id.Email,
		Role:       id.Role.String(),
		TenantID:   id.TenantID,
		TokenID:    id.TokenID,
		SessionID:  id.SessionID,
		RefreshJTI: id.RefreshJTI,
		ExpiresAt:  id.ExpiresAt,
	}
}
