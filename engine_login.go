package invauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/invauth/internal/flows"
	"github.com/MrEthical07/invauth/internal/rate"
	"go.uber.org/zap"
)

// Login authenticates email and password and opens a session. The account's previous
// session is evicted when the role limit would be exceeded.
//
// The client IP from [WithClientIP] is the rate-limit origin. Unknown emails and wrong
// passwords both return [ErrInvalidCredentials] after the same hashing work.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditRecord{event: auditEventLoginFailure, err: ErrInvalidCredentials})
		return nil, ErrInvalidCredentials
	}

	res := e.flow.Login(ctx, email, password, ClientIPFromContext(ctx))

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		return nil, e.rateLimited(ctx, rate.ActionLogin, email, res.Decision)
	case flows.LoginFailureStoreUnavailable:
		e.metricInc(MetricLoginFailure)
		return nil, e.storeFailure(ctx, "login", res.User.ID, res.Err)
	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("access token mint failed", zap.Int64("user_id", res.User.ID), zap.Error(res.Err))
		return nil, fmt.Errorf("invauth: issue access token: %w", res.Err)
	default:
		return nil, e.loginRejected(ctx, email, res)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	if res.Evicted > 0 {
		e.sessionsEvicted(ctx, res.User.ID, res.User.TenantID, res.SessionID, res.Evicted)
	}
	e.emitAudit(ctx, auditRecord{
		event:     auditEventLoginSuccess,
		success:   true,
		userID:    res.User.ID,
		tenantID:  res.User.TenantID,
		sessionID: res.SessionID,
		meta: func() map[string]string {
			return map[string]string{"role": res.Role.String()}
		},
	})

	id := identityFromClaims(&res.AccessClaims, res.Role)
	return &TokenPair{
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessClaims.ExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		SessionID:        res.SessionID,
		Identity:         *id,
	}, nil
}

func (e *Engine) loginRejected(ctx context.Context, email string, res flows.LoginResult) error {
	var err error
	switch res.Failure {
	case flows.LoginFailureAccountInactive:
		err = ErrAccountInactive
	case flows.LoginFailureRoleNotAllowed:
		err = ErrRoleNotAllowed
		e.logger.Warn("account carries unknown role", zap.Int64("user_id", res.User.ID))
	default:
		err = ErrInvalidCredentials
		if res.Err != nil {
			e.logger.Warn("stored password hash unusable", zap.Int64("user_id", res.User.ID), zap.Error(res.Err))
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditRecord{
		event:    auditEventLoginFailure,
		userID:   res.User.ID,
		tenantID: res.User.TenantID,
		err:      err,
		meta: func() map[string]string {
			return map[string]string{"identifier": maskIdentifier(email)}
		},
	})
	return err
}

// Refresh exchanges a refresh token for a new pair. The presented token is consumed;
// presenting it again returns [ErrRefreshRevoked].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(refreshToken) == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrMissingCredential
	}

	res := e.flow.Refresh(ctx, refreshToken, ClientIPFromContext(ctx))

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		return nil, e.rateLimited(ctx, rate.ActionRefresh, "", res.Decision)
	case flows.RefreshFailureStoreUnavailable:
		e.metricInc(MetricRefreshFailure)
		return nil, e.storeFailure(ctx, "refresh", res.Rotation.User.ID, res.Err)
	case flows.RefreshFailureIssue:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("access token mint failed during rotation", zap.Error(res.Err))
		return nil, fmt.Errorf("invauth: issue access token: %w", res.Err)
	case flows.RefreshFailureRevoked:
		e.metricInc(MetricRefreshReplayRejected)
		e.logger.Warn("revoked refresh token presented", zap.String("origin", ClientIPFromContext(ctx)))
		e.emitAudit(ctx, auditRecord{event: auditEventRefreshReplay, err: ErrRefreshRevoked})
		return nil, ErrRefreshRevoked
	default:
		err := refreshFailureError(res.Failure)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRecord{event: auditEventRefreshInvalid, err: err})
		return nil, err
	}

	rot := res.Rotation
	e.metricInc(MetricRefreshSuccess)
	if res.Evicted > 0 {
		e.sessionsEvicted(ctx, rot.User.ID, rot.User.TenantID, rot.Issued.Credential.SessionID, res.Evicted)
	}
	e.emitAudit(ctx, auditRecord{
		event:     auditEventRefreshSuccess,
		success:   true,
		userID:    rot.User.ID,
		tenantID:  rot.User.TenantID,
		sessionID: rot.Issued.Credential.SessionID,
		meta: func() map[string]string {
			return map[string]string{"parent": rot.Previous.TokenID}
		},
	})

	return &TokenPair{
		AccessToken:      rot.Access.Token,
		AccessExpiresAt:  rot.Access.ExpiresAt,
		RefreshToken:     rot.Issued.Secret,
		RefreshExpiresAt: rot.Issued.Credential.ExpiresAt,
		SessionID:        rot.Issued.Credential.SessionID,
		Identity: Identity{
			UserID:     rot.User.ID,
			Email:      rot.User.Email,
			Role:       res.Role,
			TenantID:   rot.User.TenantID,
			TokenID:    rot.Access.TokenID,
			SessionID:  rot.Issued.Credential.SessionID,
			RefreshJTI: rot.Previous.TokenID,
			ExpiresAt:  rot.Access.ExpiresAt,
		},
	}, nil
}

func refreshFailureError(kind flows.RefreshFailureKind) error {
	switch kind {
	case flows.RefreshFailureNotFound:
		return ErrRefreshNotFound
	case flows.RefreshFailureRevoked:
		return ErrRefreshRevoked
	case flows.RefreshFailureExpired:
		return ErrRefreshExpired
	case flows.RefreshFailureAccountInactive:
		return ErrAccountInactive
	case flows.RefreshFailureRoleNotAllowed:
		return ErrRoleNotAllowed
	default:
		return ErrStoreUnavailable
	}
}

func (e *Engine) sessionsEvicted(ctx context.Context, userID int64, tenantID *int64, keptSession string, n int) {
	e.metricAdd(MetricSessionEvicted, n)
	e.logger.Info("sessions evicted",
		zap.Int64("user_id", userID),
		zap.Int("evicted", n),
	)
	e.emitAudit(ctx, auditRecord{
		event:     auditEventSessionEvicted,
		success:   true,
		userID:    userID,
		tenantID:  tenantID,
		sessionID: keptSession,
		meta: func() map[string]string {
			return map[string]string{"evicted": strconv.Itoa(n)}
		},
	})
}
