package invauth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/invauth/internal/flows"
	"github.com/MrEthical07/invauth/role"
	"go.uber.org/zap"
)

// Validate verifies a raw access token and returns the identity behind it.
//
// Checks run in a fixed order: token text, signature and registered claims, claim
// shape, role, then the revocation list for the token id and its session id. A
// revocation lookup failure returns [ErrStoreUnavailable]; the token is never accepted
// when its revocation state is unknown.
func (e *Engine) Validate(ctx context.Context, token string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, e.tokenRejected(ctx, ErrMissingCredential, nil)
	}

	res := e.flow.Validate(ctx, token)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureMalformed:
		return nil, e.tokenRejected(ctx, wrap(ErrMalformedToken, res.Err), nil)
	case flows.ValidateFailureInvalid:
		return nil, e.tokenRejected(ctx, wrap(ErrTokenInvalid, res.Err), nil)
	case flows.ValidateFailureRoleNotAllowed:
		return nil, e.tokenRejected(ctx, ErrRoleNotAllowed, identityFromClaims(res.Claims, role.Unknown))
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricValidateRevoked)
		return nil, e.tokenRejected(ctx, ErrTokenRevoked, identityFromClaims(res.Claims, res.Role))
	default:
		var userID int64
		if res.Claims != nil {
			userID = res.Claims.UserID
		}
		return nil, e.storeFailure(ctx, "validate", userID, res.Err)
	}

	e.metricInc(MetricValidateSuccess)
	id := identityFromClaims(res.Claims, res.Role)
	if e.config.Session.AsyncSignal {
		e.signalAsync(id, ClientIPFromContext(ctx))
	}
	return id, nil
}

// ValidateRequest extracts the access token from r (cookie first, then bearer header)
// and validates it. The remote address becomes the client IP unless the context
// already carries one.
func (e *Engine) ValidateRequest(r *http.Request) (*Identity, error) {
	ctx := r.Context()
	if ClientIPFromContext(ctx) == "" {
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			ctx = WithClientIP(ctx, ip)
		}
	}
	token, err := CredentialFromRequest(r, e.config.Cookie.name())
	if err != nil {
		if !e.ready() {
			return nil, ErrEngineNotReady
		}
		return nil, e.tokenRejected(ctx, err, nil)
	}
	return e.Validate(ctx, token)
}

func (e *Engine) tokenRejected(ctx context.Context, err error, id *Identity) error {
	e.metricInc(MetricValidateRejected)
	rec := auditRecord{event: auditEventTokenRejected, err: err}
	if id != nil {
		rec.userID = id.UserID
		rec.tenantID = id.TenantID
		rec.sessionID = id.SessionID
	}
	e.emitAudit(ctx, rec)
	return err
}

// signalAsync asks the session limiter whether the account looks abused. The answer
// is advisory: it is logged and audited but never changes a validation outcome.
func (e *Engine) signalAsync(id *Identity, origin string) {
	e.signalMu.RLock()
	defer e.signalMu.RUnlock()
	if e.closing.Load() {
		return
	}
	e.signals.Add(1)
	go func() {
		defer e.signals.Done()
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		if origin != "" {
			ctx = WithClientIP(ctx, origin)
		}

		sig, err := e.sessions.Suspicious(ctx, id.UserID, id.Role)
		if err != nil {
			e.logger.Warn("suspicious activity check failed", zap.Int64("user_id", id.UserID), zap.Error(err))
			return
		}
		if !sig.Suspicious {
			return
		}
		e.metricInc(MetricSuspiciousSignal)
		e.emitAudit(ctx, auditRecord{
			event:     auditEventSuspiciousActivity,
			userID:    id.UserID,
			tenantID:  id.TenantID,
			sessionID: id.SessionID,
			meta: func() map[string]string {
				return map[string]string{"reasons": strings.Join(sig.Reasons, ",")}
			},
		})
	}()
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}
