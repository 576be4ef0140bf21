package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/role"
)

// RequestValidator is satisfied by *invauth.Engine.
type RequestValidator interface {
	ValidateRequest(r *http.Request) (*invauth.Identity, error)
}

// TenantAuthorizer is satisfied by *invauth.Engine.
type TenantAuthorizer interface {
	RequireTenant(ctx context.Context, id *invauth.Identity) (*invauth.TenantInfo, error)
}

// RateChecker is satisfied by *invauth.Engine.
type RateChecker interface {
	CheckRate(ctx context.Context, action invauth.RateAction, subject string) (invauth.RateDecision, error)
}

type tenantContextKey struct{}

// Guard rejects requests without a valid access token and stores the identity for
// [invauth.IdentityFromContext].
func Guard(v RequestValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteError(w, invauth.ErrEngineNotReady)
				return
			}
			id, err := v.ValidateRequest(r)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(invauth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireTenant must run after [Guard]. It stores the resolved tenant for
// [TenantFromContext].
func RequireTenant(t TenantAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := invauth.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, invauth.ErrMissingCredential)
				return
			}
			info, err := t.RequireTenant(r.Context(), id)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), tenantContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant stored by [RequireTenant].
func TenantFromContext(ctx context.Context) (*invauth.TenantInfo, bool) {
	info, ok := ctx.Value(tenantContextKey{}).(*invauth.TenantInfo)
	return info, ok && info != nil
}

// RequireRole must run after [Guard].
func RequireRole(allowed ...role.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := invauth.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, invauth.ErrMissingCredential)
				return
			}
			for _, a := range allowed {
				if id.Role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteForbidden(w, invauth.ReasonRoleNotAllowed)
		})
	}
}

// RateLimit counts one attempt of action per request. subject extracts the
// per-account key; nil means the limit is per origin only.
func RateLimit(c RateChecker, action invauth.RateAction, subject func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var s string
			if subject != nil {
				s = subject(r)
			}
			d, err := c.CheckRate(r.Context(), action, s)
			if err != nil {
				WriteError(w, err)
				return
			}
			setRateHeaders(w.Header(), d.Remaining, d.ResetAt, d.BlockedUntil)
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP stores the caller address with [invauth.WithClientIP]. With trustProxy the
// first X-Forwarded-For entry wins; only enable it behind a proxy that sets it.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if trustProxy {
				if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
					first, _, _ := strings.Cut(xff, ",")
					ip = strings.TrimSpace(first)
				}
			}
			if ip == "" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				ip = host
			}
			next.ServeHTTP(w, r.WithContext(invauth.WithClientIP(r.Context(), ip)))
		})
	}
}
