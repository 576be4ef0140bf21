package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/internal/config"
	"github.com/MrEthical07/invauth/middleware"
	"github.com/MrEthical07/invauth/role"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 14

// authAPI is the engine surface the handlers use.
type authAPI interface {
	middleware.RequestValidator
	middleware.TenantAuthorizer
	Login(ctx context.Context, email, password string) (*invauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*invauth.TokenPair, error)
	Logout(ctx context.Context, id *invauth.Identity, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) (int, error)
	RevokeUser(ctx context.Context, userID int64, reason string) (int, error)
	RevokeTenant(ctx context.Context, tenantID int64, reason string) (int, error)
	Introspect(ctx context.Context, id *invauth.Identity) (*invauth.SessionInfo, error)
}

type handlers struct {
	auth   authAPI
	cookie invauth.CookieConfig
	logger *zap.Logger
}

func buildHTTPServer(cfg *config.Config, engine *invauth.Engine, cookie invauth.CookieConfig, logger *zap.Logger) *http.Server {
	h := &handlers{auth: engine, cookie: cookie, logger: logger.With(zap.String("component", "http"))}

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           h.routes(cfg.Server.TrustProxy),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}

func (h *handlers) routes(trustProxy bool) http.Handler {
	guard := middleware.Guard(h.auth)
	tenant := middleware.RequireTenant(h.auth)
	superadmin := middleware.RequireRole(role.SuperAdmin)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.Handle("POST /auth/logout", guard(http.HandlerFunc(h.logout)))
	mux.Handle("POST /auth/logout-all", guard(http.HandlerFunc(h.logoutAll)))
	mux.Handle("GET /auth/me", guard(http.HandlerFunc(h.me)))
	mux.Handle("GET /tenant/current", guard(tenant(http.HandlerFunc(h.currentTenant))))
	mux.Handle("POST /admin/users/{id}/revoke", guard(superadmin(http.HandlerFunc(h.revokeUser))))
	mux.Handle("POST /admin/tenants/{id}/revoke", guard(superadmin(http.HandlerFunc(h.revokeTenant))))

	return middleware.ClientIP(trustProxy)(mux)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type userView struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID *int64 `json:"tenantId"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	SessionID        string    `json:"sessionId"`
	User             userView  `json:"user"`
}

type sessionResponse struct {
	User           userView            `json:"user"`
	SessionID      string              `json:"sessionId"`
	ActiveSessions int                 `json:"activeSessions"`
	MaxSessions    int                 `json:"maxSessions"`
	Tenant         *invauth.TenantInfo `json:"tenant"`
}

type revokedResponse struct {
	Revoked int `json:"revoked"`
}

func viewOf(id invauth.Identity) userView {
	return userView{ID: id.UserID, Email: id.Email, Role: id.Role.String(), TenantID: id.TenantID}
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.writeTokens(w, pair)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.writeTokens(w, pair)
}

func (h *handlers) writeTokens(w http.ResponseWriter, pair *invauth.TokenPair) {
	invauth.SetAccessCookie(w, h.cookie, pair.AccessToken, pair.AccessExpiresAt)
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        pair.SessionID,
		User:             viewOf(pair.Identity),
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := invauth.IdentityFromContext(r.Context())
	var req refreshRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if err := h.auth.Logout(r.Context(), id, req.RefreshToken); err != nil {
		middleware.WriteError(w, err)
		return
	}
	invauth.ClearAccessCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := invauth.IdentityFromContext(r.Context())
	n, err := h.auth.LogoutAll(r.Context(), id.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	invauth.ClearAccessCookie(w, h.cookie)
	middleware.WriteJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, _ := invauth.IdentityFromContext(r.Context())
	info, err := h.auth.Introspect(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessionResponse{
		User:           viewOf(*id),
		SessionID:      info.SessionID,
		ActiveSessions: info.ActiveSessions,
		MaxSessions:    info.MaxSessions,
		Tenant:         info.Tenant,
	})
}

func (h *handlers) currentTenant(w http.ResponseWriter, r *http.Request) {
	t, _ := middleware.TenantFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) revokeUser(w http.ResponseWriter, r *http.Request) {
	h.adminRevoke(w, r, h.auth.RevokeUser)
}

func (h *handlers) revokeTenant(w http.ResponseWriter, r *http.Request) {
	h.adminRevoke(w, r, h.auth.RevokeTenant)
}

func (h *handlers) adminRevoke(w http.ResponseWriter, r *http.Request, revoke func(context.Context, int64, string) (int, error)) {
	target, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || target <= 0 {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "bad_request", Reason: "invalid_id"})
		return
	}
	var req revokeRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	n, err := revoke(r.Context(), target, req.Reason)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	admin, _ := invauth.IdentityFromContext(r.Context())
	h.logger.Info("admin revocation",
		zap.Int64("admin_id", admin.UserID),
		zap.String("path", r.URL.Path),
		zap.Int64("target", target),
		zap.Int("revoked", n),
	)
	middleware.WriteJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "bad_request", Reason: "invalid_body"})
		return false
	}
	return true
}
