package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/invauth"
)

// ErrorBody is the JSON shape of every rejection except rate limiting.
type ErrorBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	NeedsSetup bool   `json:"needsSetup,omitempty"`
}

// RateLimitBody is the JSON shape of a 429 response.
type RateLimitBody struct {
	Error             string  `json:"error"`
	RemainingAttempts int     `json:"remainingAttempts"`
	ResetTime         string  `json:"resetTime"`
	BlockedUntil      *string `json:"blockedUntil"`
}

// WriteError maps an engine error to its HTTP status and body.
func WriteError(w http.ResponseWriter, err error) {
	var rl *invauth.RateLimitError
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, rl)
	case errors.Is(err, invauth.ErrTenantRequired):
		WriteJSON(w, http.StatusForbidden, ErrorBody{
			Error:      "tenant_required",
			Reason:     invauth.ReasonTenantRequired,
			NeedsSetup: true,
		})
	case errors.Is(err, invauth.ErrTenantNotFound):
		WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden", Reason: invauth.ReasonTenantNotFound})
	case errors.Is(err, invauth.ErrStoreUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "unauthorized", Reason: invauth.ReasonStoreUnavailable})
	case errors.Is(err, invauth.ErrEngineNotReady):
		WriteJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "unavailable"})
	default:
		reason := invauth.ReasonCode(err)
		if reason == invauth.ReasonInternal {
			WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: reason})
			return
		}
		WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "unauthorized", Reason: reason})
	}
}

// WriteForbidden writes a 403 with the given reason.
func WriteForbidden(w http.ResponseWriter, reason string) {
	WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden", Reason: reason})
}

func writeRateLimited(w http.ResponseWriter, rl *invauth.RateLimitError) {
	setRateHeaders(w.Header(), rl.Remaining, rl.ResetAt, rl.BlockedUntil)
	retry := int(math.Ceil(rl.RetryAfter().Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	body := RateLimitBody{
		Error:             invauth.ReasonRateLimited,
		RemainingAttempts: rl.Remaining,
		ResetTime:         rl.ResetAt.UTC().Format(time.RFC3339),
	}
	if !rl.BlockedUntil.IsZero() {
		s := rl.BlockedUntil.UTC().Format(time.RFC3339)
		body.BlockedUntil = &s
	}
	WriteJSON(w, http.StatusTooManyRequests, body)
}

func setRateHeaders(h http.Header, remaining int, resetAt, blockedUntil time.Time) {
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !resetAt.IsZero() {
		h.Set("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))
	}
	if !blockedUntil.IsZero() {
		h.Set("X-RateLimit-Blocked-Until", blockedUntil.UTC().Format(time.RFC3339))
	}
}

// WriteJSON writes body with status and disables caching.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
