package invauth

import (
	"net/http"
	"strings"
	"time"
)

// DefaultAccessCookie is the cookie name checked before the Authorization header.
const DefaultAccessCookie = "access_token"

// CredentialFromRequest extracts the raw access token: the named cookie first, then
// an "Authorization: Bearer" header. An empty cookieName means [DefaultAccessCookie].
func CredentialFromRequest(r *http.Request, cookieName string) (string, error) {
	if r == nil {
		return "", ErrMissingCredential
	}
	if cookieName == "" {
		cookieName = DefaultAccessCookie
	}
	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, nil
		}
	}

	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		if tok := strings.TrimSpace(h[7:]); tok != "" {
			return tok, nil
		}
	}
	return "", ErrMissingCredential
}

// SetAccessCookie writes the access token as an HttpOnly cookie that expires with it.
func SetAccessCookie(w http.ResponseWriter, cfg CookieConfig, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.name(),
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearAccessCookie expires the access cookie on the client.
func ClearAccessCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.name(),
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}
