package invauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/revocation"
	"github.com/MrEthical07/invauth/tenant"
)

// Config defines the engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT         JWTConfig
	Cookie      CookieConfig
	Refresh     RefreshConfig
	RateLimit   RateLimitConfig
	Session     SessionConfig
	Revocation  RevocationConfig
	TenantCache TenantCacheConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing and verification. Access lifetimes come
// from the role table; DefaultAccessTTL applies only when a role has none.
type JWTConfig struct {
	DefaultAccessTTL time.Duration
	SigningMethod    string // "ed25519" (default) or "hs256"
	PrivateKey       []byte
	PublicKey        []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	MaxFutureIAT     time.Duration
	KeyID            string
}

// CookieConfig describes the access-token cookie.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultAccessCookie
	}
	return c.Name
}

// RefreshConfig controls refresh credential lifetime.
type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitBackend selects where attempt counters live.
type RateLimitBackend string

const (
	// RateLimitMemory keeps counters in process. Suitable for a single instance.
	RateLimitMemory RateLimitBackend = "memory"
	// RateLimitRedis shares counters across instances through Redis.
	RateLimitRedis RateLimitBackend = "redis"
)

// RateLimitConfig selects the limiter backend and per-action policies.
type RateLimitConfig struct {
	Backend       RateLimitBackend
	Policies      rate.Policies
	SweepInterval time.Duration
}

// SessionConfig tunes the suspicious-activity signal and expired credential cleanup.
type SessionConfig struct {
	SuspiciousWindow          time.Duration
	SuspiciousIssuedThreshold int
	SuspiciousCheckInterval   time.Duration
	SweepInterval             time.Duration
	// AsyncSignal runs the suspicious-activity check after each successful validation.
	AsyncSignal bool
}

// RevocationConfig controls revocation entry lifetime and sweep cadence.
type RevocationConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// TenantCacheConfig controls tenant existence caching.
type TenantCacheConfig struct {
	TTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Signing keys must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			DefaultAccessTTL: 15 * time.Minute,
			SigningMethod:    string(jwt.MethodEd25519),
			Leeway:           30 * time.Second,
			MaxFutureIAT:     10 * time.Minute,
		},
		Cookie: CookieConfig{
			Name:     DefaultAccessCookie,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		Refresh: RefreshConfig{
			TTL: refresh.DefaultTTL,
		},
		RateLimit: RateLimitConfig{
			Backend:       RateLimitMemory,
			Policies:      rate.DefaultPolicies(),
			SweepInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			SuspiciousWindow:          time.Hour,
			SuspiciousIssuedThreshold: 5,
			SuspiciousCheckInterval:   time.Minute,
			SweepInterval:             5 * time.Minute,
			AsyncSignal:               true,
		},
		Revocation: RevocationConfig{
			DefaultTTL:    revocation.DefaultTTL,
			SweepInterval: revocation.DefaultSweepInterval,
		},
		TenantCache: TenantCacheConfig{
			TTL: tenant.DefaultTTL,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(rate.Policies, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that would weaken token checks or leave a
// component without a usable setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.DefaultAccessTTL <= 0 {
		return errors.New("JWT DefaultAccessTTL must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// Rate limit
	switch c.RateLimit.Backend {
	case RateLimitMemory, RateLimitRedis:
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimit.Backend)
	}
	if err := c.RateLimit.Policies.Validate(); err != nil {
		return err
	}
	for _, action := range []rate.Action{rate.ActionLogin, rate.ActionRefresh} {
		if _, ok := c.RateLimit.Policies[action]; !ok {
			return fmt.Errorf("rate limit policy for %q is required", action)
		}
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Session
	if c.Session.SuspiciousWindow <= 0 || c.Session.SuspiciousCheckInterval <= 0 {
		return errors.New("Session suspicious window and interval must be > 0")
	}
	if c.Session.SuspiciousIssuedThreshold <= 0 {
		return errors.New("Session SuspiciousIssuedThreshold must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("Session SweepInterval must be > 0")
	}

	// Revocation
	if c.Revocation.DefaultTTL <= 0 {
		return errors.New("Revocation DefaultTTL must be > 0")
	}
	if c.Revocation.SweepInterval <= 0 {
		return errors.New("Revocation SweepInterval must be > 0")
	}

	if c.TenantCache.TTL <= 0 {
		return errors.New("TenantCache TTL must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}
