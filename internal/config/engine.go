package config

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/MrEthical07/invauth"
)

// ToEngineConfig maps the server configuration onto the engine configuration and
// loads signing keys from disk. The result still goes through invauth's own
// validation in Build.
func (c *Config) ToEngineConfig() (invauth.Config, error) {
	out := invauth.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.KeyID = c.JWT.KeyID
	out.JWT.DefaultAccessTTL = c.JWT.DefaultAccessTTL
	out.JWT.Leeway = c.JWT.Leeway
	out.JWT.MaxFutureIAT = c.JWT.MaxFutureIAT

	switch out.JWT.SigningMethod {
	case "hs256":
		if c.JWT.Secret == "" {
			return invauth.Config{}, ErrConfig("jwt.secret is required for hs256")
		}
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	default:
		priv, pub, err := loadEd25519(c.JWT.PrivateKeyFile, c.JWT.PublicKeyFile)
		if err != nil {
			return invauth.Config{}, err
		}
		out.JWT.PrivateKey = priv
		out.JWT.PublicKey = pub
	}

	out.Cookie = invauth.CookieConfig{
		Name:     c.Cookie.Name,
		Domain:   c.Cookie.Domain,
		Secure:   c.Cookie.Secure,
		SameSite: c.Cookie.sameSite(),
	}
	out.Refresh.TTL = c.Refresh.TTL

	out.RateLimit.Backend = invauth.RateLimitBackend(strings.ToLower(c.RateLimit.Backend))
	out.RateLimit.SweepInterval = c.RateLimit.SweepInterval
	out.RateLimit.Policies = invauth.RatePolicies{
		invauth.ActionLogin:         c.RateLimit.Login.policy(),
		invauth.ActionPasswordReset: c.RateLimit.PasswordReset.policy(),
		invauth.ActionRegistration:  c.RateLimit.Registration.policy(),
		invauth.ActionRefresh:       c.RateLimit.Refresh.policy(),
	}

	out.Session = invauth.SessionConfig{
		SuspiciousWindow:          c.Session.SuspiciousWindow,
		SuspiciousIssuedThreshold: c.Session.SuspiciousIssuedThreshold,
		SuspiciousCheckInterval:   c.Session.SuspiciousCheckInterval,
		SweepInterval:             c.Session.SweepInterval,
		AsyncSignal:               c.Session.AsyncSignal,
	}
	out.Revocation.DefaultTTL = c.Revocation.DefaultTTL
	out.Revocation.SweepInterval = c.Revocation.SweepInterval
	out.TenantCache.TTL = c.TenantCache.TTL
	out.Audit = invauth.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	out.Metrics = invauth.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}

	if err := out.Validate(); err != nil {
		return invauth.Config{}, fmt.Errorf("engine config: %w", err)
	}
	return out, nil
}

func (p RatePolicy) policy() invauth.RatePolicy {
	return invauth.RatePolicy{
		MaxAttempts:   p.MaxAttempts,
		Window:        p.Window,
		BlockDuration: p.BlockDuration,
	}
}

// loadEd25519 reads a PKCS#8 private key and an optional PKIX public key. Without
// a public key file the public half is derived from the private key.
func loadEd25519(privPath, pubPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if privPath == "" {
		return nil, nil, ErrConfig("jwt.private_key_file is required for ed25519")
	}
	block, err := readPEM(privPath)
	if err != nil {
		return nil, nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", privPath, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("%s: not an ed25519 private key", privPath)
	}
	derived := priv.Public().(ed25519.PublicKey)
	if pubPath == "" {
		return priv, derived, nil
	}

	block, err = readPEM(pubPath)
	if err != nil {
		return nil, nil, err
	}
	pk, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", pubPath, err)
	}
	pub, ok := pk.(ed25519.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%s: not an ed25519 public key", pubPath)
	}
	if !pub.Equal(derived) {
		return nil, nil, ErrConfig("jwt public key does not match the private key")
	}
	return priv, pub, nil
}

func readPEM(path string) (*pem.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	return block, nil
}
