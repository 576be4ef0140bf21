package jwt

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the single algorithm the manager signs and accepts.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Claim names on the wire.
const (
	ClaimSubject    = "sub"
	ClaimEmail      = "email"
	ClaimRole       = "rol"
	ClaimTenantID   = "empresaId"
	ClaimTokenID    = "jti"
	ClaimSessionID  = "sessionId"
	ClaimRefreshJTI = "refreshJti"
)

var (
	// ErrMalformedToken is returned when the token text or its claims cannot be
	// interpreted.
	ErrMalformedToken = errors.New("jwt: malformed token")
	// ErrInvalidToken is returned when a decodable token fails signature, algorithm,
	// issuer, audience or time checks.
	ErrInvalidToken = errors.New("jwt: invalid token")
)

// Config configures a Manager. PrivateKey is the shared secret for HS256.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the typed view of a verified access token.
type AccessClaims struct {
	UserID     int64
	Email      string
	Role       string
	TenantID   *int64
	TokenID    string
	SessionID  string
	RefreshJTI string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// AccessInput describes a token to mint. A zero TTL uses Config.AccessTTL.
type AccessInput struct {
	UserID     int64
	Email      string
	Role       string
	TenantID   *int64
	SessionID  string
	RefreshJTI string
	TTL        time.Duration
}

// NewManager validates cfg and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs a new access token and returns it with its claims.
func (j *Manager) CreateAccess(in AccessInput) (string, AccessClaims, error) {
	ttl := in.TTL
	if ttl <= 0 {
		ttl = j.config.AccessTTL
	}
	now := j.config.Now().Truncate(time.Second)

	out := AccessClaims{
		UserID:     in.UserID,
		Email:      in.Email,
		Role:       in.Role,
		TenantID:   in.TenantID,
		TokenID:    uuid.NewString(),
		SessionID:  in.SessionID,
		RefreshJTI: in.RefreshJTI,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}

	claims := jwt.MapClaims{
		ClaimSubject: strconv.FormatInt(in.UserID, 10),
		ClaimEmail:   in.Email,
		ClaimRole:    in.Role,
		ClaimTokenID: out.TokenID,
		"iat":        now.Unix(),
		"exp":        out.ExpiresAt.Unix(),
	}
	if j.config.Issuer != "" {
		claims["iss"] = j.config.Issuer
	}
	if j.config.Audience != "" {
		claims["aud"] = j.config.Audience
	}
	if in.TenantID != nil {
		claims[ClaimTenantID] = *in.TenantID
	}
	if in.SessionID != "" {
		claims[ClaimSessionID] = in.SessionID
	}
	if in.RefreshJTI != "" {
		claims[ClaimRefreshJTI] = in.RefreshJTI
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", AccessClaims{}, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return signed, out, nil
}

// ParseAccess verifies tokenStr and returns its claims. Errors wrap ErrMalformedToken
// or ErrInvalidToken.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, jwt.MapClaims{}, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := shape(mc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if j.config.MaxFutureIAT > 0 && claims.IssuedAt.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidToken)
	}
	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}
	return j.getVerifyKey()
}

// shape checks custom claim types. The registered time claims were already checked by
// the parser.
func shape(mc jwt.MapClaims) (*AccessClaims, error) {
	sub, err := requiredString(mc, ClaimSubject)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("claim %q is not an integer id", ClaimSubject)
	}
	email, err := requiredString(mc, ClaimEmail)
	if err != nil {
		return nil, err
	}
	rol, err := requiredString(mc, ClaimRole)
	if err != nil {
		return nil, err
	}
	out := &AccessClaims{UserID: uid, Email: email, Role: rol}

	if out.TokenID, err = optionalString(mc, ClaimTokenID); err != nil {
		return nil, err
	}

	if out.SessionID, err = optionalString(mc, ClaimSessionID); err != nil {
		return nil, err
	}
	if out.RefreshJTI, err = optionalString(mc, ClaimRefreshJTI); err != nil {
		return nil, err
	}

	if raw, ok := mc[ClaimTenantID]; ok && raw != nil {
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("claim %q must be an integer", ClaimTenantID)
		}
		tid, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("claim %q must be an integer", ClaimTenantID)
		}
		out.TenantID = &tid
	}

	iat, err := mc.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, errors.New("claim \"iat\" missing or invalid")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("claim \"exp\" missing or invalid")
	}
	out.IssuedAt, out.ExpiresAt = iat.Time, exp.Time
	return out, nil
}

func requiredString(mc jwt.MapClaims, name string) (string, error) {
	raw, ok := mc[name]
	if !ok {
		return "", fmt.Errorf("claim %q missing", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("claim %q must be a string", name)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("claim %q is empty", name)
	}
	return s, nil
}

func optionalString(mc jwt.MapClaims, name string) (string, error) {
	raw, ok := mc[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("claim %q must be a string", name)
	}
	return s, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 private key not configured")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
