package invauth

import (
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/invauth/internal/audit"
	"github.com/MrEthical07/invauth/internal/flows"
	"github.com/MrEthical07/invauth/internal/rate"
	"github.com/MrEthical07/invauth/jwt"
	"github.com/MrEthical07/invauth/password"
	"github.com/MrEthical07/invauth/refresh"
	"github.com/MrEthical07/invauth/revocation"
	"github.com/MrEthical07/invauth/session"
	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/tenant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. It is single-use: Build may be called once.
type Builder struct {
	config    Config
	store     store.Store
	redis     redis.UniversalClient
	logger    *zap.Logger
	auditSink AuditSink
	passwords PasswordVerifier
	now       func() time.Time

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the durable backend for credentials, revocations, users and tenants.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the client used when RateLimit.Backend is "redis".
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordVerifier replaces the default Argon2id/bcrypt verifier.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

// WithClock overrides the time source of every component. Tests use it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Background sweeps do
// not run until [Engine.Start].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if cfg.RateLimit.Backend == RateLimitRedis && b.redis == nil {
		return nil, errors.New("redis rate limit backend requires a redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config: cfg,
		store:  b.store,
		logger: logger.With(zap.String("component", "engine")),
		now:    now,
	}

	// -------- PASSWORDS --------
	engine.passwords = b.passwords
	if engine.passwords == nil {
		v, err := password.NewVerifier(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		engine.passwords = v
	}
	if d, ok := engine.passwords.(interface{ DummyHash() string }); ok {
		engine.dummyHash = d.DummyHash()
	}

	// -------- RATE LIMITER --------
	switch cfg.RateLimit.Backend {
	case RateLimitRedis:
		rl, err := rate.NewRedis(b.redis, rate.RedisConfig{Policies: cfg.RateLimit.Policies, Now: now}, logger)
		if err != nil {
			return nil, err
		}
		engine.limiter = rl
	default:
		rl, err := rate.NewMemory(rate.MemoryConfig{
			Policies:      cfg.RateLimit.Policies,
			SweepInterval: cfg.RateLimit.SweepInterval,
			Now:           now,
		}, logger)
		if err != nil {
			return nil, err
		}
		engine.limiter = rl
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.DefaultAccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	engine.jwt = jm

	// -------- STORES --------
	engine.revocations = revocation.New(b.store, revocation.Config{
		DefaultTTL:    cfg.Revocation.DefaultTTL,
		Leeway:        cfg.JWT.Leeway,
		SweepInterval: cfg.Revocation.SweepInterval,
		Now:           now,
	}, logger)
	engine.refresh = refresh.NewManager(b.store, engine.mintForRotation, refresh.Config{
		TTL:      cfg.Refresh.TTL,
		Now:      now,
		Sessions: engine.revocations,
	}, logger)
	engine.sessions = session.NewLimiter(b.store, engine.revocations, session.Config{
		SuspiciousWindow:          cfg.Session.SuspiciousWindow,
		SuspiciousIssuedThreshold: cfg.Session.SuspiciousIssuedThreshold,
		SuspiciousCheckInterval:   cfg.Session.SuspiciousCheckInterval,
		SweepInterval:             cfg.Session.SweepInterval,
		Now:                       now,
	}, logger)
	engine.tenants = tenant.NewCache(b.store, tenant.Config{TTL: cfg.TenantCache.TTL, Now: now}, logger)

	// -------- OBSERVABILITY --------
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
		engine.config.Audit.Enabled = true
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flow = flows.New(engine.flowDeps())

	b.built = true
	return engine, nil
}
