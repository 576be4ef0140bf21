package config

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/invauth/store/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DB struct {
	DSN               string        `mapstructure:"dsn"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

func (d DB) AsPostgresConfig() postgres.Config {
	return postgres.Config{
		DSN:               d.DSN,
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		MaxConnIdleTime:   d.MaxConnIdleTime,
		HealthCheckPeriod: d.HealthCheckPeriod,
		QueryTimeout:      d.QueryTimeout,
	}
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Kafka struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type OTEL struct {
	Enable         bool          `mapstructure:"enable"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	ServiceName    string        `mapstructure:"service_name"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

type JWT struct {
	SigningMethod    string        `mapstructure:"signing_method"`
	PrivateKeyFile   string        `mapstructure:"private_key_file"`
	PublicKeyFile    string        `mapstructure:"public_key_file"`
	Secret           string        `mapstructure:"secret"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	KeyID            string        `mapstructure:"key_id"`
	DefaultAccessTTL time.Duration `mapstructure:"default_access_ttl"`
	Leeway           time.Duration `mapstructure:"leeway"`
	MaxFutureIAT     time.Duration `mapstructure:"max_future_iat"`
}

type Cookie struct {
	Name     string `mapstructure:"name"`
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

func (c Cookie) sameSite() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

type Refresh struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RatePolicy struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

type RateLimit struct {
	Backend       string        `mapstructure:"backend"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Login         RatePolicy    `mapstructure:"login"`
	PasswordReset RatePolicy    `mapstructure:"password_reset"`
	Registration  RatePolicy    `mapstructure:"registration"`
	Refresh       RatePolicy    `mapstructure:"refresh"`
}

type Session struct {
	SuspiciousWindow          time.Duration `mapstructure:"suspicious_window"`
	SuspiciousIssuedThreshold int           `mapstructure:"suspicious_issued_threshold"`
	SuspiciousCheckInterval   time.Duration `mapstructure:"suspicious_check_interval"`
	SweepInterval             time.Duration `mapstructure:"sweep_interval"`
	AsyncSignal               bool          `mapstructure:"async_signal"`
}

type Revocation struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type TenantCache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
	// Log mirrors events into the service log.
	Log bool `mapstructure:"log"`
}

type Metrics struct {
	Enabled           bool `mapstructure:"enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

// Config is the invauthd server configuration.
type Config struct {
	App         App         `mapstructure:"app"`
	Server      Server      `mapstructure:"server"`
	Log         Log         `mapstructure:"log"`
	DB          DB          `mapstructure:"db"`
	Redis       Redis       `mapstructure:"redis"`
	Kafka       Kafka       `mapstructure:"kafka"`
	OTEL        OTEL        `mapstructure:"otel"`
	JWT         JWT         `mapstructure:"jwt"`
	Cookie      Cookie      `mapstructure:"cookie"`
	Refresh     Refresh     `mapstructure:"refresh"`
	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	Session     Session     `mapstructure:"session"`
	Revocation  Revocation  `mapstructure:"revocation"`
	TenantCache TenantCache `mapstructure:"tenant_cache"`
	Audit       Audit       `mapstructure:"audit"`
	Metrics     Metrics     `mapstructure:"metrics"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
