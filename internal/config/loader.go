package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads an optional YAML file at path, then a .env file in the working
// directory, then the process environment. Environment keys are the config keys
// upper-cased with dots replaced by underscores, e.g. JWT_ISSUER.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "invauthd")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9100")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.write_timeout", "5s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "invauthd")
	v.SetDefault("otel.export_interval", "15s")

	v.SetDefault("jwt.signing_method", "ed25519")
	v.SetDefault("jwt.private_key_file", "")
	v.SetDefault("jwt.public_key_file", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "invauth")
	v.SetDefault("jwt.audience", "inventory-api")
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("jwt.default_access_ttl", "15m")
	v.SetDefault("jwt.leeway", "30s")
	v.SetDefault("jwt.max_future_iat", "10m")

	v.SetDefault("cookie.name", "access_token")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.same_site", "strict")

	v.SetDefault("refresh.ttl", "168h")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", "5m")
	v.SetDefault("rate_limit.login.max_attempts", 5)
	v.SetDefault("rate_limit.login.window", "15m")
	v.SetDefault("rate_limit.login.block_duration", "30m")
	v.SetDefault("rate_limit.password_reset.max_attempts", 3)
	v.SetDefault("rate_limit.password_reset.window", "1h")
	v.SetDefault("rate_limit.password_reset.block_duration", "2h")
	v.SetDefault("rate_limit.registration.max_attempts", 3)
	v.SetDefault("rate_limit.registration.window", "1h")
	v.SetDefault("rate_limit.registration.block_duration", "2h")
	v.SetDefault("rate_limit.refresh.max_attempts", 30)
	v.SetDefault("rate_limit.refresh.window", "1m")
	v.SetDefault("rate_limit.refresh.block_duration", "5m")

	v.SetDefault("session.suspicious_window", "1h")
	v.SetDefault("session.suspicious_issued_threshold", 5)
	v.SetDefault("session.suspicious_check_interval", "1m")
	v.SetDefault("session.sweep_interval", "5m")
	v.SetDefault("session.async_signal", true)

	v.SetDefault("revocation.default_ttl", "24h")
	v.SetDefault("revocation.sweep_interval", "1h")

	v.SetDefault("tenant_cache.ttl", "5m")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.drop_if_full", true)
	v.SetDefault("audit.log", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency_histograms", true)
}

func (c *Config) check() error {
	if c.DB.DSN == "" {
		return ErrConfig("db.dsn is required")
	}
	switch strings.ToLower(c.RateLimit.Backend) {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return ErrConfig("redis.addr is required for the redis rate limit backend")
		}
	default:
		return ErrConfig(fmt.Sprintf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	return nil
}
