package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/internal/config"
	"github.com/MrEthical07/invauth/internal/obs"
	"github.com/MrEthical07/invauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    cfg.App.Name,
		Env:    cfg.App.Env,
		Ver:    cfg.App.Version,
	})
}

func initDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.Store, error) {
	return postgres.Open(ctx, cfg.DB.AsPostgresConfig(), logger)
}

// initRedis returns nil when no address is configured.
func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// initAuditSink fans events out to the log and, when brokers are configured, to
// Kafka. The returned func closes the Kafka writer.
func initAuditSink(cfg *config.Config, logger *zap.Logger) (invauth.AuditSink, func()) {
	var sinks invauth.MultiSink
	if cfg.Audit.Log {
		sinks = append(sinks, invauth.NewZapSink(logger))
	}
	kafka := invauth.NewKafkaSink(invauth.KafkaSinkConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, logger)
	if kafka != nil {
		sinks = append(sinks, kafka)
		logger.Info("audit events published to kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	closeFn := func() {
		if kafka == nil {
			return
		}
		if err := kafka.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}
	if len(sinks) == 0 {
		return nil, closeFn
	}
	return sinks, closeFn
}

func initEngine(cfg *config.Config, ecfg invauth.Config, db *postgres.Store, rdb *redis.Client, sink invauth.AuditSink, logger *zap.Logger) (*invauth.Engine, error) {
	b := invauth.New().
		WithConfig(ecfg).
		WithStore(db).
		WithLogger(logger)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	if sink != nil && cfg.Audit.Enabled {
		b = b.WithAuditSink(sink)
	}
	return b.Build()
}
