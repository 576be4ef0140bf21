// Command invauthd serves the token and session endpoints of the inventory
// backend over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/invauth/internal/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("INVAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	ecfg, err := cfg.ToEngineConfig()
	if err != nil {
		logger.Fatal("engine config", zap.Error(err))
	}
	logger.Info("starting invauthd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	db, err := initDB(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb, err := initRedis(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	sink, closeSink := initAuditSink(cfg, logger)
	defer closeSink()

	engine, err := initEngine(cfg, ecfg, db, rdb, sink, logger)
	if err != nil {
		logger.Fatal("engine init", zap.Error(err))
	}
	engine.Start(rootCtx)
	defer engine.Close()

	tel, err := initTelemetry(rootCtx, cfg, engine, db.Ping, logger)
	if err != nil {
		logger.Fatal("telemetry init", zap.Error(err))
	}

	httpSrv := buildHTTPServer(cfg, engine, ecfg.Cookie, logger)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	tel.shutdown(shCtx)
	logger.Info("bye")
}
