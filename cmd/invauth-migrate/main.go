// Command invauth-migrate applies the embedded security schema migrations.
package main

import (
	"flag"
	"os"

	"github.com/MrEthical07/invauth/internal/config"
	"github.com/MrEthical07/invauth/internal/obs"
	"github.com/MrEthical07/invauth/store/postgres"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	configPath := flag.String("config", os.Getenv("INVAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, App: "invauth-migrate", Env: cfg.App.Env, Ver: cfg.App.Version})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := postgres.Migrate(cfg.DB.DSN, *direction); err != nil {
		logger.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", *direction))
}
