package main

import (
	"context"
	"net/http"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/internal/config"
	"github.com/MrEthical07/invauth/internal/obs"
	otelexport "github.com/MrEthical07/invauth/metrics/export/otel"
	promexport "github.com/MrEthical07/invauth/metrics/export/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

type telemetry struct {
	metricsSrv *http.Server
	meters     *sdkmetric.MeterProvider
	exporter   *otelexport.Exporter
	logger     *zap.Logger
}

// initTelemetry starts the scrape server and, when enabled, OTLP push of the same
// counters.
func initTelemetry(ctx context.Context, cfg *config.Config, engine *invauth.Engine, health func(context.Context) error, logger *zap.Logger) (*telemetry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	t := &telemetry{logger: logger}

	mp, err := obs.NewMeterProvider(ctx, obs.OTELConfig{
		Enable:      cfg.OTEL.Enable,
		Endpoint:    cfg.OTEL.OTLPEndpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Interval:    cfg.OTEL.ExportInterval,
	})
	if err != nil {
		return nil, err
	}
	t.meters = mp
	if cfg.OTEL.Enable {
		exp, err := otelexport.NewExporter(mp.Meter("github.com/MrEthical07/invauth"), engine)
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, err
		}
		t.exporter = exp
		logger.Info("otlp metrics enabled", zap.String("endpoint", cfg.OTEL.OTLPEndpoint))
	}

	t.metricsSrv = obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, reg, health, logger)
	return t, nil
}

func (t *telemetry) shutdown(ctx context.Context) {
	if err := t.metricsSrv.Shutdown(ctx); err != nil {
		t.logger.Warn("metrics shutdown", zap.Error(err))
	}
	if err := t.exporter.Close(); err != nil {
		t.logger.Warn("otel exporter close", zap.Error(err))
	}
	if err := t.meters.Shutdown(ctx); err != nil {
		t.logger.Warn("meter provider shutdown", zap.Error(err))
	}
}
