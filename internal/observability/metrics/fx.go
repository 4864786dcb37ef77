package metrics

import (
	"context"
	"net/http"

	"github.com/basketlabs/shelfscout/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability.metrics",
	fx.Provide(func(cfg config.Config) *IngestMetrics {
		return IngestWithConfig(Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) {
		if cfg.MetricsAddr == "" {
			return
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting metrics listener", zap.String("addr", cfg.MetricsAddr))
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics listener failed", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
