// Package app собирает сервис из зависимостей и управляет его жизненным
// циклом: два HTTP-сервера (публичное API и метрики), фоновый sweeper и
// graceful shutdown по отмене контекста.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/lms/internal/health"
	"github.com/vladislavdragonenkov/lms/internal/service/sweeper"
	"github.com/vladislavdragonenkov/lms/internal/version"
)

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(cfg, logger)
	if err != nil {
		return err
	}

	// HTTP Health checks
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("order-store", healthcheck.NewStoreChecker(deps.Store))
	if cfg.Broker != BrokerLocal && cfg.Broker != "" {
		healthHandler.RegisterChecker("broadcast-transport", healthcheck.NewDialerChecker(deps.Dialer))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Фоновая очистка устаревших заказов из ledger.
	sweep := sweeper.New(
		deps.Store,
		sweeper.WithLogger(logger.WithField("layer", "sweeper")),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithRetention(cfg.SweepRetention),
	)
	go sweep.Run(ctx)

	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewAPIHandler(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
