package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "erp-inventory/internal/adapters/web"
	"erp-inventory/internal/app"
	"erp-inventory/internal/config"
	"erp-inventory/internal/db"
	"erp-inventory/internal/logger"
	"erp-inventory/internal/metrics"
	"erp-inventory/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.ServiceName, cfg.LogLevel, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Logger.Fatal().Err(err).Msg("metrics")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	svc := app.NewPostgresAppService(pool, app.Options{
		LockTimeout:           cfg.LockTimeout,
		AllowNegativeStock:    cfg.AllowNegativeStock,
		HorizonDays:           cfg.ATPHorizonDays,
		MaxSplitShipments:     cfg.MaxSplitShipments,
		MaxFulfillmentOptions: cfg.MaxFulfillmentOptions,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           webAdapter.NewHandler(svc, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("server")
		}
	case <-ctx.Done():
	}

	logger.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("server shutdown")
	}
}
