package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/app"
	"wb_reviews/internal/bootstrap"
	"wb_reviews/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("sink", cfg.NotifySink).
		Dur("interval", cfg.CheckInterval).
		Dur("lookback", cfg.Lookback).
		Int("workers", cfg.Workers).
		Bool("redeliver_pending", cfg.RedeliverPending).
		Msg("watcher starting")

	observability.Serve(cfg.MetricsAddr)

	st, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	client, err := bootstrap.NewGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize marketplace client")
	}

	sink, closeSink, err := bootstrap.NewSink(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("notification sink init failed")
	}
	defer closeSink()

	cache, closeCache := bootstrap.NewCache(ctx, cfg)
	defer closeCache()

	rec := app.NewReconcileService(st, client, sink, cache, app.ReconcileOptions{
		Lookback:         cfg.Lookback,
		Workers:          cfg.Workers,
		RedeliverPending: cfg.RedeliverPending,
	})

	err = app.NewScheduler(rec, cfg.CheckInterval).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("scheduler stopped")
	}
	log.Info().Msg("watcher stopped")
}
