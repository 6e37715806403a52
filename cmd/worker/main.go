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

	"github.com/cassiomorais/cashdesk/internal/bootstrap"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	infraRedis "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/cassiomorais/cashdesk/internal/repository/postgres"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/cassiomorais/cashdesk/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "cashdesk-worker", "cashdesk_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	cfg := app.Config
	g, gCtx := errgroup.WithContext(ctx)
	jobs := 0

	// 1. History invalidation from the event stream. Only useful when the
	// API replicas share the Redis cache.
	if app.Redis != nil && cfg.Cache.UseRedis {
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			cfg.Redis.EventStream,
			cfg.Worker.ConsumerGroup,
			cfg.InstanceID,
			cfg.Worker.BatchSize,
			cfg.Worker.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		}
		settings := service.NewSettingsService(app.API, app.Cache, cfg.Wizard, cfg.Cache, app.Metrics)

		app.Logger.Info().
			Str("stream", cfg.Redis.EventStream).
			Str("group", cfg.Worker.ConsumerGroup).
			Str("consumer", cfg.InstanceID).
			Msg("Event consumer started")
		g.Go(func() error {
			return worker.RunEvents(gCtx, app.Logger, consumer, settings, app.Metrics)
		})
		jobs++
	}

	// 2. Expiry sweep for the Postgres draft store; Redis expires keys itself.
	if cfg.Storage.Driver == config.StoragePostgres {
		repo, ok := app.Drafts.(*postgres.DraftRepository)
		if ok {
			app.Logger.Info().Dur("interval", cfg.Worker.SweepInterval).Msg("Expiry sweeper started")
			g.Go(func() error {
				return worker.RunSweeper(gCtx, app.Logger, repo, cfg.Worker.SweepInterval, app.Metrics)
			})
			jobs++
		}
	}

	if jobs == 0 {
		app.Logger.Warn().Msg("Nothing to do: enable cache.use_redis or the postgres storage driver")
		return
	}

	// 3. Metrics endpoint.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
