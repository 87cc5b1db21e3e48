package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hszk-dev/vidproxy/internal/config"
	"github.com/hszk-dev/vidproxy/internal/domain/model"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/postgres"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if !cfg.Database.Enabled() || !cfg.RabbitMQ.Enabled() {
		return fmt.Errorf("eventworker requires both POSTGRES_HOST and RABBITMQ_HOST to be set")
	}

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	events := postgres.NewEventRepository(pgClient.Pool())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting event worker, consuming playback events")
		err := queueClient.ConsumeEvents(ctx, func(event model.PlaybackEvent) error {
			wg.Add(1)
			defer wg.Done()

			if err := events.Insert(ctx, event); err != nil {
				metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TablePlaybackEvents).Inc()
				logger.Error("failed to persist playback event",
					slog.String("event_id", event.ID.String()),
					slog.String("kind", event.Kind),
					slog.String("error", err.Error()),
				)
				return err
			}

			metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TablePlaybackEvents).Inc()
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down event worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight events persisted")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some events may not have been persisted")
	}

	logger.Info("event worker stopped")
	return nil
}
