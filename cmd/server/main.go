package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproxy/internal/api"
	"github.com/hszk-dev/vidproxy/internal/api/handler"
	"github.com/hszk-dev/vidproxy/internal/cachemap"
	"github.com/hszk-dev/vidproxy/internal/config"
	"github.com/hszk-dev/vidproxy/internal/domain/repository"
	"github.com/hszk-dev/vidproxy/internal/hls"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/queue"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/storage"
	"github.com/hszk-dev/vidproxy/internal/ratelimiter"
	"github.com/hszk-dev/vidproxy/internal/resolver"
	"github.com/hszk-dev/vidproxy/internal/upstream"
	"github.com/hszk-dev/vidproxy/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyArgs(os.Args[1:])

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// The cache/resolve/prefetch path has no optional dependencies: it
	// always runs. Everything below is ambient and individually no-ops
	// (with a logged warning) when its configuration is absent.
	cacheJSON := cachemap.New[any]()
	cacheData := cachemap.New[[]byte]()

	upstreamClient := upstream.NewClient(upstream.NewHTTPClient(), upstream.DefaultConfig(cfg.Upstream.PlayerURL))
	res := resolver.New(upstreamClient, cacheJSON)
	pipeline := hls.NewPipeline(cacheData, upstreamClient)
	playlists := hls.NewPlaylists(res, cacheData, upstreamClient, pipeline)

	var limiter *ratelimiter.Limiter
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("rate limiter enabled", slog.String("redis_addr", cfg.Redis.Addr))
		limiter = ratelimiter.New(redisClient, cfg.Upstream.RateLimitPerMinute, time.Minute)
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	var events *usecase.EventPublisher
	if cfg.RabbitMQ.Enabled() {
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		logger.Info("analytics queue enabled", slog.String("rabbitmq_host", cfg.RabbitMQ.Host))
		events = usecase.NewEventPublisher(queueClient, logger)
	} else {
		logger.Warn("RABBITMQ_HOST not set, playback analytics disabled")
		events = usecase.NewEventPublisher(nil, logger)
	}

	var objectStorage repository.ObjectStorage
	if cfg.MinIO.Enabled() {
		storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		logger.Info("static route backed by MinIO", slog.String("bucket", cfg.MinIO.Bucket))
		objectStorage = storageClient
	} else {
		logger.Warn("MINIO_ENDPOINT not set, static route falls back to PUBLIC_DIR")
	}

	handlers := handler.NewHandlers(res, playlists, upstreamClient, cfg.Upstream.BaseURL, events, objectStorage, cfg.Server.PublicPath, cfg.Server.PublicDir, logger)
	router := api.NewRouter(handlers, limiter, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
