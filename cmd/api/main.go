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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/adapter/breaker"
	"github.com/user/fetch-service/internal/adapter/chromedp_transport"
	"github.com/user/fetch-service/internal/adapter/httptransport"
	"github.com/user/fetch-service/internal/adapter/identity"
	"github.com/user/fetch-service/internal/adapter/postgres"
	redis_adapter "github.com/user/fetch-service/internal/adapter/redis"
	"github.com/user/fetch-service/internal/adapter/robots"
	"github.com/user/fetch-service/internal/delivery/http/handler"
	"github.com/user/fetch-service/internal/delivery/http/router"
	"github.com/user/fetch-service/internal/ratelimit"
	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/internal/usecase"
	"github.com/user/fetch-service/pkg/config"
	"github.com/user/fetch-service/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// --- Configuration ---
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Database Connections ---
	dbpool, err := pgxpool.New(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, dbpool); err != nil {
		return err
	}
	log.Info("PostgreSQL connection pool established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("Redis connection established")

	// --- Repositories ---
	visitedRepo := redis_adapter.NewVisitedRepo(rdb)
	queueRepo := redis_adapter.NewQueueRepo(rdb)
	validatorRepo := redis_adapter.NewValidatorRepo(rdb)
	pageRepo := postgres.NewFetchedPageRepo(dbpool)
	failedURLRepo := postgres.NewFailedURLRepo(dbpool)

	// --- Fetch controller ---
	transport, closeTransport := newTransport(cfg, log)
	defer closeTransport()

	limiter, err := ratelimit.New(cfg.RateLimiter, cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		return err
	}
	opts := []usecase.ControllerOption{usecase.WithLogger(log)}
	if limiter != nil {
		opts = append(opts, usecase.WithLimiter(limiter))
	}
	if cfg.RobotsEnabled {
		// robots.txt is plain text, so it is always read over HTTP.
		opts = append(opts, usecase.WithRobots(robots.NewCache(httptransport.New(cfg.MaxBodyBytes), cfg.RobotsTTL, log)))
	}
	fetcher := usecase.NewFetchController(transport, cfg.RetryPolicy(), opts...)

	// --- Use Cases ---
	urlManager := usecase.NewURLManager(visitedRepo, queueRepo, pageRepo, failedURLRepo, cfg.DeduplicationTTL, log)
	worker := usecase.NewFetchWorker(queueRepo, pageRepo, failedURLRepo, validatorRepo, fetcher,
		identity.NewRotator(cfg.UserAgents, cfg.Proxies),
		usecase.FetchWorkerConfig{IdentityRetries: cfg.IdentityRetries, RetryCooldown: cfg.RetryCooldown},
		log,
	)
	pool := usecase.NewWorkerPool(worker, queueRepo, cfg.Workers, log)

	sweeper := usecase.NewRetrySweeper(failedURLRepo, queueRepo, cfg.RetrySweepBatch, log)
	sweepCron, err := sweeper.Start(ctx, cfg.RetrySweepSchedule)
	if err != nil {
		return err
	}
	defer func() { <-sweepCron.Stop().Done() }()

	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()
	log.Info("Fetch workers started", zap.Int("workers", cfg.Workers), zap.String("transport", cfg.Transport))

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(urlManager, map[string]handler.HealthCheck{
		"postgres": dbpool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		stop()
		<-poolDone
		return fmt.Errorf("listen on port %s: %w", cfg.ServerPort, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	<-poolDone
	log.Info("Server stopped")
	return nil
}

// newTransport builds the configured PageTransport and its cleanup.
func newTransport(cfg *config.Config, log *zap.Logger) (repository.PageTransport, func()) {
	var (
		transport repository.PageTransport
		closeFn   = func() {}
	)
	switch cfg.Transport {
	case "chromedp":
		ct := chromedp_transport.NewChromedpTransport(log)
		transport, closeFn = ct, ct.Close
	default:
		transport = httptransport.New(cfg.MaxBodyBytes)
	}
	if cfg.BreakerEnabled {
		transport = breaker.New(transport, breaker.DefaultSettings(), log)
	}
	return transport, closeFn
}
