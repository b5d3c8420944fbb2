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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/saccogov/internal/adapter/http"
	"github.com/iho/saccogov/internal/adapter/http/handler"
	"github.com/iho/saccogov/internal/adapter/http/middleware"
	"github.com/iho/saccogov/internal/adapter/repository/memory"
	redisRepo "github.com/iho/saccogov/internal/adapter/repository/redis"
	"github.com/iho/saccogov/internal/infrastructure/config"
	"github.com/iho/saccogov/internal/infrastructure/eventpublisher"
	"github.com/iho/saccogov/internal/infrastructure/logger"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/infrastructure/postgres"
	"github.com/iho/saccogov/internal/infrastructure/redis"
)

// idleVisitorTimeout is how long a rate limiter bucket survives without traffic.
const idleVisitorTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Install(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		repos  repositories
		checks []handler.HealthCheck
	)

	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		log.Info().Msg("connected to postgres")

		repos = postgresRepositories(pool, cfg.DatabaseLockTimeout, m)
		checks = append(checks, postgresHealthCheck(pool))
	case config.StorageDriverMemory:
		log.Warn().Msg("using in-memory storage, state is lost on restart")
		repos = memoryRepositories(memory.NewStore())
	}

	// Redis is only dialled for the distributed lock; idempotency and the
	// mapping cache ride on the same connection.
	var redisClient *goredis.Client
	if cfg.LockDriver == config.LockDriverRedis {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		log.Info().Msg("connected to redis")

		redisClient = client
		checks = append(checks, redisHealthCheck(client))
		cached := redisRepo.NewCachedGLMappingRepository(
			repos.mappings, redisRepo.NewCache(client, redisRepo.GLMappingCacheNamespace), cfg.GLMappingCacheTTL, m,
		)
		if err := cached.InvalidateAll(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush gl mapping cache")
		}
		repos.mappings = cached
	}

	locker, err := chooseLocker(cfg, redisClient)
	if err != nil {
		return err
	}
	authMiddleware, err := chooseAuth(cfg, m)
	if err != nil {
		return err
	}

	h := buildHandlers(repos, locker, cfg.Policy(), m)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)

	routerCfg := httpAdapter.RouterConfig{
		LoanHandler:       h.loans,
		GuarantorHandler:  h.guarantors,
		VotingHandler:     h.voting,
		AllocationHandler: h.allocations,
		JournalHandler:    h.journal,
		HealthHandler:     handler.NewHealthHandler(checks...),
		AuthHandler:       handler.NewAuthHandler(),
		Auth:              authMiddleware,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		RateLimiter:       rateLimiter,
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:            log,
	}
	if redisClient != nil {
		routerCfg.IdempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: repos.outbox,
		Publisher:  eventpublisher.NewLogPublisher(log),
		Logger:     &log,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := publisher.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				rateLimiter.CleanupLimiters(idleVisitorTimeout)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
