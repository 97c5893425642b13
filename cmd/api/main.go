package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"coverage_backend/internal/coverage"
	"coverage_backend/internal/events"
	"coverage_backend/internal/geocoding"
	apphttp "coverage_backend/internal/http"
	"coverage_backend/internal/http/router"
	"coverage_backend/internal/metrics"
	"coverage_backend/internal/scheduler"
	"coverage_backend/migrations"
	"coverage_backend/platform/config"
	"coverage_backend/platform/db"
	"coverage_backend/platform/logger"
	"coverage_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")

		if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
			p, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			pool = p
			return nil
		}); err != nil {
			log.Error("failed to connect to database", "error", err)
			panic("failed to connect to database: " + err.Error())
		}
		defer pool.Close()
		log.Info("database connection established")
	} else {
		log.Warn("DATABASE_URL not configured; running with the in-memory cache and no coverage data")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	collector := metrics.NewCollector(prometheus.NewRegistry())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	coverageModule := coverage.NewModule(pool, cfg, eventBus, collector, val, log)
	if pool != nil {
		if err := coverageModule.Init(ctx); err != nil {
			log.Error("failed to build spatial index", "error", err)
			panic("failed to build spatial index: " + err.Error())
		}
		log.Info("spatial index built")
	}

	geocodingModule := geocoding.NewModule(pool, cfg, coverageModule.AreaSource(), eventBus, collector, val, log)

	// Without a scheduler deployment the API sweeps its own cache.
	if cfg.RedisURL == "" {
		sweeper := scheduler.NewLocalSweeper(cfg, geocodingModule, log)
		go sweeper.Run(ctx)
		log.Info("in-process cache sweeper started", "interval", cfg.CacheSweepInterval)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	var health apphttp.HealthChecker
	if pool != nil {
		health = db.NewPoolAdapter(pool)
	}

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		Breakers: geocodingModule.Service(),
		Metrics:  collector.Handler(),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			coverageModule,
			geocodingModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
