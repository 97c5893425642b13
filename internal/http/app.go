package http

import (
	"context"
	"net/http"

	"coverage_backend/internal/events"
	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BreakerReporter reports per-provider circuit breaker states so the health
// endpoint can surface upstream degradation without failing readiness.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration.
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping).
	Health HealthChecker
	// Breakers is optional; when set, /health includes provider breaker states.
	Breakers BreakerReporter
	// Metrics is the Prometheus scrape handler, mounted at /metrics.
	Metrics http.Handler
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
