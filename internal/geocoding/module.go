// Package geocoding is the location resolution bounded context: free-text
// queries resolve to coordinates through a TTL cache, a chain of external
// providers guarded by circuit breakers and retry, and an offline text
// fallback over known coverage area names.
package geocoding

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"coverage_backend/internal/events"
	"coverage_backend/internal/geocoding/cache"
	"coverage_backend/internal/geocoding/handler"
	"coverage_backend/internal/geocoding/matcher"
	"coverage_backend/internal/geocoding/provider"
	"coverage_backend/internal/geocoding/service"
	apphttp "coverage_backend/internal/http"
	"coverage_backend/internal/metrics"
	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
	"coverage_backend/platform/validator"
)

// Module is the geocoding bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   cache.Store
}

// NewModule creates and initializes the geocoding module. A nil pool wires
// the in-memory cache instead of Postgres, for deployments without a
// database. The area source feeding the offline fallback comes from the
// coverage context.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.GeocodingConfig,
	areas matcher.AreaSource,
	bus events.Bus,
	collector *metrics.Collector,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	var store cache.Store
	if pool != nil {
		store = cache.NewPostgres(pool)
	} else {
		store = cache.NewMemory()
	}

	providers := []provider.Provider{
		provider.NewNominatim(provider.NominatimConfig{
			BaseURL:      cfg.GetNominatimBaseURL(),
			UserAgent:    cfg.GetNominatimUserAgent(),
			CountryCodes: cfg.GetNominatimCountryCodes(),
		}, log),
	}
	if cfg.IsCensusEnabled() {
		providers = append(providers, provider.NewCensus(cfg.GetCensusBaseURL(), log))
	}

	svc := service.New(cfg, store, providers, service.Fallback(matcher.New(areas)), bus, collector, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		store:   store,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "geocoding"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Store returns the cache store for the scheduler's sweep worker.
func (m *Module) Store() cache.Store {
	return m.store
}

// CleanupExpired runs one cache sweep pass, for the scheduler worker.
func (m *Module) CleanupExpired(ctx context.Context, batchSize int) (int64, error) {
	return m.service.CleanupExpired(ctx, batchSize)
}

// CleanupOlderThan purges entries created before the cutoff.
func (m *Module) CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return m.service.CleanupOlderThan(ctx, cutoff, batchSize)
}

// RegisterRoutes mounts geocoding routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/geocode", m.handler.Geocode)

	adminGroup := ctx.Admin.Group("/cache")
	adminGroup.POST("/cleanup-expired", m.handler.CleanupCache)
	adminGroup.POST("/cleanup-older-than", m.handler.PurgeCache)
	adminGroup.GET("/stats", m.handler.CacheStats)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
