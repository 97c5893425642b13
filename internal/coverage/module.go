// Package coverage is the eligibility bounded context: coverage areas of
// several kinds, the resources that serve them, and a point-in-coverage
// resolver that ranks matches by specificity and proximity.
package coverage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"coverage_backend/internal/coverage/handler"
	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/coverage/service"
	"coverage_backend/internal/coverage/spatial"
	"coverage_backend/internal/events"
	"coverage_backend/internal/geocoding/matcher"
	apphttp "coverage_backend/internal/http"
	"coverage_backend/internal/metrics"
	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
	"coverage_backend/platform/validator"
)

// Module is the coverage bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the coverage module. The spatial index
// starts empty; call Init once the database is reachable to load it.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.ResolverConfig,
	bus events.Bus,
	collector *metrics.Collector,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)

	var index *spatial.Index
	if cfg.IsSpatialEnabled() {
		index = spatial.NewIndex(cfg.GetSpatialIndexResolution())
	}

	svc := service.New(repo, index, cfg, nil, bus, collector, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "coverage"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Init builds the spatial index from the stored area set.
func (m *Module) Init(ctx context.Context) error {
	return m.service.RebuildIndex(ctx)
}

// AreaSource adapts the coverage service to the geocoding text matcher,
// exposing administrative area centers as match targets.
func (m *Module) AreaSource() matcher.AreaSource {
	return areaSource{svc: m.service}
}

type areaSource struct {
	svc *service.Service
}

func (a areaSource) NamedCenters(ctx context.Context) ([]matcher.NamedCenter, error) {
	centers, err := a.svc.NamedCenters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]matcher.NamedCenter, 0, len(centers))
	for _, c := range centers {
		out = append(out, matcher.NamedCenter{
			Name:      c.Name,
			StateCode: c.StateCode,
			Center:    c.Center,
		})
	}
	return out, nil
}

// RegisterRoutes mounts coverage routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/coverage")
	group.GET("/resolve", m.handler.Resolve)
	group.GET("/eligibility", m.handler.CheckEligibility)
	group.GET("/search", m.handler.SearchByCity)
	ctx.V1.GET("/resources/:id/distance", m.handler.Distance)

	admin := ctx.Admin.Group("/coverage")
	admin.POST("/areas", m.handler.CreateArea)
	admin.GET("/areas", m.handler.ListAreas)
	admin.GET("/areas/:id", m.handler.GetArea)
	admin.PUT("/areas/:id", m.handler.UpdateArea)
	admin.DELETE("/areas/:id", m.handler.DeleteArea)

	admin.POST("/resources", m.handler.CreateResource)
	admin.GET("/resources", m.handler.ListResources)
	admin.GET("/resources/:id", m.handler.GetResource)
	admin.PUT("/resources/:id", m.handler.UpdateResource)
	admin.DELETE("/resources/:id", m.handler.DeleteResource)

	admin.POST("/resources/:id/areas", m.handler.LinkCoverage)
	admin.GET("/resources/:id/areas", m.handler.ListCoverageForResource)
	admin.DELETE("/resources/:id/areas/:areaId", m.handler.UnlinkCoverage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
