// Package service implements the coverage resolver: given coordinates it
// finds the coverage areas containing the point, joins to eligible
// resources, and ranks them by specificity then proximity.
package service

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/coverage/spatial"
	"coverage_backend/internal/events"
	"coverage_backend/internal/geo"
	"coverage_backend/internal/metrics"
	"coverage_backend/platform/apperr"
	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
)

// Match is one ranked resolver result.
type Match struct {
	Resource         repository.Resource `json:"resource"`
	SpecificityScore int                 `json:"specificityScore"`
	DistanceMiles    float64             `json:"distanceMiles"`
	AreaID           uuid.UUID           `json:"areaId"`
	AreaKind         repository.Kind     `json:"areaKind"`
	AreaName         string              `json:"areaName"`
}

// EligibilityPredicate decides whether a resource may appear in results.
// Publication and visibility rules live outside this context.
type EligibilityPredicate func(repository.Resource) bool

// PublishedOnly is the default predicate.
func PublishedOnly(r repository.Resource) bool { return r.Published }

// Service is the coverage bounded context service layer.
type Service struct {
	repo     repository.Repository
	index    *spatial.Index
	cfg      config.ResolverConfig
	eligible EligibilityPredicate
	bus      events.Bus
	metrics  *metrics.Collector
	log      *logger.Logger
}

// New creates the coverage service. A nil predicate admits published
// resources only.
func New(
	repo repository.Repository,
	index *spatial.Index,
	cfg config.ResolverConfig,
	eligible EligibilityPredicate,
	bus events.Bus,
	collector *metrics.Collector,
	log *logger.Logger,
) *Service {
	if eligible == nil {
		eligible = PublishedOnly
	}
	return &Service{
		repo:     repo,
		index:    index,
		cfg:      cfg,
		eligible: eligible,
		bus:      bus,
		metrics:  collector,
		log:      log,
	}
}

// RebuildIndex refreshes the spatial index from the current area set. It is
// called at startup and after every area mutation.
func (s *Service) RebuildIndex(ctx context.Context) error {
	if s.index == nil || !s.cfg.IsSpatialEnabled() {
		return nil
	}
	areas, err := s.repo.ListAreas(ctx, nil)
	if err != nil {
		return err
	}
	return s.index.Rebuild(areas)
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 &&
		lng >= -180 && lng <= 180 &&
		!(lat == 0 && lng == 0)
}

// EffectiveRadius returns the requested search radius, or the configured
// default when the caller supplied none. The radius is presentation context
// echoed back to the caller; a containment match is never excluded by it.
func (s *Service) EffectiveRadius(requested float64) float64 {
	if requested <= 0 {
		return s.cfg.GetDefaultRadiusMiles()
	}
	return requested
}

// Resolve finds the resources whose coverage contains the point, ranked by
// specificity (radius/polygon > city > county > state > nationwide), then
// by distance to the matched area's representative point, then by name. A
// resource covered by several matching areas appears once, under its best
// match.
//
// When the spatial capability is disabled the resolver degrades to an empty
// result instead of failing; callers with city/state context can use
// ResolveByCityState instead.
func (s *Service) Resolve(ctx context.Context, lat, lng float64) ([]Match, error) {
	if !validCoordinates(lat, lng) {
		return nil, apperr.Validation("invalid coordinates")
	}

	if !s.cfg.IsSpatialEnabled() {
		s.countResolve("degraded", 0)
		return []Match{}, nil
	}

	point := geo.Point{Lat: lat, Lng: lng}
	containing, err := s.containingAreas(ctx, point)
	if err != nil {
		// Spatial faults degrade rather than propagate; the caller still
		// gets an answer, just an empty one.
		s.log.Error("coverage resolution degraded", "error", err)
		s.countResolve("error_degraded", 0)
		return []Match{}, nil
	}
	if len(containing) == 0 {
		s.countResolve("empty", 0)
		return []Match{}, nil
	}

	areaIDs := make([]uuid.UUID, 0, len(containing))
	for id := range containing {
		areaIDs = append(areaIDs, id)
	}
	links, err := s.repo.ResourcesForAreas(ctx, areaIDs)
	if err != nil {
		s.log.Error("coverage resolution degraded", "error", err)
		s.countResolve("error_degraded", 0)
		return []Match{}, nil
	}

	matches := s.rank(point, containing, links)
	s.countResolve("ok", len(matches))
	return matches, nil
}

func (s *Service) countResolve(outcome string, matches int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ResolveRequests.WithLabelValues(outcome).Inc()
	if outcome == "ok" || outcome == "empty" {
		s.metrics.ResolveMatches.Observe(float64(matches))
	}
}

// containingAreas runs the kind-dispatched containment test over the
// candidate set.
func (s *Service) containingAreas(ctx context.Context, p geo.Point) (map[uuid.UUID]*repository.CoverageArea, error) {
	areas, err := s.repo.ListAreas(ctx, nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*repository.CoverageArea, len(areas))
	for i := range areas {
		byID[areas[i].ID] = &areas[i]
	}

	candidates := areas
	if s.index != nil {
		if ids, ok := s.index.Candidates(p); ok {
			candidates = candidates[:0:0]
			for _, id := range ids {
				if a, found := byID[id]; found {
					candidates = append(candidates, *a)
				}
			}
		}
	}

	containing := make(map[uuid.UUID]*repository.CoverageArea)
	for i := range candidates {
		a := &candidates[i]
		if a.Contains(p) {
			containing[a.ID] = a
		}
	}
	return containing, nil
}

// rank joins links to their areas, applies the eligibility predicate,
// collapses each resource to its single best match, and sorts.
func (s *Service) rank(p geo.Point, areas map[uuid.UUID]*repository.CoverageArea, links []repository.ResourceLink) []Match {
	best := make(map[uuid.UUID]Match)
	for _, l := range links {
		if !s.eligible(l.Resource) {
			continue
		}
		area, ok := areas[l.CoverageAreaID]
		if !ok {
			continue
		}

		m := Match{
			Resource:         l.Resource,
			SpecificityScore: area.Kind.SpecificityScore(),
			DistanceMiles:    distanceTo(p, area),
			AreaID:           area.ID,
			AreaKind:         area.Kind,
			AreaName:         area.Name,
		}

		prev, seen := best[l.Resource.ID]
		if !seen || better(m, prev) {
			best[l.Resource.ID] = m
		}
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SpecificityScore != matches[j].SpecificityScore {
			return matches[i].SpecificityScore > matches[j].SpecificityScore
		}
		if matches[i].DistanceMiles != matches[j].DistanceMiles {
			return matches[i].DistanceMiles < matches[j].DistanceMiles
		}
		return matches[i].Resource.Name < matches[j].Resource.Name
	})
	return matches
}

func better(a, b Match) bool {
	if a.SpecificityScore != b.SpecificityScore {
		return a.SpecificityScore > b.SpecificityScore
	}
	return a.DistanceMiles < b.DistanceMiles
}

// distanceTo measures miles from the point to the area's center or
// centroid. Areas with neither (nationwide rows) sort behind everything at
// the same specificity.
func distanceTo(p geo.Point, area *repository.CoverageArea) float64 {
	rep, ok := area.RepresentativePoint()
	if !ok {
		return math.MaxFloat64
	}
	return geo.DistanceMiles(p, rep)
}

// ResolveByCityState is the narrow text-based degraded path for callers
// that already know a city/state, used when spatial resolution is disabled.
func (s *Service) ResolveByCityState(ctx context.Context, city, stateCode string) ([]repository.Resource, error) {
	if city == "" && stateCode == "" {
		return nil, apperr.Validation("city or state is required")
	}
	resources, err := s.repo.SearchResourcesByCityState(ctx, city, stateCode)
	if err != nil {
		return nil, err
	}
	out := make([]repository.Resource, 0, len(resources))
	for _, r := range resources {
		if s.eligible(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// CheckEligibility reports whether any resource covers the point.
func (s *Service) CheckEligibility(ctx context.Context, lat, lng float64) (bool, error) {
	matches, err := s.Resolve(ctx, lat, lng)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// CalculateDistance measures miles from the point to the nearest
// representative point among the resource's coverage areas.
func (s *Service) CalculateDistance(ctx context.Context, resourceID uuid.UUID, lat, lng float64) (float64, error) {
	if !validCoordinates(lat, lng) {
		return 0, apperr.Validation("invalid coordinates")
	}
	if _, err := s.repo.GetResource(ctx, resourceID); err != nil {
		return 0, err
	}
	areas, err := s.repo.ListCoverageForResource(ctx, resourceID)
	if err != nil {
		return 0, err
	}

	p := geo.Point{Lat: lat, Lng: lng}
	nearest := math.MaxFloat64
	for i := range areas {
		if rep, ok := areas[i].RepresentativePoint(); ok {
			if d := geo.DistanceMiles(p, rep); d < nearest {
				nearest = d
			}
		}
	}
	if nearest == math.MaxFloat64 {
		return 0, apperr.NotFound("resource has no locatable coverage area")
	}
	return nearest, nil
}
