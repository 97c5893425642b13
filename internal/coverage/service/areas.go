package service

import (
	"context"

	"github.com/google/uuid"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/events"
	"coverage_backend/internal/geo"
	"coverage_backend/platform/apperr"
)

// AreaInput carries the write-side fields for creating or updating a
// coverage area. Geometry arrives as raw GeoJSON and is validated before
// anything touches the database.
type AreaInput struct {
	Kind         repository.Kind
	Name         string
	StateCode    *string
	Center       *geo.Point
	RadiusMeters *float64
	GeometryJSON []byte
	ExtIDs       map[string]string
	CreatedBy    *string
}

// CreateArea validates and persists a coverage area, then refreshes the
// spatial index.
func (s *Service) CreateArea(ctx context.Context, in AreaInput) (repository.CoverageArea, error) {
	area, err := s.buildArea(in)
	if err != nil {
		return repository.CoverageArea{}, err
	}

	out, err := s.repo.CreateArea(ctx, area)
	if err != nil {
		return repository.CoverageArea{}, err
	}
	s.areaChanged(ctx, out.ID, "created")
	return out, nil
}

// GetArea retrieves one coverage area.
func (s *Service) GetArea(ctx context.Context, id uuid.UUID) (repository.CoverageArea, error) {
	return s.repo.GetArea(ctx, id)
}

// ListAreas lists coverage areas, optionally filtered by kind.
func (s *Service) ListAreas(ctx context.Context, kind *repository.Kind) ([]repository.CoverageArea, error) {
	if kind != nil && !kind.Valid() {
		return nil, apperr.Validation("unknown coverage area kind")
	}
	return s.repo.ListAreas(ctx, kind)
}

// UpdateArea validates and replaces a coverage area.
func (s *Service) UpdateArea(ctx context.Context, id uuid.UUID, in AreaInput) (repository.CoverageArea, error) {
	area, err := s.buildArea(in)
	if err != nil {
		return repository.CoverageArea{}, err
	}
	area.ID = id

	out, err := s.repo.UpdateArea(ctx, area)
	if err != nil {
		return repository.CoverageArea{}, err
	}
	s.areaChanged(ctx, out.ID, "updated")
	return out, nil
}

// DeleteArea removes a coverage area and its associations.
func (s *Service) DeleteArea(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteArea(ctx, id); err != nil {
		return err
	}
	s.areaChanged(ctx, id, "deleted")
	return nil
}

func (s *Service) areaChanged(ctx context.Context, id uuid.UUID, action string) {
	if err := s.RebuildIndex(ctx); err != nil {
		s.log.Error("failed to rebuild spatial index", "error", err)
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.CoverageAreaChanged{
			BaseEvent: events.NewBaseEvent(),
			AreaID:    id,
			Action:    action,
		})
	}
}

// buildArea enforces the kind invariants: radius areas require a center and
// a bounded radius and carry no polygon; invalid geometry is rejected here
// and never stored.
func (s *Service) buildArea(in AreaInput) (repository.CoverageArea, error) {
	if !in.Kind.Valid() {
		return repository.CoverageArea{}, apperr.Validation("unknown coverage area kind")
	}
	if in.Name == "" {
		return repository.CoverageArea{}, apperr.Validation("name is required")
	}
	if in.Center != nil && !validCoordinates(in.Center.Lat, in.Center.Lng) {
		return repository.CoverageArea{}, apperr.Validation("invalid center coordinates")
	}

	area := repository.CoverageArea{
		Kind:         in.Kind,
		Name:         in.Name,
		StateCode:    in.StateCode,
		Center:       in.Center,
		RadiusMeters: in.RadiusMeters,
		ExtIDs:       in.ExtIDs,
		CreatedBy:    in.CreatedBy,
	}

	if in.Kind == repository.KindRadius {
		if in.Center == nil || in.RadiusMeters == nil {
			return repository.CoverageArea{}, apperr.Validation("radius areas require a center and a radius")
		}
		if *in.RadiusMeters < repository.MinRadiusMeters || *in.RadiusMeters > repository.MaxRadiusMeters {
			return repository.CoverageArea{}, apperr.Validation("radius is out of bounds")
		}
		if len(in.GeometryJSON) > 0 {
			return repository.CoverageArea{}, apperr.Validation("radius areas must not carry polygon geometry")
		}
		return area, nil
	}

	if in.RadiusMeters != nil {
		return repository.CoverageArea{}, apperr.Validation("radius is only valid for radius areas")
	}
	if len(in.GeometryJSON) > 0 {
		g, err := geo.ParseGeometry(in.GeometryJSON)
		if err != nil {
			return repository.CoverageArea{}, apperr.Wrap(apperr.KindValidation, "invalid geometry", err)
		}
		area.Geometry = g
	}
	return area, nil
}

// CreateResource persists a resource.
func (s *Service) CreateResource(ctx context.Context, res repository.Resource) (repository.Resource, error) {
	if res.Name == "" {
		return repository.Resource{}, apperr.Validation("name is required")
	}
	return s.repo.CreateResource(ctx, res)
}

// GetResource retrieves one resource.
func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (repository.Resource, error) {
	return s.repo.GetResource(ctx, id)
}

// ListResources lists all resources.
func (s *Service) ListResources(ctx context.Context) ([]repository.Resource, error) {
	return s.repo.ListResources(ctx)
}

// UpdateResource replaces a resource's mutable fields.
func (s *Service) UpdateResource(ctx context.Context, res repository.Resource) (repository.Resource, error) {
	if res.Name == "" {
		return repository.Resource{}, apperr.Validation("name is required")
	}
	return s.repo.UpdateResource(ctx, res)
}

// DeleteResource removes a resource and its associations.
func (s *Service) DeleteResource(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteResource(ctx, id)
}

// LinkCoverage associates a resource with a coverage area.
func (s *Service) LinkCoverage(ctx context.Context, link repository.ResourceCoverage) (repository.ResourceCoverage, error) {
	return s.repo.LinkCoverage(ctx, link)
}

// UnlinkCoverage removes a resource-area association.
func (s *Service) UnlinkCoverage(ctx context.Context, resourceID, areaID uuid.UUID) error {
	return s.repo.UnlinkCoverage(ctx, resourceID, areaID)
}

// ListCoverageForResource lists the areas a resource serves.
func (s *Service) ListCoverageForResource(ctx context.Context, resourceID uuid.UUID) ([]repository.CoverageArea, error) {
	if _, err := s.repo.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.repo.ListCoverageForResource(ctx, resourceID)
}

// NamedCenters exposes administrative area centers to the geocoding
// context's offline text matcher.
func (s *Service) NamedCenters(ctx context.Context) ([]repository.AreaCenter, error) {
	return s.repo.NamedCenters(ctx)
}
