// Package transport defines the request/response DTOs for the coverage
// HTTP surface.
package transport

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/coverage/service"
	"coverage_backend/internal/geo"
)

// ResolveRequest is the query-string input for the resolve, eligibility,
// and distance endpoints. RadiusMiles is advisory presentation context and
// never narrows containment results.
type ResolveRequest struct {
	Lat         float64 `form:"lat" validate:"min=-90,max=90"`
	Lng         float64 `form:"lng" validate:"min=-180,max=180"`
	RadiusMiles float64 `form:"radius_miles" validate:"omitempty,min=0,max=500"`
}

// MatchResponse is one ranked resolver match.
type MatchResponse struct {
	Resource         ResourceResponse `json:"resource"`
	SpecificityScore int              `json:"specificityScore"`
	DistanceMiles    *float64         `json:"distanceMiles,omitempty"`
	AreaID           uuid.UUID        `json:"areaId"`
	AreaKind         repository.Kind  `json:"areaKind"`
	AreaName         string           `json:"areaName"`
}

// ResolveResponse is the ranked match list for a point. RadiusMiles echoes
// the effective search radius (requested or default).
type ResolveResponse struct {
	Matches     []MatchResponse `json:"matches"`
	Count       int             `json:"count"`
	RadiusMiles float64         `json:"radiusMiles"`
}

// FromMatches maps resolver matches into the response DTO. Matches whose
// area has no representative point carry no distance.
func FromMatches(matches []service.Match, radiusMiles float64) ResolveResponse {
	out := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		mr := MatchResponse{
			Resource:         FromResource(m.Resource),
			SpecificityScore: m.SpecificityScore,
			AreaID:           m.AreaID,
			AreaKind:         m.AreaKind,
			AreaName:         m.AreaName,
		}
		if m.DistanceMiles != math.MaxFloat64 {
			d := m.DistanceMiles
			mr.DistanceMiles = &d
		}
		out = append(out, mr)
	}
	return ResolveResponse{Matches: out, Count: len(out), RadiusMiles: radiusMiles}
}

// EligibilityResponse reports whether any resource covers the point.
type EligibilityResponse struct {
	Eligible bool `json:"eligible"`
}

// DistanceRequest is the query-string input for the distance endpoint.
type DistanceRequest struct {
	Lat float64 `form:"lat" validate:"min=-90,max=90"`
	Lng float64 `form:"lng" validate:"min=-180,max=180"`
}

// DistanceResponse is the measured distance in miles.
type DistanceResponse struct {
	ResourceID    uuid.UUID `json:"resourceId"`
	DistanceMiles float64   `json:"distanceMiles"`
}

// CitySearchRequest is the query-string input for the degraded text
// search endpoint.
type CitySearchRequest struct {
	City      string `form:"city" validate:"omitempty,max=128"`
	StateCode string `form:"state" validate:"omitempty,len=2"`
}

// ResourceListResponse wraps a plain resource list.
type ResourceListResponse struct {
	Resources []ResourceResponse `json:"resources"`
	Count     int                `json:"count"`
}

// PointDTO carries a lat/lng pair.
type PointDTO struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

// AreaRequest is the JSON body for creating or updating a coverage area.
// Geometry is raw GeoJSON, validated in the service layer.
type AreaRequest struct {
	Kind         string            `json:"kind" binding:"required" validate:"required,oneof=radius polygon city county state nationwide"`
	Name         string            `json:"name" binding:"required" validate:"required,max=255"`
	StateCode    *string           `json:"stateCode" validate:"omitempty,len=2"`
	Center       *PointDTO         `json:"center"`
	RadiusMeters *float64          `json:"radiusMeters" validate:"omitempty,gt=0"`
	Geometry     json.RawMessage   `json:"geometry,omitempty"`
	ExtIDs       map[string]string `json:"extIds,omitempty"`
}

// ToInput maps the request into the service-layer input.
func (r AreaRequest) ToInput(createdBy *string) service.AreaInput {
	in := service.AreaInput{
		Kind:         repository.Kind(r.Kind),
		Name:         r.Name,
		StateCode:    r.StateCode,
		RadiusMeters: r.RadiusMeters,
		GeometryJSON: r.Geometry,
		ExtIDs:       r.ExtIDs,
		CreatedBy:    createdBy,
	}
	if r.Center != nil {
		in.Center = &geo.Point{Lat: r.Center.Lat, Lng: r.Center.Lng}
	}
	return in
}

// AreaResponse is the coverage area payload returned to clients.
type AreaResponse struct {
	ID           uuid.UUID         `json:"id"`
	Kind         repository.Kind   `json:"kind"`
	Name         string            `json:"name"`
	StateCode    *string           `json:"stateCode,omitempty"`
	Center       *PointDTO         `json:"center,omitempty"`
	RadiusMeters *float64          `json:"radiusMeters,omitempty"`
	Geometry     json.RawMessage   `json:"geometry,omitempty"`
	ExtIDs       map[string]string `json:"extIds,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// FromArea maps a coverage area into the response DTO. Geometry encoding
// faults are swallowed; the rest of the row is still useful.
func FromArea(a repository.CoverageArea) AreaResponse {
	out := AreaResponse{
		ID:           a.ID,
		Kind:         a.Kind,
		Name:         a.Name,
		StateCode:    a.StateCode,
		RadiusMeters: a.RadiusMeters,
		ExtIDs:       a.ExtIDs,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Center != nil {
		out.Center = &PointDTO{Lat: a.Center.Lat, Lng: a.Center.Lng}
	}
	if a.Geometry != nil {
		if raw, err := geo.MarshalGeometry(a.Geometry); err == nil {
			out.Geometry = raw
		}
	}
	return out
}

// AreaListResponse wraps a coverage area list.
type AreaListResponse struct {
	Areas []AreaResponse `json:"areas"`
	Count int            `json:"count"`
}

// FromAreas maps a slice of areas.
func FromAreas(areas []repository.CoverageArea) AreaListResponse {
	out := make([]AreaResponse, 0, len(areas))
	for _, a := range areas {
		out = append(out, FromArea(a))
	}
	return AreaListResponse{Areas: out, Count: len(out)}
}

// ResourceRequest is the JSON body for creating or updating a resource.
type ResourceRequest struct {
	Name      string  `json:"name" binding:"required" validate:"required,max=255"`
	City      *string `json:"city" validate:"omitempty,max=128"`
	StateCode *string `json:"stateCode" validate:"omitempty,len=2"`
	Published bool    `json:"published"`
}

// ToModel maps the request into the repository model.
func (r ResourceRequest) ToModel() repository.Resource {
	return repository.Resource{
		Name:      r.Name,
		City:      r.City,
		StateCode: r.StateCode,
		Published: r.Published,
	}
}

// ResourceResponse is the resource payload returned to clients.
type ResourceResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	City      *string   `json:"city,omitempty"`
	StateCode *string   `json:"stateCode,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromResource maps a resource into the response DTO.
func FromResource(r repository.Resource) ResourceResponse {
	return ResourceResponse{
		ID:        r.ID,
		Name:      r.Name,
		City:      r.City,
		StateCode: r.StateCode,
		Published: r.Published,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// FromResources maps a slice of resources.
func FromResources(resources []repository.Resource) ResourceListResponse {
	out := make([]ResourceResponse, 0, len(resources))
	for _, r := range resources {
		out = append(out, FromResource(r))
	}
	return ResourceListResponse{Resources: out, Count: len(out)}
}

// LinkRequest is the JSON body for associating a resource with an area.
type LinkRequest struct {
	CoverageAreaID string  `json:"coverageAreaId" binding:"required" validate:"required,uuid"`
	Notes          *string `json:"notes" validate:"omitempty,max=500"`
}

// LinkResponse is the created association.
type LinkResponse struct {
	ID             uuid.UUID `json:"id"`
	ResourceID     uuid.UUID `json:"resourceId"`
	CoverageAreaID uuid.UUID `json:"coverageAreaId"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FromLink maps an association into the response DTO.
func FromLink(l repository.ResourceCoverage) LinkResponse {
	return LinkResponse{
		ID:             l.ID,
		ResourceID:     l.ResourceID,
		CoverageAreaID: l.CoverageAreaID,
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt,
	}
}
