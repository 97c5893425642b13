package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"coverage_backend/internal/geo"
)

// Kind is the coverage area variant. Containment tests dispatch on it in a
// single switch so the algorithm stays centrally testable.
type Kind string

const (
	KindNationwide Kind = "nationwide"
	KindState      Kind = "state"
	KindCounty     Kind = "county"
	KindCity       Kind = "city"
	KindRadius     Kind = "radius"
	KindPolygon    Kind = "polygon"
)

// Valid reports whether the kind is one of the known variants.
func (k Kind) Valid() bool {
	switch k {
	case KindNationwide, KindState, KindCounty, KindCity, KindRadius, KindPolygon:
		return true
	}
	return false
}

// SpecificityScore ranks kinds by precision. Higher scores sort first when
// a point falls inside several areas at once.
func (k Kind) SpecificityScore() int {
	switch k {
	case KindRadius, KindPolygon:
		return 5
	case KindCity:
		return 4
	case KindCounty:
		return 3
	case KindState:
		return 2
	case KindNationwide:
		return 1
	default:
		return 0
	}
}

// Administrative reports whether the kind is a named administrative region
// (the ones the offline text matcher resolves against).
func (k Kind) Administrative() bool {
	switch k {
	case KindState, KindCounty, KindCity:
		return true
	}
	return false
}

// Bounds for the radius kind, in meters (roughly half a mile to 100 miles).
const (
	MinRadiusMeters = 805
	MaxRadiusMeters = 160934
)

// CoverageArea is a named geographic region a resource can declare it
// serves. Administrative rows may be persisted without geometry as
// placeholders: they never match spatially, only by name.
type CoverageArea struct {
	ID           uuid.UUID         `json:"id"`
	Kind         Kind              `json:"kind"`
	Name         string            `json:"name"`
	StateCode    *string           `json:"stateCode,omitempty"`
	Center       *geo.Point        `json:"center,omitempty"`
	RadiusMeters *float64          `json:"radiusMeters,omitempty"`
	Geometry     orb.Geometry      `json:"-"`
	ExtIDs       map[string]string `json:"extIds"`
	CreatedBy    *string           `json:"createdBy,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// RepresentativePoint is the area's center when one is stored, otherwise
// the centroid of its geometry. The second return is false when the area
// has neither.
func (a *CoverageArea) RepresentativePoint() (geo.Point, bool) {
	if a.Center != nil {
		return *a.Center, true
	}
	if a.Geometry != nil {
		return geo.Centroid(a.Geometry), true
	}
	return geo.Point{}, false
}

// Contains reports whether the point falls inside the area. Placeholder
// rows without geometry never match.
func (a *CoverageArea) Contains(p geo.Point) bool {
	switch a.Kind {
	case KindRadius:
		if a.Center == nil || a.RadiusMeters == nil {
			return false
		}
		return geo.DistanceMeters(*a.Center, p) <= *a.RadiusMeters
	case KindNationwide:
		return true
	default:
		if a.Geometry == nil {
			return false
		}
		return geo.Contains(a.Geometry, p)
	}
}

// Resource is a service provider that can be found through the resolver.
// Publication rules live outside this context; the resolver only consumes
// the Published flag through a caller-supplied predicate.
type Resource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	City      *string   `json:"city,omitempty"`
	StateCode *string   `json:"stateCode,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResourceCoverage associates a resource with a coverage area. Unique per
// pair.
type ResourceCoverage struct {
	ID             uuid.UUID `json:"id"`
	ResourceID     uuid.UUID `json:"resourceId"`
	CoverageAreaID uuid.UUID `json:"coverageAreaId"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedBy      *string   `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
