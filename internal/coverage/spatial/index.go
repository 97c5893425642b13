// Package spatial maintains an H3-based candidate index over coverage
// areas so the resolver only runs exact containment tests on areas whose
// cells neighbor the query point.
package spatial

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/uber/h3-go/v4"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/geo"
)

// DefaultResolution is a reasonable H3 resolution for city-to-county sized
// areas (cells roughly 8 km across).
const DefaultResolution = 5

// Index maps H3 cells to the coverage areas that may contain points inside
// them. Broad areas (nationwide, state, and placeholder rows) are kept in a
// separate always-candidate list instead of being exploded into thousands
// of cells.
type Index struct {
	mu         sync.RWMutex
	resolution int
	cells      map[h3.Cell][]uuid.UUID
	broad      []uuid.UUID
	built      bool
}

// NewIndex creates an empty index at the given H3 resolution; zero or
// negative uses DefaultResolution.
func NewIndex(resolution int) *Index {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Index{
		resolution: resolution,
		cells:      make(map[h3.Cell][]uuid.UUID),
	}
}

// Rebuild replaces the index contents from a fresh area snapshot. It runs
// on startup and whenever a coverage area changes.
func (ix *Index) Rebuild(areas []repository.CoverageArea) error {
	cells := make(map[h3.Cell][]uuid.UUID)
	var broad []uuid.UUID

	for i := range areas {
		a := &areas[i]
		covered, err := ix.cover(a)
		if err != nil {
			return fmt.Errorf("index coverage area %s: %w", a.ID, err)
		}
		if covered == nil {
			broad = append(broad, a.ID)
			continue
		}
		for _, c := range covered {
			cells[c] = append(cells[c], a.ID)
		}
	}

	ix.mu.Lock()
	ix.cells = cells
	ix.broad = broad
	ix.built = true
	ix.mu.Unlock()
	return nil
}

// Candidates returns the IDs of areas whose cells neighbor the point, plus
// every broad area. The boolean is false when the index has not been built,
// in which case the caller must fall back to a full scan.
func (ix *Index) Candidates(p geo.Point) ([]uuid.UUID, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.built {
		return nil, false
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), ix.resolution)
	if err != nil {
		return nil, false
	}

	out := make([]uuid.UUID, 0, len(ix.broad)+len(ix.cells[cell]))
	out = append(out, ix.broad...)
	out = append(out, ix.cells[cell]...)
	return out, true
}

// cover returns the cells an area can possibly contain points in, or nil
// when the area belongs on the broad list.
func (ix *Index) cover(a *repository.CoverageArea) ([]h3.Cell, error) {
	switch a.Kind {
	case repository.KindNationwide, repository.KindState:
		return nil, nil
	case repository.KindRadius:
		if a.Center == nil || a.RadiusMeters == nil {
			return nil, nil
		}
		return ix.coverCircle(*a.Center, *a.RadiusMeters)
	default:
		if a.Geometry == nil {
			// Placeholder without geometry: it can never match spatially,
			// but keeping it broad is harmless since Contains rejects it.
			return nil, nil
		}
		return ix.coverBound(a.Geometry.Bound())
	}
}

// coverCircle covers a circle with the disk of cells around its center. The
// disk radius k is derived from the grid distance to a point one circle
// radius due north, padded by one ring for boundary effects.
func (ix *Index) coverCircle(center geo.Point, radiusMeters float64) ([]h3.Cell, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(center.Lat, center.Lng), ix.resolution)
	if err != nil {
		return nil, err
	}

	// One degree of latitude is ~111,320 meters everywhere on the globe.
	north := geo.Point{Lat: center.Lat + radiusMeters/111320.0, Lng: center.Lng}
	edge, err := h3.LatLngToCell(h3.NewLatLng(north.Lat, north.Lng), ix.resolution)
	if err != nil {
		return nil, err
	}
	k, err := h3.GridDistance(origin, edge)
	if err != nil {
		return nil, err
	}

	return h3.GridDisk(origin, k+1)
}

// coverBound covers a geometry's bounding box with a disk around its
// center, sized by the grid distance to the farthest corner.
func (ix *Index) coverBound(b orb.Bound) ([]h3.Cell, error) {
	c := b.Center()
	origin, err := h3.LatLngToCell(h3.NewLatLng(c.Lat(), c.Lon()), ix.resolution)
	if err != nil {
		return nil, err
	}

	k := 0
	for _, corner := range []orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}} {
		cell, err := h3.LatLngToCell(h3.NewLatLng(corner.Lat(), corner.Lon()), ix.resolution)
		if err != nil {
			return nil, err
		}
		d, err := h3.GridDistance(origin, cell)
		if err != nil {
			return nil, err
		}
		if d > k {
			k = d
		}
	}

	return h3.GridDisk(origin, k+1)
}
