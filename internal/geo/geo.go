// Package geo wraps the orb geometry library with the small set of
// primitives the coverage resolver needs: great-circle distance,
// point-in-geometry tests, centroids, and GeoJSON parsing. All coordinates
// are WGS84; points are (longitude, latitude) in orb's convention.
package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const metersPerMile = 1609.344

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Orb converts a Point into orb's (lng, lat) representation.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromOrb converts an orb point back to a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lng: p.Lon()}
}

// DistanceMeters returns the haversine distance between two points in meters.
func DistanceMeters(a, b Point) float64 {
	return geo.DistanceHaversine(a.Orb(), b.Orb())
}

// DistanceMiles returns the haversine distance between two points in miles.
func DistanceMiles(a, b Point) float64 {
	return DistanceMeters(a, b) / metersPerMile
}

// MilesToMeters converts miles to meters.
func MilesToMeters(miles float64) float64 {
	return miles * metersPerMile
}

// MetersToMiles converts meters to miles.
func MetersToMiles(meters float64) float64 {
	return meters / metersPerMile
}

// Contains reports whether the point lies inside the polygonal geometry.
// Returns false for geometry types other than Polygon/MultiPolygon.
func Contains(g orb.Geometry, p Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p.Orb())
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p.Orb())
	default:
		return false
	}
}

// Centroid returns the area-weighted centroid of the geometry.
func Centroid(g orb.Geometry) Point {
	center, _ := planar.CentroidArea(g)
	return FromOrb(center)
}

// ParseGeometry decodes a GeoJSON geometry document and enforces that it is a
// Polygon or MultiPolygon with at least one ring.
func ParseGeometry(data []byte) (orb.Geometry, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse geojson geometry: %w", err)
	}

	geom := g.Geometry()
	switch typed := geom.(type) {
	case orb.Polygon:
		if len(typed) == 0 || len(typed[0]) < 4 {
			return nil, fmt.Errorf("polygon requires a closed outer ring")
		}
	case orb.MultiPolygon:
		if len(typed) == 0 {
			return nil, fmt.Errorf("multipolygon requires at least one polygon")
		}
		for _, poly := range typed {
			if len(poly) == 0 || len(poly[0]) < 4 {
				return nil, fmt.Errorf("multipolygon member requires a closed outer ring")
			}
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}

	return geom, nil
}

// MarshalGeometry encodes a geometry back to GeoJSON.
func MarshalGeometry(g orb.Geometry) ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(g))
}
