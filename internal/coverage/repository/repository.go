// Package repository persists coverage areas, resources, and their
// associations in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverage_backend/internal/geo"
	"coverage_backend/platform/apperr"
)

const (
	areaNotFoundMessage     = "coverage area not found"
	resourceNotFoundMessage = "resource not found"
	linkNotFoundMessage     = "resource coverage association not found"
)

// AreaCenter is the name-to-point projection the offline text matcher
// resolves against.
type AreaCenter struct {
	Name      string
	StateCode string
	Center    geo.Point
}

// ResourceLink is a resource joined to one of its coverage area IDs, as
// produced by the resolver's association query.
type ResourceLink struct {
	Resource       Resource
	CoverageAreaID uuid.UUID
}

// Repository is the coverage persistence contract.
type Repository interface {
	CreateArea(ctx context.Context, area CoverageArea) (CoverageArea, error)
	GetArea(ctx context.Context, id uuid.UUID) (CoverageArea, error)
	ListAreas(ctx context.Context, kind *Kind) ([]CoverageArea, error)
	UpdateArea(ctx context.Context, area CoverageArea) (CoverageArea, error)
	DeleteArea(ctx context.Context, id uuid.UUID) error
	NamedCenters(ctx context.Context) ([]AreaCenter, error)

	CreateResource(ctx context.Context, res Resource) (Resource, error)
	GetResource(ctx context.Context, id uuid.UUID) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	UpdateResource(ctx context.Context, res Resource) (Resource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error

	LinkCoverage(ctx context.Context, link ResourceCoverage) (ResourceCoverage, error)
	UnlinkCoverage(ctx context.Context, resourceID, areaID uuid.UUID) error
	ListCoverageForResource(ctx context.Context, resourceID uuid.UUID) ([]CoverageArea, error)
	ResourcesForAreas(ctx context.Context, areaIDs []uuid.UUID) ([]ResourceLink, error)
	SearchResourcesByCityState(ctx context.Context, city, stateCode string) ([]Resource, error)
}

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new coverage repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const areaColumns = `id, kind, name, state_code, center_lat, center_lng, radius_meters, geometry, ext_ids, created_by, created_at, updated_at`

// CreateArea inserts a coverage area. Geometry is stored as GeoJSON.
func (r *Repo) CreateArea(ctx context.Context, area CoverageArea) (CoverageArea, error) {
	query := `
		INSERT INTO coverage_areas (kind, name, state_code, center_lat, center_lng, radius_meters, geometry, ext_ids, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + areaColumns

	geomRaw, extRaw, err := encodeAreaJSON(area)
	if err != nil {
		return CoverageArea{}, err
	}

	var lat, lng *float64
	if area.Center != nil {
		lat, lng = &area.Center.Lat, &area.Center.Lng
	}

	row := r.pool.QueryRow(ctx, query,
		area.Kind, area.Name, area.StateCode, lat, lng, area.RadiusMeters, geomRaw, extRaw, area.CreatedBy)
	out, err := scanArea(row)
	if err != nil {
		return CoverageArea{}, fmt.Errorf("create coverage area: %w", err)
	}
	return out, nil
}

// GetArea retrieves a coverage area by its ID.
func (r *Repo) GetArea(ctx context.Context, id uuid.UUID) (CoverageArea, error) {
	query := `SELECT ` + areaColumns + ` FROM coverage_areas WHERE id = $1`

	out, err := scanArea(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CoverageArea{}, apperr.NotFound(areaNotFoundMessage)
		}
		return CoverageArea{}, fmt.Errorf("get coverage area: %w", err)
	}
	return out, nil
}

// ListAreas retrieves coverage areas, optionally filtered by kind.
func (r *Repo) ListAreas(ctx context.Context, kind *Kind) ([]CoverageArea, error) {
	query := `SELECT ` + areaColumns + ` FROM coverage_areas ORDER BY name ASC`
	args := []any{}
	if kind != nil {
		query = `SELECT ` + areaColumns + ` FROM coverage_areas WHERE kind = $1 ORDER BY name ASC`
		args = append(args, *kind)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coverage areas: %w", err)
	}
	defer rows.Close()

	var areas []CoverageArea
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("list coverage areas: %w", err)
		}
		areas = append(areas, area)
	}
	return areas, rows.Err()
}

// UpdateArea replaces a coverage area's mutable fields.
func (r *Repo) UpdateArea(ctx context.Context, area CoverageArea) (CoverageArea, error) {
	query := `
		UPDATE coverage_areas
		SET kind = $2, name = $3, state_code = $4, center_lat = $5, center_lng = $6,
		    radius_meters = $7, geometry = $8, ext_ids = $9, updated_at = now()
		WHERE id = $1
		RETURNING ` + areaColumns

	geomRaw, extRaw, err := encodeAreaJSON(area)
	if err != nil {
		return CoverageArea{}, err
	}

	var lat, lng *float64
	if area.Center != nil {
		lat, lng = &area.Center.Lat, &area.Center.Lng
	}

	row := r.pool.QueryRow(ctx, query,
		area.ID, area.Kind, area.Name, area.StateCode, lat, lng, area.RadiusMeters, geomRaw, extRaw)
	out, err := scanArea(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CoverageArea{}, apperr.NotFound(areaNotFoundMessage)
		}
		return CoverageArea{}, fmt.Errorf("update coverage area: %w", err)
	}
	return out, nil
}

// DeleteArea removes a coverage area; associations cascade.
func (r *Repo) DeleteArea(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coverage_areas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coverage area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(areaNotFoundMessage)
	}
	return nil
}

// NamedCenters lists administrative areas that have a usable representative
// point, for the offline text matcher.
func (r *Repo) NamedCenters(ctx context.Context) ([]AreaCenter, error) {
	query := `
		SELECT name, COALESCE(state_code, ''), center_lat, center_lng, geometry
		FROM coverage_areas
		WHERE kind IN ('state', 'county', 'city')
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list named centers: %w", err)
	}
	defer rows.Close()

	var centers []AreaCenter
	for rows.Next() {
		var (
			c        AreaCenter
			lat, lng *float64
			geomRaw  []byte
		)
		if err := rows.Scan(&c.Name, &c.StateCode, &lat, &lng, &geomRaw); err != nil {
			return nil, fmt.Errorf("list named centers: %w", err)
		}
		switch {
		case lat != nil && lng != nil:
			c.Center = geo.Point{Lat: *lat, Lng: *lng}
		case geomRaw != nil:
			g, err := geo.ParseGeometry(geomRaw)
			if err != nil {
				continue
			}
			c.Center = geo.Centroid(g)
		default:
			// Placeholder row without center or geometry: unmatchable.
			continue
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

const resourceColumns = `id, name, city, state_code, published, created_at, updated_at`

// CreateResource inserts a resource.
func (r *Repo) CreateResource(ctx context.Context, res Resource) (Resource, error) {
	query := `
		INSERT INTO resources (name, city, state_code, published)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + resourceColumns

	row := r.pool.QueryRow(ctx, query, res.Name, res.City, res.StateCode, res.Published)
	out, err := scanResource(row)
	if err != nil {
		return Resource{}, fmt.Errorf("create resource: %w", err)
	}
	return out, nil
}

// GetResource retrieves a resource by its ID.
func (r *Repo) GetResource(ctx context.Context, id uuid.UUID) (Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`

	out, err := scanResource(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, apperr.NotFound(resourceNotFoundMessage)
		}
		return Resource{}, fmt.Errorf("get resource: %w", err)
	}
	return out, nil
}

// ListResources retrieves all resources ordered by name.
func (r *Repo) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// UpdateResource replaces a resource's mutable fields.
func (r *Repo) UpdateResource(ctx context.Context, res Resource) (Resource, error) {
	query := `
		UPDATE resources
		SET name = $2, city = $3, state_code = $4, published = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + resourceColumns

	row := r.pool.QueryRow(ctx, query, res.ID, res.Name, res.City, res.StateCode, res.Published)
	out, err := scanResource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, apperr.NotFound(resourceNotFoundMessage)
		}
		return Resource{}, fmt.Errorf("update resource: %w", err)
	}
	return out, nil
}

// DeleteResource removes a resource; associations cascade.
func (r *Repo) DeleteResource(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(resourceNotFoundMessage)
	}
	return nil
}

// LinkCoverage associates a resource with a coverage area.
func (r *Repo) LinkCoverage(ctx context.Context, link ResourceCoverage) (ResourceCoverage, error) {
	query := `
		INSERT INTO resource_coverage (resource_id, coverage_area_id, notes, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, resource_id, coverage_area_id, notes, created_by, created_at`

	var out ResourceCoverage
	err := r.pool.QueryRow(ctx, query, link.ResourceID, link.CoverageAreaID, link.Notes, link.CreatedBy).Scan(
		&out.ID, &out.ResourceID, &out.CoverageAreaID, &out.Notes, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ResourceCoverage{}, apperr.Conflict("resource is already associated with this coverage area")
			case "23503":
				return ResourceCoverage{}, apperr.NotFound("resource or coverage area not found")
			}
		}
		return ResourceCoverage{}, fmt.Errorf("link resource coverage: %w", err)
	}
	return out, nil
}

// UnlinkCoverage removes a resource-area association.
func (r *Repo) UnlinkCoverage(ctx context.Context, resourceID, areaID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM resource_coverage WHERE resource_id = $1 AND coverage_area_id = $2`, resourceID, areaID)
	if err != nil {
		return fmt.Errorf("unlink resource coverage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(linkNotFoundMessage)
	}
	return nil
}

// ListCoverageForResource retrieves the areas a resource is associated with.
func (r *Repo) ListCoverageForResource(ctx context.Context, resourceID uuid.UUID) ([]CoverageArea, error) {
	query := `
		SELECT a.id, a.kind, a.name, a.state_code, a.center_lat, a.center_lng, a.radius_meters, a.geometry, a.ext_ids, a.created_by, a.created_at, a.updated_at
		FROM coverage_areas a
		JOIN resource_coverage rc ON rc.coverage_area_id = a.id
		WHERE rc.resource_id = $1
		ORDER BY a.name ASC`

	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list coverage for resource: %w", err)
	}
	defer rows.Close()

	var areas []CoverageArea
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("list coverage for resource: %w", err)
		}
		areas = append(areas, area)
	}
	return areas, rows.Err()
}

// ResourcesForAreas joins resources to the given coverage areas. A resource
// linked to several of them appears once per link; the resolver collapses
// duplicates while ranking.
func (r *Repo) ResourcesForAreas(ctx context.Context, areaIDs []uuid.UUID) ([]ResourceLink, error) {
	if len(areaIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT r.id, r.name, r.city, r.state_code, r.published, r.created_at, r.updated_at, rc.coverage_area_id
		FROM resources r
		JOIN resource_coverage rc ON rc.resource_id = r.id
		WHERE rc.coverage_area_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, areaIDs)
	if err != nil {
		return nil, fmt.Errorf("resources for areas: %w", err)
	}
	defer rows.Close()

	var links []ResourceLink
	for rows.Next() {
		var l ResourceLink
		if err := rows.Scan(&l.Resource.ID, &l.Resource.Name, &l.Resource.City, &l.Resource.StateCode,
			&l.Resource.Published, &l.Resource.CreatedAt, &l.Resource.UpdatedAt, &l.CoverageAreaID); err != nil {
			return nil, fmt.Errorf("resources for areas: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// SearchResourcesByCityState is the narrow text filter the resolver degrades
// to when the spatial capability is disabled.
func (r *Repo) SearchResourcesByCityState(ctx context.Context, city, stateCode string) ([]Resource, error) {
	query := `
		SELECT ` + resourceColumns + `
		FROM resources
		WHERE ($1 = '' OR lower(city) = lower($1))
		  AND ($2 = '' OR lower(state_code) = lower($2))
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, city, stateCode)
	if err != nil {
		return nil, fmt.Errorf("search resources by city/state: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

func encodeAreaJSON(area CoverageArea) (geomRaw, extRaw []byte, err error) {
	if area.Geometry != nil {
		geomRaw, err = geo.MarshalGeometry(area.Geometry)
		if err != nil {
			return nil, nil, fmt.Errorf("encode area geometry: %w", err)
		}
	}
	ext := area.ExtIDs
	if ext == nil {
		ext = map[string]string{}
	}
	extRaw, err = json.Marshal(ext)
	if err != nil {
		return nil, nil, fmt.Errorf("encode area ext_ids: %w", err)
	}
	return geomRaw, extRaw, nil
}

func scanArea(row pgx.Row) (CoverageArea, error) {
	var (
		a        CoverageArea
		lat, lng *float64
		geomRaw  []byte
		extRaw   []byte
	)
	err := row.Scan(&a.ID, &a.Kind, &a.Name, &a.StateCode, &lat, &lng, &a.RadiusMeters,
		&geomRaw, &extRaw, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return CoverageArea{}, err
	}
	if lat != nil && lng != nil {
		a.Center = &geo.Point{Lat: *lat, Lng: *lng}
	}
	if geomRaw != nil {
		g, err := geo.ParseGeometry(geomRaw)
		if err != nil {
			return CoverageArea{}, fmt.Errorf("decode area geometry: %w", err)
		}
		a.Geometry = g
	}
	if extRaw != nil {
		if err := json.Unmarshal(extRaw, &a.ExtIDs); err != nil {
			return CoverageArea{}, fmt.Errorf("decode area ext_ids: %w", err)
		}
	}
	return a, nil
}

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.Name, &res.City, &res.StateCode, &res.Published, &res.CreatedAt, &res.UpdatedAt)
	return res, err
}

func scanResources(rows pgx.Rows) ([]Resource, error) {
	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
