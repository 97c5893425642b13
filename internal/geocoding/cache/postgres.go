package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the durable Store backed by the geocode_cache table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed cache store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get implements Store. The hit bookkeeping and the expiry check happen in a
// single UPDATE so concurrent readers never observe a stale hit count and an
// expired row is never returned.
func (p *Postgres) Get(ctx context.Context, queryHash string) (*Entry, error) {
	const query = `
		UPDATE geocode_cache
		SET hit_count = hit_count + 1, last_accessed = now()
		WHERE query_hash = $1 AND expires_at > now()
		RETURNING query_hash, query, latitude, longitude, formatted_address,
		          provider_name, confidence, expires_at, created_at, hit_count, last_accessed`

	var e Entry
	err := p.pool.QueryRow(ctx, query, queryHash).Scan(
		&e.QueryHash,
		&e.NormalizedQuery,
		&e.Result.Latitude,
		&e.Result.Longitude,
		&e.Result.FormattedAddress,
		&e.Result.ProviderName,
		&e.Result.Confidence,
		&e.ExpiresAt,
		&e.CreatedAt,
		&e.HitCount,
		&e.LastAccessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode cache: %w", err)
	}
	e.Result.CacheHit = true
	return &e, nil
}

// Put implements Store. Conflicting inserts refresh the coordinates and the
// expiry window but keep the row's created_at and hit_count.
func (p *Postgres) Put(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO geocode_cache
			(query_hash, query, latitude, longitude, formatted_address,
			 provider_name, confidence, expires_at, created_at, last_accessed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (query_hash) DO UPDATE SET
			query = EXCLUDED.query,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			formatted_address = EXCLUDED.formatted_address,
			provider_name = EXCLUDED.provider_name,
			confidence = EXCLUDED.confidence,
			expires_at = EXCLUDED.expires_at,
			last_accessed = now()`

	_, err := p.pool.Exec(ctx, query,
		entry.QueryHash,
		entry.NormalizedQuery,
		entry.Result.Latitude,
		entry.Result.Longitude,
		entry.Result.FormattedAddress,
		entry.Result.ProviderName,
		entry.Result.Confidence,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}

// SweepExpired implements Store. Deletion goes through a keyed subquery so a
// batch size can bound each pass.
func (p *Postgres) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	const query = `
		DELETE FROM geocode_cache
		WHERE query_hash IN (
			SELECT query_hash FROM geocode_cache
			WHERE expires_at <= now()
			LIMIT $1
		)`
	return p.sweep(ctx, query, normalizeBatch(batchSize))
}

// SweepOlderThan implements Store.
func (p *Postgres) SweepOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	const query = `
		DELETE FROM geocode_cache
		WHERE query_hash IN (
			SELECT query_hash FROM geocode_cache
			WHERE created_at < $2
			LIMIT $1
		)`
	return p.sweep(ctx, query, normalizeBatch(batchSize), cutoff)
}

func (p *Postgres) sweep(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep geocode cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats implements Store.
func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT count(*),
		       count(*) FILTER (WHERE expires_at <= now()),
		       COALESCE(sum(hit_count), 0),
		       min(created_at),
		       max(created_at)
		FROM geocode_cache`

	stats := Stats{ByProvider: make(map[string]int64)}
	err := p.pool.QueryRow(ctx, query).Scan(
		&stats.TotalEntries,
		&stats.ExpiredEntries,
		&stats.TotalHits,
		&stats.OldestEntry,
		&stats.NewestEntry,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read geocode cache stats: %w", err)
	}
	if stats.TotalEntries > 0 {
		stats.MeanHitCount = float64(stats.TotalHits) / float64(stats.TotalEntries)
	}

	const byProvider = `SELECT provider_name, count(*) FROM geocode_cache GROUP BY provider_name`
	rows, err := p.pool.Query(ctx, byProvider)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read geocode cache provider stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan geocode cache provider stats: %w", err)
		}
		stats.ByProvider[name] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to read geocode cache provider stats: %w", err)
	}
	return stats, nil
}

func normalizeBatch(batchSize int) int {
	if batchSize <= 0 {
		return 500
	}
	return batchSize
}
