// Package cache provides TTL-bounded storage for resolved geocode results,
// keyed by the SHA-256 hash of the normalized query text. Reads never extend
// an entry's lifetime; expired entries are removed only by the sweep jobs.
package cache

import (
	"context"
	"time"

	"coverage_backend/internal/geocoding/geocode"
)

// Entry is a cached geocode result together with its bookkeeping columns.
type Entry struct {
	QueryHash       string
	NormalizedQuery string
	Result          geocode.Result
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastAccessedAt  time.Time
	HitCount        int64
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is an aggregate snapshot of the cache contents.
type Stats struct {
	TotalEntries   int64            `json:"totalEntries"`
	ExpiredEntries int64            `json:"expiredEntries"`
	TotalHits      int64            `json:"totalHits"`
	MeanHitCount   float64          `json:"meanHitCount"`
	ByProvider     map[string]int64 `json:"byProvider"`
	OldestEntry    *time.Time       `json:"oldestEntry,omitempty"`
	NewestEntry    *time.Time       `json:"newestEntry,omitempty"`
}

// Store is the cache contract shared by the in-memory and Postgres
// implementations.
//
// Get returns (nil, nil) on a miss or when the entry has expired; an expired
// entry is never returned but is also not deleted on the read path. A hit
// increments HitCount and stamps LastAccessedAt without touching ExpiresAt.
type Store interface {
	Get(ctx context.Context, queryHash string) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	SweepExpired(ctx context.Context, batchSize int) (int64, error)
	SweepOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}
