package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and by deployments that run
// without Postgres. Entries are sharded by the first byte of the query hash
// to keep lock contention away from the hot read path.
type Memory struct {
	shards [256]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*Entry)
	}
	return m
}

func (m *Memory) shard(queryHash string) *memoryShard {
	if queryHash == "" {
		return &m.shards[0]
	}
	return &m.shards[queryHash[0]]
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, queryHash string) (*Entry, error) {
	s := m.shard(queryHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[queryHash]
	if !ok || e.Expired(m.now()) {
		return nil, nil
	}
	e.HitCount++
	e.LastAccessedAt = m.now()
	out := *e
	return &out, nil
}

// Put implements Store. Re-inserting an existing key refreshes the result
// and expiry but preserves the original creation time and hit count.
func (m *Memory) Put(_ context.Context, entry Entry) error {
	s := m.shard(entry.QueryHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[entry.QueryHash]; ok {
		entry.CreatedAt = prev.CreatedAt
		entry.HitCount = prev.HitCount
	}
	s.entries[entry.QueryHash] = &entry
	return nil
}

// SweepExpired implements Store.
func (m *Memory) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	now := m.now()
	return m.sweep(ctx, batchSize, func(e *Entry) bool { return e.Expired(now) })
}

// SweepOlderThan implements Store. It removes entries created before the
// cutoff regardless of expiry, for operator-driven purges.
func (m *Memory) SweepOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return m.sweep(ctx, batchSize, func(e *Entry) bool { return e.CreatedAt.Before(cutoff) })
}

func (m *Memory) sweep(ctx context.Context, batchSize int, drop func(*Entry) bool) (int64, error) {
	var removed int64
	for i := range m.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s := &m.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if batchSize > 0 && removed >= int64(batchSize) {
				s.mu.Unlock()
				return removed, nil
			}
			if drop(e) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Stats implements Store.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	now := m.now()
	stats := Stats{ByProvider: make(map[string]int64)}
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			stats.TotalEntries++
			stats.TotalHits += e.HitCount
			stats.ByProvider[e.Result.ProviderName]++
			if e.Expired(now) {
				stats.ExpiredEntries++
			}
			created := e.CreatedAt
			if stats.OldestEntry == nil || created.Before(*stats.OldestEntry) {
				c := created
				stats.OldestEntry = &c
			}
			if stats.NewestEntry == nil || created.After(*stats.NewestEntry) {
				c := created
				stats.NewestEntry = &c
			}
		}
		s.mu.Unlock()
	}
	if stats.TotalEntries > 0 {
		stats.MeanHitCount = float64(stats.TotalHits) / float64(stats.TotalEntries)
	}
	return stats, nil
}
