package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"coverage_backend/internal/geocoding/geocode"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func entryAt(hash string, created, expires time.Time) Entry {
	return Entry{
		QueryHash:       hash,
		NormalizedQuery: "london, ky",
		Result: geocode.Result{
			Latitude:     37.1289771,
			Longitude:    -84.0832646,
			ProviderName: "nominatim",
		},
		CreatedAt: created,
		ExpiresAt: expires,
	}
}

func TestMemoryGetBumpsHitCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	hash := geocode.HashQuery("London, KY")
	if err := m.Put(ctx, entryAt(hash, now, now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	for want := int64(1); want <= 3; want++ {
		e, err := m.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if e == nil {
			t.Fatal("Get() returned nil for a live entry")
		}
		if e.HitCount != want {
			t.Errorf("HitCount = %d, want %d", e.HitCount, want)
		}
		if !e.LastAccessedAt.Equal(now) {
			t.Errorf("LastAccessedAt = %v, want %v", e.LastAccessedAt, now)
		}
	}
}

func TestMemoryGetDoesNotReturnOrDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	hash := geocode.HashQuery("London, KY")
	if err := m.Put(ctx, entryAt(hash, now.Add(-48*time.Hour), now.Add(-time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	e, err := m.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e != nil {
		t.Fatalf("Get() = %+v, want nil for expired entry", e)
	}

	// The read path must not remove the row; only the sweep does.
	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 1 || stats.ExpiredEntries != 1 {
		t.Errorf("Stats = %+v, want 1 total / 1 expired", stats)
	}
}

func TestMemoryPutPreservesCreatedAtAndHits(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(6 * time.Hour)
	m := NewMemory()
	m.now = func() time.Time { return now }

	hash := geocode.HashQuery("London, KY")
	if err := m.Put(ctx, entryAt(hash, created, created.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := m.Get(ctx, hash); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Refresh with a later expiry.
	if err := m.Put(ctx, entryAt(hash, now, now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	e, err := m.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want original %v", e.CreatedAt, created)
	}
	if e.HitCount != 2 {
		t.Errorf("HitCount = %d, want 2 (preserved across refresh)", e.HitCount)
	}
	if !e.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want refreshed window", e.ExpiresAt)
	}
}

func TestMemorySweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		hash := geocode.HashQuery(fmt.Sprintf("expired query %d", i))
		if err := m.Put(ctx, entryAt(hash, now.Add(-48*time.Hour), now.Add(-time.Hour))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	live := geocode.HashQuery("still live")
	if err := m.Put(ctx, entryAt(live, now, now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := m.SweepExpired(ctx, 3)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("first sweep removed %d, want batch limit 3", removed)
	}

	removed, err = m.SweepExpired(ctx, 0)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("second sweep removed %d, want remaining 2", removed)
	}

	e, err := m.Get(ctx, live)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e == nil {
		t.Error("sweep removed a live entry")
	}
}

func TestMemorySweepOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	old := geocode.HashQuery("old but unexpired")
	if err := m.Put(ctx, entryAt(old, now.Add(-72*time.Hour), now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	fresh := geocode.HashQuery("fresh")
	if err := m.Put(ctx, entryAt(fresh, now, now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := m.SweepOlderThan(ctx, now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("SweepOlderThan() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepOlderThan() removed %d, want 1", removed)
	}
	if e, _ := m.Get(ctx, fresh); e == nil {
		t.Error("purge removed an entry newer than the cutoff")
	}
	if e, _ := m.Get(ctx, old); e != nil {
		t.Error("purge kept an entry older than the cutoff")
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	oldest := now.Add(-48 * time.Hour)
	if err := m.Put(ctx, entryAt(geocode.HashQuery("a"), oldest, now.Add(-time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := m.Put(ctx, entryAt(geocode.HashQuery("b"), now, now.Add(24*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := m.Get(ctx, geocode.HashQuery("b")); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 2 || stats.ExpiredEntries != 1 || stats.TotalHits != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.MeanHitCount != 0.5 {
		t.Errorf("MeanHitCount = %v, want 0.5", stats.MeanHitCount)
	}
	if stats.ByProvider["nominatim"] != 2 {
		t.Errorf("ByProvider = %v, want nominatim: 2", stats.ByProvider)
	}
	if stats.OldestEntry == nil || !stats.OldestEntry.Equal(oldest) {
		t.Errorf("OldestEntry = %v, want %v", stats.OldestEntry, oldest)
	}
	if stats.NewestEntry == nil || !stats.NewestEntry.Equal(now) {
		t.Errorf("NewestEntry = %v, want %v", stats.NewestEntry, now)
	}
}
