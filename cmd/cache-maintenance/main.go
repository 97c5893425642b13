// Command cache-maintenance runs one-shot geocode cache operations against
// the database: sweep expired entries, purge old ones, or print stats.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"coverage_backend/internal/geocoding/cache"
	"coverage_backend/platform/config"
	"coverage_backend/platform/db"
	"coverage_backend/platform/logger"
)

func main() {
	var (
		mode           = flag.String("mode", "sweep", "sweep | purge | stats")
		batchSize      = flag.Int("batch", 500, "max entries removed per pass")
		olderThanHours = flag.Int("older-than-hours", 0, "purge cutoff in hours (purge mode)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	store := cache.NewPostgres(pool)

	switch *mode {
	case "sweep":
		total := sweepAll(ctx, log, *batchSize, store.SweepExpired)
		log.Info("sweep complete", "removed", total)

	case "purge":
		if *olderThanHours <= 0 {
			fmt.Fprintln(os.Stderr, "purge mode requires -older-than-hours > 0")
			os.Exit(2)
		}
		cutoff := time.Now().Add(-time.Duration(*olderThanHours) * time.Hour)
		total := sweepAll(ctx, log, *batchSize, func(ctx context.Context, batch int) (int64, error) {
			return store.SweepOlderThan(ctx, cutoff, batch)
		})
		log.Info("purge complete", "removed", total, "olderThanHours", *olderThanHours)

	case "stats":
		stats, err := store.Stats(ctx)
		if err != nil {
			log.Error("failed to read cache stats", "error", err)
			os.Exit(1)
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Error("failed to encode cache stats", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

// sweepAll repeats batch-limited passes until a pass removes nothing.
func sweepAll(ctx context.Context, log *logger.Logger, batchSize int, pass func(context.Context, int) (int64, error)) int64 {
	var total int64
	for {
		removed, err := pass(ctx, batchSize)
		if err != nil {
			log.Error("sweep pass failed", "error", err)
			os.Exit(1)
		}
		total += removed
		if removed < int64(batchSize) {
			return total
		}
	}
}
