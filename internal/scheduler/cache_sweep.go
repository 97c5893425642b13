package scheduler

import (
	"context"
	"time"

	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
)

const (
	defaultSweepInterval  = 15 * time.Minute
	defaultSweepBatchSize = 500
)

// CacheSweepDispatcher periodically enqueues sweep tasks for the worker
// pool. It runs in the scheduler binary, not in the API.
type CacheSweepDispatcher struct {
	client    *Client
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewCacheSweepDispatcher(cfg config.SchedulerConfig, client *Client, log *logger.Logger) *CacheSweepDispatcher {
	interval := cfg.GetCacheSweepInterval()
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	batchSize := cfg.GetCacheSweepBatchSize()
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	return &CacheSweepDispatcher{
		client:    client,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (d *CacheSweepDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	d.enqueue(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.enqueue(ctx)
		}
	}
}

func (d *CacheSweepDispatcher) enqueue(ctx context.Context) {
	err := d.client.EnqueueCacheSweep(ctx, CacheSweepPayload{BatchSize: d.batchSize})
	if err != nil {
		d.log.Warn("failed to enqueue cache sweep", "error", err)
	}
}

// LocalSweeper runs sweep passes in-process on a ticker, for deployments
// without Redis. The API binary starts one when no scheduler is deployed.
type LocalSweeper struct {
	sweeper   Sweeper
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewLocalSweeper(cfg config.SchedulerConfig, sweeper Sweeper, log *logger.Logger) *LocalSweeper {
	interval := cfg.GetCacheSweepInterval()
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	batchSize := cfg.GetCacheSweepBatchSize()
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	return &LocalSweeper{
		sweeper:   sweeper,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *LocalSweeper) Run(ctx context.Context) {
	if s == nil || s.sweeper == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *LocalSweeper) sweep(ctx context.Context) {
	removed, err := s.sweeper.CleanupExpired(ctx, s.batchSize)
	if err != nil {
		s.log.Warn("cache sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.log.Info("cache sweep removed expired entries", "removed", removed)
	}
}
