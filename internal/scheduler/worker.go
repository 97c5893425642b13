package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
)

// Sweeper is the slice of the geocoding service the worker needs.
type Sweeper interface {
	CleanupExpired(ctx context.Context, batchSize int) (int64, error)
	CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// Worker consumes cache sweep tasks from the shared queue.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		sweeper: sweeper,
		log:     log,
	}

	mux.HandleFunc(TaskCacheSweep, w.handleCacheSweep)

	return w, nil
}

func (w *Worker) handleCacheSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCacheSweepPayload(task)
	if err != nil {
		return err
	}

	var removed int64
	if payload.OlderThanHours > 0 {
		cutoff := time.Now().Add(-time.Duration(payload.OlderThanHours) * time.Hour)
		removed, err = w.sweeper.CleanupOlderThan(ctx, cutoff, payload.BatchSize)
	} else {
		removed, err = w.sweeper.CleanupExpired(ctx, payload.BatchSize)
	}
	if err != nil {
		return err
	}

	if removed > 0 {
		w.log.Info("cache sweep completed", "removed", removed, "olderThanHours", payload.OlderThanHours)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
