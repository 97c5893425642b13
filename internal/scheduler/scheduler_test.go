package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"

	"coverage_backend/platform/logger"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string                  { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool            { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string            { return "maintenance" }
func (c testSchedulerConfig) GetAsynqConcurrency() int             { return 2 }
func (c testSchedulerConfig) GetCacheSweepInterval() time.Duration { return 10 * time.Millisecond }
func (c testSchedulerConfig) GetCacheSweepBatchSize() int          { return 100 }

type fakeSweeper struct {
	expired   int
	purged    int
	lastBatch int
}

func (f *fakeSweeper) CleanupExpired(_ context.Context, batchSize int) (int64, error) {
	f.expired++
	f.lastBatch = batchSize
	return 3, nil
}

func (f *fakeSweeper) CleanupOlderThan(_ context.Context, _ time.Time, batchSize int) (int64, error) {
	f.purged++
	f.lastBatch = batchSize
	return 7, nil
}

func TestCacheSweepPayloadRoundTrip(t *testing.T) {
	task, err := NewCacheSweepTask(CacheSweepPayload{BatchSize: 250, OlderThanHours: 48})
	if err != nil {
		t.Fatalf("NewCacheSweepTask() error = %v", err)
	}
	if task.Type() != TaskCacheSweep {
		t.Errorf("task type = %q, want %q", task.Type(), TaskCacheSweep)
	}

	payload, err := ParseCacheSweepPayload(task)
	if err != nil {
		t.Fatalf("ParseCacheSweepPayload() error = %v", err)
	}
	if payload.BatchSize != 250 || payload.OlderThanHours != 48 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHandleCacheSweepDispatch(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := &Worker{sweeper: sweeper, log: logger.New("test")}

	task, err := NewCacheSweepTask(CacheSweepPayload{BatchSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleCacheSweep(context.Background(), task); err != nil {
		t.Fatalf("handleCacheSweep() error = %v", err)
	}
	if sweeper.expired != 1 || sweeper.purged != 0 {
		t.Errorf("expired=%d purged=%d, want expired sweep only", sweeper.expired, sweeper.purged)
	}
	if sweeper.lastBatch != 100 {
		t.Errorf("batchSize = %d, want 100", sweeper.lastBatch)
	}

	task, err = NewCacheSweepTask(CacheSweepPayload{BatchSize: 100, OlderThanHours: 24})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleCacheSweep(context.Background(), task); err != nil {
		t.Fatalf("handleCacheSweep() error = %v", err)
	}
	if sweeper.purged != 1 {
		t.Errorf("purged=%d, want 1 after cutoff payload", sweeper.purged)
	}
}

func TestClientEnqueuesOntoConfiguredQueue(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testSchedulerConfig{redisURL: "redis://" + srv.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	if err := client.EnqueueCacheSweep(context.Background(), CacheSweepPayload{BatchSize: 500}); err != nil {
		t.Fatalf("EnqueueCacheSweep() error = %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks("maintenance")
	if err != nil {
		t.Fatalf("ListPendingTasks() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending tasks, want 1", len(pending))
	}
	if pending[0].Type != TaskCacheSweep {
		t.Errorf("task type = %q, want %q", pending[0].Type, TaskCacheSweep)
	}
}

func TestClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Error("NewClient() accepted an empty redis url")
	}
}
