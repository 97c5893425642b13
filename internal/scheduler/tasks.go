package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCacheSweep = "geocode.cache.sweep"

// CacheSweepPayload drives one sweep pass. A zero OlderThanHours sweeps
// expired entries only; a positive value purges everything created before
// the cutoff regardless of TTL.
type CacheSweepPayload struct {
	BatchSize      int `json:"batchSize"`
	OlderThanHours int `json:"olderThanHours,omitempty"`
}

func NewCacheSweepTask(payload CacheSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheSweep, data), nil
}

func ParseCacheSweepPayload(task *asynq.Task) (CacheSweepPayload, error) {
	var payload CacheSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CacheSweepPayload{}, err
	}
	return payload, nil
}
