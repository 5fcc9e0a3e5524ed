package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskResolverWarmup is the task type for re-priming the decision cache.
	TaskResolverWarmup = "authz:resolver_warmup"
)

// ResolverWarmupPayload bounds how many users a warmup run touches.
type ResolverWarmupPayload struct {
	UserLimit int `json:"user_limit"`
}

// NewResolverWarmupTask constructs an Asynq task.
func NewResolverWarmupTask(payload ResolverWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskResolverWarmup, data), nil
}
