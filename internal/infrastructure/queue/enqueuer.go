package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
)

// TaskEnqueuer implements generation.Enqueuer on top of the Asynq client
type TaskEnqueuer struct {
	client      *AsynqClient
	maxRetries  int
	pollTimeout time.Duration
}

// NewTaskEnqueuer creates the generation task enqueuer. pollTimeout bounds
// how long the worker-side poll loop may run for one pitch job.
func NewTaskEnqueuer(client *AsynqClient, maxRetries int, pollTimeout time.Duration) *TaskEnqueuer {
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Minute
	}
	return &TaskEnqueuer{
		client:      client,
		maxRetries:  maxRetries,
		pollTimeout: pollTimeout,
	}
}

// EnqueuePitchPoll queues the agent poll loop for a submitted pitch job
func (e *TaskEnqueuer) EnqueuePitchPoll(ctx context.Context, task generation.PitchPollTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal pitch poll task: %w", err)
	}

	_, err = e.client.EnqueueContext(ctx,
		asynq.NewTask(TaskTypePitchPoll, payload),
		asynq.Queue("critical"),
		asynq.MaxRetry(e.maxRetries),
		asynq.Timeout(e.pollTimeout),
	)
	return err
}

// EnqueueGuidance queues one advisory guidance request
func (e *TaskEnqueuer) EnqueueGuidance(ctx context.Context, task generation.GuidanceTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal guidance task: %w", err)
	}

	_, err = e.client.EnqueueContext(ctx,
		asynq.NewTask(TaskTypeGuidance, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(e.maxRetries),
		asynq.Timeout(2*time.Minute),
	)
	return err
}
