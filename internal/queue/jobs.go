package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// RemoveBackgroundTask is scheduled when a pending image is sent for server-side processing.
	RemoveBackgroundTask = "image:remove_background"

	taskTimeout = 5 * time.Minute
)

// RemoveBackgroundPayload tells the worker which record to process.
type RemoveBackgroundPayload struct {
	ImageID int64 `json:"image_id"`
}

// NewRemoveBackgroundTask builds the task. Failed removals are final, so the
// task is never retried.
func NewRemoveBackgroundTask(payload RemoveBackgroundPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(RemoveBackgroundTask, data, asynq.MaxRetry(0), asynq.Timeout(taskTimeout)), nil
}

// ParseRemoveBackgroundPayload decodes a task payload.
func ParseRemoveBackgroundPayload(task *asynq.Task) (RemoveBackgroundPayload, error) {
	var payload RemoveBackgroundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.ImageID <= 0 {
		return payload, fmt.Errorf("decode payload: invalid image id %d", payload.ImageID)
	}
	return payload, nil
}

// Enqueuer is the part of *asynq.Client used for dispatching.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher sends images to the asynq worker.
type AsynqDispatcher struct {
	client Enqueuer
}

func NewAsynqDispatcher(client Enqueuer) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, imageID int64) error {
	task, err := NewRemoveBackgroundTask(RemoveBackgroundPayload{ImageID: imageID})
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue remove background task: %w", err)
	}
	return nil
}

// RedisOpt builds the asynq connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}
