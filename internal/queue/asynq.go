package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// QueueName is the single asynq queue all job tasks flow through. Draining
// it with one worker preserves submission order.
const QueueName = "jobs"

// AsynqDispatcher schedules tasks on Redis via asynq. Task ids double as the
// dedupe key: a generate task is keyed by job id, a regenerate task by job
// id plus scene index.
type AsynqDispatcher struct {
	client     *asynq.Client
	inspector  *asynq.Inspector
	maxPending int
	retention  time.Duration
}

func NewAsynqDispatcher(client *asynq.Client, inspector *asynq.Inspector, maxPending int, retention time.Duration) *AsynqDispatcher {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &AsynqDispatcher{
		client:     client,
		inspector:  inspector,
		maxPending: maxPending,
		retention:  retention,
	}
}

func taskID(task Task) string {
	if task.Kind == TaskTypeRegenerate {
		return fmt.Sprintf("%s:scene:%d", task.JobID, task.SceneIndex)
	}
	return task.JobID
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, task Task) error {
	if d.maxPending > 0 {
		// Best effort backpressure; the queue may not exist yet on a fresh
		// Redis, which is not an error.
		if qi, err := d.inspector.GetQueueInfo(QueueName); err == nil && qi.Pending >= d.maxPending {
			return ErrQueueFull
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if task.Kind == TaskTypeRegenerate {
		// With MaxRetry 0 a failed regeneration lands in the archive, which
		// keeps its task id reserved. Clear any settled prior run of this
		// scene so the id is free again; a pending or running regeneration
		// never reaches this point because admission rejects it first.
		err := d.inspector.DeleteTask(QueueName, taskID(task))
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return fmt.Errorf("failed to clear prior regeneration task: %w", err)
		}
	}

	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(task.Kind, data), d.enqueueOptions(task)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicateJob
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (d *AsynqDispatcher) enqueueOptions(task Task) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.TaskID(taskID(task)),
		asynq.MaxRetry(0),
	}
	// Generate tasks are retained as the dedupe window for duplicate
	// submissions. Regenerate tasks are not: retention would hold the scene's
	// task id for the whole window and block the next regeneration.
	if task.Kind != TaskTypeRegenerate {
		opts = append(opts, asynq.Retention(d.retention))
	}
	return opts
}

func (d *AsynqDispatcher) CancelQueued(ctx context.Context, jobID string) (bool, error) {
	err := d.inspector.DeleteTask(QueueName, jobID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete queued task: %w", err)
	}
}
