// Package queue dispatches job execution tasks onto the worker queue. The
// queue drains with a bounded worker pool (one worker by default, giving
// strict FIFO single-flight execution) and deduplicates by task id so the
// same job is never scheduled twice.
package queue

import (
	"context"
	"errors"
)

const (
	TaskTypeGenerate   = "jobs:generate"
	TaskTypeRegenerate = "jobs:regenerate"
)

// ErrQueueFull is returned when backpressure rejects a new task because too
// many tasks are already pending.
var ErrQueueFull = errors.New("job queue is full")

// ErrDuplicateJob is returned when a task with the same id is already queued
// or running.
var ErrDuplicateJob = errors.New("job already queued")

// Task describes one unit of work for the worker pool.
type Task struct {
	Kind       string `json:"kind"`
	JobID      string `json:"jobId"`
	SceneIndex int    `json:"sceneIndex,omitempty"`
}

// Dispatcher enqueues tasks and withdraws queued ones.
type Dispatcher interface {
	// Dispatch schedules the task. Returns ErrQueueFull under backpressure
	// and ErrDuplicateJob when an identical task is already in flight.
	Dispatch(ctx context.Context, task Task) error

	// CancelQueued removes a still-queued generate task for the job. It
	// reports false when the task has already been picked up or does not
	// exist; a running job cannot be withdrawn.
	CancelQueued(ctx context.Context, jobID string) (bool, error)
}
