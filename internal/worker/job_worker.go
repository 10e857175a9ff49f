package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/dreamforge/api/internal/pipeline"
	"github.com/dreamforge/api/internal/queue"
)

// JobWorker bridges the task queue to the pipeline runner. One instance
// serves both task types; concurrency is bounded by the asynq server, not
// here.
type JobWorker struct {
	runner *pipeline.Runner
}

func NewJobWorker(runner *pipeline.Runner) *JobWorker {
	return &JobWorker{runner: runner}
}

// ProcessGenerate handles jobs:generate tasks.
func (w *JobWorker) ProcessGenerate(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	log.Printf("Picked up job %s", task.JobID)
	return w.runner.Run(ctx, task.JobID)
}

// ProcessRegenerate handles jobs:regenerate tasks.
func (w *JobWorker) ProcessRegenerate(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	log.Printf("Picked up scene %d regeneration for job %s", task.SceneIndex, task.JobID)
	return w.runner.RunScene(ctx, task.JobID, task.SceneIndex)
}
