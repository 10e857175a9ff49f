package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/pipeline"
	"github.com/dreamforge/api/internal/queue"
	"github.com/dreamforge/api/internal/store"
)

// JobService handles job lifecycle management: admission, status reads,
// cancellation and scene regeneration. Execution itself happens in the
// worker; the service only writes records for jobs no worker holds.
type JobService struct {
	store      store.Store
	dispatcher queue.Dispatcher
	locks      *pipeline.JobLocks
	cfg        config.PipelineConfig
}

func NewJobService(st store.Store, dispatcher queue.Dispatcher, locks *pipeline.JobLocks, cfg config.PipelineConfig) *JobService {
	return &JobService{
		store:      st,
		dispatcher: dispatcher,
		locks:      locks,
		cfg:        cfg,
	}
}

// Submit validates a job request, persists the queued record and dispatches
// it. Validation failures leave no trace; a dispatch failure rolls the
// record back.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.SubmitJobResponse, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	jobID := req.ID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      req.Type,
		Options:   req.Options,
		Status:    model.JobStatusQueued,
		Progress:  model.Progress{Stage: model.JobStatusQueued, Message: "Waiting in queue"},
		CreatedAt: now,
	}

	if _, err := s.store.Get(ctx, jobID); err == nil {
		return nil, queue.ErrDuplicateJob
	}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, queue.Task{Kind: queue.TaskTypeGenerate, JobID: jobID}); err != nil {
		if derr := s.store.Delete(ctx, jobID); derr != nil {
			log.Printf("Failed to roll back job %s after dispatch error: %v", jobID, derr)
		}
		return nil, err
	}

	log.Printf("Queued %s job %s", job.Type, jobID)
	return &model.SubmitJobResponse{
		JobID:             jobID,
		Status:            model.JobStatusQueued,
		EstimatedDuration: pipeline.EstimateSeconds(job.Type, job.Options, s.cfg),
		CreatedAt:         now,
	}, nil
}

// Status returns the current view of a job.
func (s *JobService) Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	resp := &model.JobStatusResponse{
		JobID:         job.ID,
		Type:          job.Type,
		Status:        job.Status,
		Progress:      job.Progress,
		SceneProgress: job.SceneProgress,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
	if job.Status == model.JobStatusCompleted {
		resp.Outputs = job.Outputs
	}
	return resp, nil
}

// Manifest returns the durable completion record of a job. Jobs that have
// not completed have no manifest yet.
func (s *JobService) Manifest(ctx context.Context, jobID string) (*model.Manifest, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Manifest == nil || job.Status != model.JobStatusCompleted {
		return nil, pipeline.ErrJobActive
	}
	return job.Manifest, nil
}

// Cancel withdraws a queued job and deletes its record. Jobs already picked
// up by a worker are not preempted; terminal jobs cannot be canceled.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.CancelJobResponse, error) {
	unlock, ok := s.locks.TryLock(jobID)
	if !ok {
		return nil, pipeline.ErrJobActive
	}
	defer unlock()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusQueued {
		return nil, pipeline.ErrJobActive
	}

	withdrawn, err := s.dispatcher.CancelQueued(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !withdrawn {
		// Task already left the queue; the worker will observe the deleted
		// record and skip.
		log.Printf("Cancel of job %s raced with pickup", jobID)
	}
	if err := s.store.Delete(ctx, jobID); err != nil {
		return nil, err
	}
	log.Printf("Canceled job %s", jobID)
	return &model.CancelJobResponse{JobID: jobID, Canceled: true}, nil
}

// RegenerateScene accepts a regeneration request for one scene of a settled
// scene-based job. The scene entry is reset to pending before the task is
// dispatched; a scene already pending or running rejects the request.
func (s *JobService) RegenerateScene(ctx context.Context, jobID string, sceneIndex int, req *model.RegenerateSceneRequest) (*model.RegenerateSceneResponse, error) {
	unlock, ok := s.locks.TryLock(jobID)
	if !ok {
		return nil, pipeline.ErrRegenInFlight
	}
	defer unlock()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Options.SceneBased() || job.SceneProgress == nil {
		return nil, pipeline.Validationf("sceneIndex", "job %s is not scene-based", jobID)
	}
	if !job.Status.Terminal() {
		return nil, pipeline.ErrJobActive
	}
	st, ok := job.SceneProgress[sceneIndex]
	if !ok {
		return nil, pipeline.Validationf("sceneIndex", "scene %d does not exist", sceneIndex)
	}
	if st.Status == model.SceneStatusPending || st.Status == model.SceneStatusRunning {
		return nil, pipeline.ErrRegenInFlight
	}

	prevPrompt := job.ScenePrompts[sceneIndex]
	if req != nil && req.Prompt != "" {
		job.ScenePrompts[sceneIndex] = req.Prompt
	}
	job.SceneProgress[sceneIndex] = model.SceneState{Status: model.SceneStatusPending}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task := queue.Task{Kind: queue.TaskTypeRegenerate, JobID: jobID, SceneIndex: sceneIndex}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		// No task made it onto the queue; restore the scene so the job stays
		// stitchable and a later regeneration is not rejected as in-flight.
		job.ScenePrompts[sceneIndex] = prevPrompt
		job.SceneProgress[sceneIndex] = st
		if perr := s.store.Put(ctx, job); perr != nil {
			log.Printf("Failed to restore scene %d of job %s after dispatch error: %v", sceneIndex, jobID, perr)
		}
		return nil, err
	}

	log.Printf("Queued regeneration of scene %d for job %s", sceneIndex, jobID)
	return &model.RegenerateSceneResponse{
		JobID:      jobID,
		SceneIndex: sceneIndex,
		Status:     model.JobStatusQueued,
	}, nil
}
