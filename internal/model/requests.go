package model

import "time"

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	ID      string  `json:"id,omitempty" validate:"omitempty,max=64"`
	Type    JobType `json:"type" validate:"required,oneof=image video 3d cad"`
	Options Options `json:"options" validate:"required"`
}

// SubmitJobResponse acknowledges an accepted submission.
type SubmitJobResponse struct {
	JobID             string    `json:"jobId"`
	Status            JobStatus `json:"status"`
	EstimatedDuration int       `json:"estimatedDuration"` // seconds
	CreatedAt         time.Time `json:"createdAt"`
}

// JobStatusResponse is the body of GET /api/jobs/:jobId/status.
type JobStatusResponse struct {
	JobID         string             `json:"jobId"`
	Type          JobType            `json:"type"`
	Status        JobStatus          `json:"status"`
	Progress      Progress           `json:"progress"`
	SceneProgress map[int]SceneState `json:"sceneProgress,omitempty"`
	Outputs       []string           `json:"outputs,omitempty"`
	Error         *string            `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
}

// CancelJobResponse is the body of POST /api/jobs/:jobId/cancel.
type CancelJobResponse struct {
	JobID    string `json:"jobId"`
	Canceled bool   `json:"canceled"`
}

// RegenerateSceneRequest is the body of
// POST /api/jobs/:jobId/scenes/:sceneIndex/regenerate. An empty prompt keeps
// the original scene prompt.
type RegenerateSceneRequest struct {
	Prompt string `json:"prompt,omitempty" validate:"omitempty,max=4000"`
}

// RegenerateSceneResponse acknowledges an accepted regeneration.
type RegenerateSceneResponse struct {
	JobID      string    `json:"jobId"`
	SceneIndex int       `json:"sceneIndex"`
	Status     JobStatus `json:"status"`
}
