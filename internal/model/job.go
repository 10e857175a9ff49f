package model

import "time"

// PipelineVersion identifies the orchestration pipeline that produced a
// manifest. Bumped on behavioral changes to stage sequencing or stitching.
const PipelineVersion = "2.1.0"

// Options carries the immutable generation parameters of a job. The struct
// is treated as read-only once the job has been queued.
type Options struct {
	Prompt          string   `json:"prompt,omitempty"`
	NegativePrompt  string   `json:"negativePrompt,omitempty"`
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	DurationSeconds int      `json:"durationSeconds,omitempty"`
	FPS             int      `json:"fps,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	Steps           int      `json:"steps,omitempty"`
	UpscaleFactor   int      `json:"upscaleFactor,omitempty"` // 0 = upscale stage is a no-op

	// Per-type extras
	NumImages    int        `json:"numImages,omitempty"`
	NumVideos    int        `json:"numVideos,omitempty"`
	ThreeDMode   ThreeDMode `json:"threeDMode,omitempty"`
	CADFormat    CADFormat  `json:"cadFormat,omitempty"`
	ScenePrompts []string   `json:"scenePrompts,omitempty"`
}

// SceneBased reports whether the options describe a multi-scene video job.
func (o Options) SceneBased() bool {
	return len(o.ScenePrompts) > 0
}

// Progress is the latest progress snapshot of a job. Percent is monotonically
// non-decreasing within a stage and resets to 0 on every stage transition.
type Progress struct {
	Stage       JobStatus `json:"stage"`
	Percent     int       `json:"progress"`
	CurrentStep int       `json:"currentStep,omitempty"`
	TotalSteps  int       `json:"totalSteps,omitempty"`
	ETASeconds  int       `json:"etaSeconds,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// SceneState tracks one scene of a multi-scene video job.
type SceneState struct {
	Status      SceneStatus `json:"status"`
	Progress    int         `json:"progress"`
	ArtifactURL string      `json:"artifactUrl,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Manifest is the durable summary record written when a job completes.
// External systems (billing, UI) read it after the fact.
type Manifest struct {
	JobID               string             `json:"jobId"`
	Prompt              string             `json:"prompt"`
	Type                JobType            `json:"type"`
	Settings            Options            `json:"settings"`
	ProviderFingerprint string             `json:"providerFingerprint"`
	PipelineVersion     string             `json:"pipelineVersion"`
	CreatedAt           time.Time          `json:"createdAt"`
	CompletedAt         time.Time          `json:"completedAt"`
	ScenePrompts        []string           `json:"scenePrompts,omitempty"`
	SceneProgress       map[int]SceneState `json:"sceneProgress,omitempty"`
}

// Job is the persistent unit of work driven through the pipeline.
//
// Exactly one of the following holds at any time: Outputs is non-empty and
// Status is completed; Error is set and Status is failed; or Status is a
// non-terminal stage.
type Job struct {
	ID       string   `json:"id"`
	Type     JobType  `json:"type"`
	Options  Options  `json:"options"`
	Status   JobStatus `json:"status"`
	Progress Progress `json:"progress"`
	Outputs  []string `json:"outputs,omitempty"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Error    *string  `json:"error,omitempty"`

	// ScenePrompts and SceneProgress are populated at first decomposition of
	// a scene-based job. Scene count and order never change afterwards; only
	// explicit regeneration may reset a single entry.
	ScenePrompts  []string           `json:"scenePrompts,omitempty"`
	SceneProgress map[int]SceneState `json:"sceneProgress,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the job so callers can mutate it without
// aliasing store-held state.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Outputs != nil {
		cp.Outputs = append([]string(nil), j.Outputs...)
	}
	if j.ScenePrompts != nil {
		cp.ScenePrompts = append([]string(nil), j.ScenePrompts...)
	}
	if j.SceneProgress != nil {
		cp.SceneProgress = make(map[int]SceneState, len(j.SceneProgress))
		for i, s := range j.SceneProgress {
			cp.SceneProgress[i] = s
		}
	}
	if j.Options.ScenePrompts != nil {
		cp.Options.ScenePrompts = append([]string(nil), j.Options.ScenePrompts...)
	}
	if j.Manifest != nil {
		m := *j.Manifest
		if j.Manifest.ScenePrompts != nil {
			m.ScenePrompts = append([]string(nil), j.Manifest.ScenePrompts...)
		}
		if j.Manifest.SceneProgress != nil {
			m.SceneProgress = make(map[int]SceneState, len(j.Manifest.SceneProgress))
			for i, s := range j.Manifest.SceneProgress {
				m.SceneProgress[i] = s
			}
		}
		cp.Manifest = &m
	}
	return &cp
}

// JobSnapshot is the view pushed to progress observers on every progress
// tick and stage transition.
type JobSnapshot struct {
	JobID         string             `json:"jobId"`
	Status        JobStatus          `json:"status"`
	Progress      Progress           `json:"progress"`
	SceneProgress map[int]SceneState `json:"sceneProgress,omitempty"`
	Outputs       []string           `json:"outputs,omitempty"`
	Error         *string            `json:"error,omitempty"`
}

// SnapshotOf projects a job into its observer view. Outputs are exposed only
// once the job is terminal.
func SnapshotOf(j *Job) JobSnapshot {
	snap := JobSnapshot{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
	}
	if j.SceneProgress != nil {
		snap.SceneProgress = make(map[int]SceneState, len(j.SceneProgress))
		for i, s := range j.SceneProgress {
			snap.SceneProgress[i] = s
		}
	}
	if j.Status == JobStatusCompleted {
		snap.Outputs = append([]string(nil), j.Outputs...)
	}
	return snap
}
