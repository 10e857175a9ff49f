package pipeline

import (
	"time"

	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/model"
)

const defaultSteps = 30

// StageSequence returns the ordered non-terminal stages a job of the given
// type passes through. Completion is implicit after the last stage.
func StageSequence(t model.JobType) []model.JobStatus {
	switch t {
	case model.JobTypeVideo:
		return []model.JobStatus{model.JobStatusRunning, model.JobStatusUpscaling, model.JobStatusEncoding}
	case model.JobType3D:
		return []model.JobStatus{model.JobStatusRunning}
	default: // image, cad
		return []model.JobStatus{model.JobStatusRunning, model.JobStatusUpscaling}
	}
}

func stepCount(o model.Options) int {
	if o.Steps > 0 {
		return o.Steps
	}
	return defaultSteps
}

func generationEstimate(o model.Options, cfg config.PipelineConfig) time.Duration {
	d := time.Duration(stepCount(o)*cfg.StepMillis) * time.Millisecond
	if o.SceneBased() {
		d *= time.Duration(len(o.ScenePrompts))
	}
	return d
}

func stageEstimate(t model.JobType, o model.Options, stage model.JobStatus, cfg config.PipelineConfig) time.Duration {
	switch stage {
	case model.JobStatusRunning:
		return generationEstimate(o, cfg)
	case model.JobStatusUpscaling:
		return time.Duration(cfg.UpscaleSeconds) * time.Second
	case model.JobStatusEncoding:
		return time.Duration(cfg.EncodeSeconds) * time.Second
	default:
		return 0
	}
}

// EstimateSeconds is the submit-time estimate of end-to-end job duration,
// returned to clients before the job has started.
func EstimateSeconds(t model.JobType, o model.Options, cfg config.PipelineConfig) int {
	var total time.Duration
	for _, stage := range StageSequence(t) {
		total += stageEstimate(t, o, stage, cfg)
	}
	secs := int(total / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
