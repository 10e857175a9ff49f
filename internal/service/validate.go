package service

import (
	"strings"

	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/pipeline"
)

const (
	maxPromptLen = 4000
	maxScenes    = 12
	maxOutputs   = 8
	maxSteps     = 150
)

// validateSubmit applies the semantic rules struct tags cannot express:
// type-specific options and scene decomposition constraints. It never
// mutates state.
func validateSubmit(req *model.SubmitJobRequest) error {
	typeOK := false
	for _, t := range model.ValidJobTypes {
		if req.Type == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return pipeline.Validationf("type", "unknown job type %q", req.Type)
	}

	o := req.Options
	if o.SceneBased() {
		if req.Type != model.JobTypeVideo {
			return pipeline.Validationf("options.scenePrompts", "scene prompts are only valid for video jobs")
		}
		if len(o.ScenePrompts) > maxScenes {
			return pipeline.Validationf("options.scenePrompts", "at most %d scenes per job", maxScenes)
		}
		for i, p := range o.ScenePrompts {
			if strings.TrimSpace(p) == "" {
				return pipeline.Validationf("options.scenePrompts", "scene %d prompt is empty", i)
			}
			if len(p) > maxPromptLen {
				return pipeline.Validationf("options.scenePrompts", "scene %d prompt exceeds %d characters", i, maxPromptLen)
			}
		}
	} else if strings.TrimSpace(o.Prompt) == "" {
		return pipeline.Validationf("options.prompt", "prompt is required")
	}
	if len(o.Prompt) > maxPromptLen {
		return pipeline.Validationf("options.prompt", "prompt exceeds %d characters", maxPromptLen)
	}

	if o.Width < 0 || o.Height < 0 {
		return pipeline.Validationf("options", "width and height must not be negative")
	}
	if o.Steps < 0 || o.Steps > maxSteps {
		return pipeline.Validationf("options.steps", "steps must be between 0 and %d", maxSteps)
	}
	if o.UpscaleFactor < 0 {
		return pipeline.Validationf("options.upscaleFactor", "upscale factor must not be negative")
	}

	switch req.Type {
	case model.JobTypeImage:
		if o.NumImages < 0 || o.NumImages > maxOutputs {
			return pipeline.Validationf("options.numImages", "numImages must be between 0 and %d", maxOutputs)
		}
	case model.JobTypeVideo:
		if o.NumVideos < 0 || o.NumVideos > maxOutputs {
			return pipeline.Validationf("options.numVideos", "numVideos must be between 0 and %d", maxOutputs)
		}
		if o.SceneBased() && o.NumVideos > 1 {
			return pipeline.Validationf("options.numVideos", "scene-based jobs produce a single stitched video")
		}
		if o.DurationSeconds < 0 {
			return pipeline.Validationf("options.durationSeconds", "duration must not be negative")
		}
		if o.FPS < 0 {
			return pipeline.Validationf("options.fps", "fps must not be negative")
		}
	case model.JobType3D:
		switch o.ThreeDMode {
		case "", model.ThreeDModeMesh, model.ThreeDModePointCloud, model.ThreeDModeNerf:
		default:
			return pipeline.Validationf("options.threeDMode", "unknown 3d mode %q", o.ThreeDMode)
		}
	case model.JobTypeCAD:
		switch o.CADFormat {
		case "", model.CADFormatSTEP, model.CADFormatSTL, model.CADFormatDXF:
		default:
			return pipeline.Validationf("options.cadFormat", "unknown cad format %q", o.CADFormat)
		}
	}
	return nil
}
