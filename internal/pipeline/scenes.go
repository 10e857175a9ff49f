package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dreamforge/api/internal/client"
	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/provider"
	"github.com/dreamforge/api/internal/store"
)

// generateScenes runs the per-scene provider calls of a scene-based video
// job, strictly in index order. Every scene shares the seed derived from the
// job id, and each scene after the first receives the previous scene's
// artifact as visual reference. A scene failure stops the sequence; scenes
// already completed keep their artifacts for later regeneration.
func (r *Runner) generateScenes(ctx context.Context, job *model.Job, tr *Tracker) ([]string, error) {
	n := len(job.ScenePrompts)
	seed := DeriveSeed(job.ID)
	urls := make([]string, n)

	for i := 0; i < n; i++ {
		url, err := r.generateScene(ctx, job, tr, i, seed, float64(i)/float64(n), float64(i+1)/float64(n))
		if err != nil {
			return nil, err
		}
		urls[i] = url
	}
	return urls, nil
}

// generateScene runs one scene from pending to completed or failed. startFrac
// and doneFrac position the scene inside the stage's overall progress.
func (r *Runner) generateScene(ctx context.Context, job *model.Job, tr *Tracker, index int, seed int64, startFrac, doneFrac float64) (string, error) {
	n := len(job.ScenePrompts)
	started := time.Now()
	tr.Update(ctx, startFrac, fmt.Sprintf("Generating scene %d/%d", index+1, n), func(j *model.Job) {
		st := j.SceneProgress[index]
		st.Status = model.SceneStatusRunning
		st.Progress = 0
		st.StartedAt = &started
		st.CompletedAt = nil
		j.SceneProgress[index] = st
	})

	ref := ""
	if prev, ok := job.SceneProgress[index-1]; ok && prev.Status == model.SceneStatusCompleted {
		ref = prev.ArtifactURL
	}

	callCtx, cancel := r.providerContext(ctx)
	url, err := r.gen.Generate(callCtx, provider.Request{
		Type:         job.Type,
		Prompt:       job.ScenePrompts[index],
		Options:      job.Options,
		ReferenceURL: ref,
		Seed:         &seed,
	})
	cancel()
	if err == nil && url == "" {
		err = errors.New("provider returned no artifact")
	}
	if err != nil {
		tr.Update(ctx, startFrac, fmt.Sprintf("Scene %d/%d failed", index+1, n), func(j *model.Job) {
			st := j.SceneProgress[index]
			st.Status = model.SceneStatusFailed
			j.SceneProgress[index] = st
		})
		return "", &ProviderError{Stage: model.JobStatusRunning, Scene: index, Err: err}
	}

	url = r.mirror(ctx, url, client.SceneArtifactKey(job.ID, index))
	completed := time.Now()
	tr.Update(ctx, doneFrac, fmt.Sprintf("Scene %d/%d completed", index+1, n), func(j *model.Job) {
		st := j.SceneProgress[index]
		st.Status = model.SceneStatusCompleted
		st.Progress = 100
		st.ArtifactURL = url
		st.CompletedAt = &completed
		j.SceneProgress[index] = st
	})
	return url, nil
}

// upscaleScene upscales one completed scene's artifact in place, the same
// rewrite the upscaling stage applies to every scene of a fresh run.
func (r *Runner) upscaleScene(ctx context.Context, job *model.Job, tr *Tracker, index int) error {
	st := job.SceneProgress[index]
	callCtx, cancel := r.providerContext(ctx)
	v, err := r.media.Upscale(callCtx, st.ArtifactURL, job.Options.UpscaleFactor)
	cancel()
	if err != nil {
		return &ProviderError{Stage: model.JobStatusUpscaling, Scene: index, Err: err}
	}
	v = r.mirror(ctx, v, client.ArtifactKey(job.ID, "upscaled", index))
	tr.Update(ctx, 1, fmt.Sprintf("Upscaled scene %d/%d", index+1, len(job.ScenePrompts)), func(j *model.Job) {
		if s, ok := j.SceneProgress[index]; ok && s.Status == model.SceneStatusCompleted {
			s.ArtifactURL = v
			j.SceneProgress[index] = s
		}
	})
	return nil
}

// RunScene regenerates a single scene of an already settled scene-based job
// and re-stitches the final output. The scene entry has been reset to
// pending by the admission path; anything else means this task is stale.
func (r *Runner) RunScene(ctx context.Context, jobID string, sceneIndex int) error {
	unlock := r.locks.Lock(jobID)
	defer unlock()

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("Job %s gone before scene regeneration, skipping", jobID)
			return nil
		}
		return err
	}
	st, ok := job.SceneProgress[sceneIndex]
	if !ok || st.Status != model.SceneStatusPending {
		log.Printf("Scene %d of job %s not pending regeneration, skipping", sceneIndex, jobID)
		return nil
	}

	// Back into the state machine: outputs are withdrawn until the new
	// stitch lands.
	job.Outputs = nil
	job.Error = nil
	job.CompletedAt = nil
	log.Printf("Regenerating scene %d of job %s", sceneIndex, jobID)

	seed := DeriveSeed(job.ID)
	expected := time.Duration(stepCount(job.Options)*r.cfg.StepMillis) * time.Millisecond
	err = r.reporter.Track(ctx, job, model.JobStatusRunning, expected, 1, func(ctx context.Context, tr *Tracker) error {
		_, serr := r.generateScene(ctx, job, tr, sceneIndex, seed, 0, 1)
		return serr
	})
	if err != nil {
		return r.fail(ctx, job, err)
	}

	// The stitch must consume the same quality the original run produced, so
	// a regenerated scene goes through the upscale pass before re-stitching.
	if job.Options.UpscaleFactor > 1 {
		upExpected := time.Duration(r.cfg.UpscaleSeconds) * time.Second
		err = r.reporter.Track(ctx, job, model.JobStatusUpscaling, upExpected, 1, func(ctx context.Context, tr *Tracker) error {
			return r.upscaleScene(ctx, job, tr, sceneIndex)
		})
		if err != nil {
			return r.fail(ctx, job, err)
		}
	}

	var final string
	encodeExpected := time.Duration(r.cfg.EncodeSeconds) * time.Second
	err = r.reporter.Track(ctx, job, model.JobStatusEncoding, encodeExpected, 1, func(ctx context.Context, tr *Tracker) error {
		f, serr := r.stitchScenes(ctx, job)
		if serr != nil {
			return serr
		}
		final = f
		tr.Advance(ctx, 1, fmt.Sprintf("Stitched %d scenes", len(job.ScenePrompts)))
		return nil
	})
	if err != nil {
		return r.fail(ctx, job, err)
	}
	return r.complete(ctx, job, []string{final})
}
