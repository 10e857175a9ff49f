package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamforge/api/internal/client"
	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/provider"
	"github.com/dreamforge/api/internal/store"
)

// Runner executes jobs end to end: it drives a job through its stage
// sequence, calls the generation provider and media tools, and persists
// every transition through the store. It holds the job lock for the whole
// execution, so nothing else writes the record while a job runs.
type Runner struct {
	store    store.Store
	gen      provider.Generator
	media    provider.MediaTools
	storage  client.StorageClient // nil when artifact mirroring is disabled
	reporter *Reporter
	locks    *JobLocks
	cfg      config.PipelineConfig
}

func NewRunner(st store.Store, gen provider.Generator, media provider.MediaTools, storage client.StorageClient, reporter *Reporter, locks *JobLocks, cfg config.PipelineConfig) *Runner {
	return &Runner{
		store:    st,
		gen:      gen,
		media:    media,
		storage:  storage,
		reporter: reporter,
		locks:    locks,
		cfg:      cfg,
	}
}

// Run executes one queued job to a terminal state. A job whose record has
// been deleted (canceled) or already advanced is skipped without error.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	unlock := r.locks.Lock(jobID)
	defer unlock()

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("Job %s gone before start, skipping", jobID)
			return nil
		}
		return err
	}
	if job.Status != model.JobStatusQueued {
		log.Printf("Job %s already in status %s, skipping", jobID, job.Status)
		return nil
	}

	now := time.Now()
	job.StartedAt = &now
	if job.Options.SceneBased() {
		decompose(job)
	}
	log.Printf("Starting %s job %s (%d stages)", job.Type, job.ID, len(StageSequence(job.Type)))

	var artifacts []string
	for _, stage := range StageSequence(job.Type) {
		artifacts, err = r.runStage(ctx, job, stage, artifacts)
		if err != nil {
			return r.fail(ctx, job, err)
		}
	}
	return r.complete(ctx, job, artifacts)
}

// decompose seeds the scene bookkeeping on first entry to running. Scene
// count and order are frozen from this point on.
func decompose(job *model.Job) {
	job.ScenePrompts = append([]string(nil), job.Options.ScenePrompts...)
	job.SceneProgress = make(map[int]model.SceneState, len(job.ScenePrompts))
	for i := range job.ScenePrompts {
		job.SceneProgress[i] = model.SceneState{Status: model.SceneStatusPending}
	}
}

func (r *Runner) runStage(ctx context.Context, job *model.Job, stage model.JobStatus, in []string) ([]string, error) {
	expected := stageEstimate(job.Type, job.Options, stage, r.cfg)
	var out []string
	err := r.reporter.Track(ctx, job, stage, expected, r.stageSteps(job, stage, in), func(ctx context.Context, tr *Tracker) error {
		var ferr error
		switch stage {
		case model.JobStatusRunning:
			if job.Options.SceneBased() {
				out, ferr = r.generateScenes(ctx, job, tr)
			} else {
				out, ferr = r.generate(ctx, job, tr)
			}
		case model.JobStatusUpscaling:
			out, ferr = r.upscale(ctx, job, tr, in)
		case model.JobStatusEncoding:
			out, ferr = r.encode(ctx, job, tr, in)
		default:
			ferr = fmt.Errorf("unknown stage %s", stage)
		}
		return ferr
	})
	return out, err
}

func (r *Runner) stageSteps(job *model.Job, stage model.JobStatus, in []string) int {
	switch stage {
	case model.JobStatusRunning:
		if job.Options.SceneBased() {
			return len(job.Options.ScenePrompts)
		}
		return stepCount(job.Options)
	default:
		if len(in) > 0 {
			return len(in)
		}
		return 1
	}
}

// outputCount is how many independent artifacts the running stage produces.
func outputCount(job *model.Job) int {
	n := 1
	switch job.Type {
	case model.JobTypeImage:
		n = job.Options.NumImages
	case model.JobTypeVideo:
		n = job.Options.NumVideos
	}
	if n < 1 {
		n = 1
	}
	return n
}

// generate runs the provider calls for a non-scene job, fanning out across
// multi-output requests up to the configured parallelism.
func (r *Runner) generate(ctx context.Context, job *model.Job, tr *Tracker) ([]string, error) {
	n := outputCount(job)
	urls := make([]string, n)
	var finished int32

	g, gctx := errgroup.WithContext(ctx)
	limit := r.cfg.MaxFanOut
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			callCtx, cancel := r.providerContext(gctx)
			defer cancel()
			url, err := r.gen.Generate(callCtx, provider.Request{
				Type:    job.Type,
				Prompt:  job.Options.Prompt,
				Options: job.Options,
				Seed:    job.Options.Seed,
			})
			if err != nil {
				return &ProviderError{Stage: model.JobStatusRunning, Scene: -1, Err: err}
			}
			if url == "" {
				return &ProviderError{Stage: model.JobStatusRunning, Scene: -1, Err: errors.New("provider returned no artifact")}
			}
			urls[i] = r.mirror(gctx, url, client.ArtifactKey(job.ID, "raw", i))
			done := atomic.AddInt32(&finished, 1)
			tr.Advance(gctx, float64(done)/float64(n), fmt.Sprintf("Generated %d/%d artifacts", done, n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (r *Runner) upscale(ctx context.Context, job *model.Job, tr *Tracker, in []string) ([]string, error) {
	factor := job.Options.UpscaleFactor
	out := make([]string, len(in))
	for i, u := range in {
		if factor <= 1 {
			out[i] = u
		} else {
			callCtx, cancel := r.providerContext(ctx)
			v, err := r.media.Upscale(callCtx, u, factor)
			cancel()
			if err != nil {
				return nil, &ProviderError{Stage: model.JobStatusUpscaling, Scene: -1, Err: err}
			}
			out[i] = r.mirror(ctx, v, client.ArtifactKey(job.ID, "upscaled", i))
		}
		i, u := i, out[i]
		tr.Update(ctx, float64(i+1)/float64(len(in)), fmt.Sprintf("Upscaled %d/%d", i+1, len(in)), func(j *model.Job) {
			// Scene artifacts track the upscaled version so a later stitch
			// concatenates the same quality the outputs would carry.
			if st, ok := j.SceneProgress[i]; ok && st.Status == model.SceneStatusCompleted {
				st.ArtifactURL = u
				j.SceneProgress[i] = st
			}
		})
	}
	return out, nil
}

func (r *Runner) encode(ctx context.Context, job *model.Job, tr *Tracker, in []string) ([]string, error) {
	if job.Options.SceneBased() {
		final, err := r.stitchScenes(ctx, job)
		if err != nil {
			return nil, err
		}
		tr.Advance(ctx, 1, fmt.Sprintf("Stitched %d scenes", len(job.ScenePrompts)))
		return []string{final}, nil
	}

	format := r.cfg.VideoFormat
	out := make([]string, len(in))
	for i, u := range in {
		callCtx, cancel := r.providerContext(ctx)
		v, err := r.media.Encode(callCtx, u, format)
		cancel()
		if err != nil {
			return nil, &ProviderError{Stage: model.JobStatusEncoding, Scene: -1, Err: err}
		}
		out[i] = r.mirror(ctx, v, client.ArtifactKey(job.ID, "encoded", i))
		tr.Advance(ctx, float64(i+1)/float64(len(in)), fmt.Sprintf("Encoded %d/%d", i+1, len(in)))
	}
	return out, nil
}

func (r *Runner) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(r.cfg.ProviderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// mirror copies a provider artifact into our own storage. Mirroring is best
// effort: on failure the provider URL is kept and the job continues.
func (r *Runner) mirror(ctx context.Context, url, key string) string {
	if r.storage == nil {
		return url
	}
	mirrored, err := r.storage.Mirror(ctx, url, key)
	if err != nil {
		log.Printf("Failed to mirror artifact %s: %v", key, err)
		return url
	}
	return mirrored
}

func (r *Runner) fail(ctx context.Context, job *model.Job, cause error) error {
	msg := cause.Error()
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = &msg
	job.Outputs = nil
	job.CompletedAt = &now
	job.Progress.Stage = model.JobStatusFailed
	job.Progress.Message = msg
	if err := r.store.Put(ctx, job); err != nil {
		log.Printf("Failed to persist failure of job %s: %v", job.ID, err)
	}
	log.Printf("Job %s failed: %v", job.ID, cause)
	return cause
}

func (r *Runner) complete(ctx context.Context, job *model.Job, artifacts []string) error {
	if len(artifacts) == 0 {
		return r.fail(ctx, job, errors.New("pipeline produced no outputs"))
	}
	now := time.Now()
	job.Outputs = artifacts
	job.Manifest = buildManifest(job, r.gen.Fingerprint(), now)
	job.CompletedAt = &now
	job.Status = model.JobStatusCompleted
	job.Error = nil
	job.Progress = model.Progress{
		Stage:   model.JobStatusCompleted,
		Percent: 100,
		Message: "Job completed",
	}
	if err := r.store.Put(ctx, job); err != nil {
		log.Printf("Failed to persist completion of job %s: %v", job.ID, err)
		return err
	}
	log.Printf("Job %s completed with %d output(s)", job.ID, len(artifacts))
	return nil
}

func buildManifest(job *model.Job, fingerprint string, completedAt time.Time) *model.Manifest {
	m := &model.Manifest{
		JobID:               job.ID,
		Prompt:              job.Options.Prompt,
		Type:                job.Type,
		Settings:            job.Options,
		ProviderFingerprint: fingerprint,
		PipelineVersion:     model.PipelineVersion,
		CreatedAt:           job.CreatedAt,
		CompletedAt:         completedAt,
	}
	if job.Options.SceneBased() {
		m.ScenePrompts = append([]string(nil), job.ScenePrompts...)
		m.SceneProgress = make(map[int]model.SceneState, len(job.SceneProgress))
		for i, s := range job.SceneProgress {
			m.SceneProgress[i] = s
		}
	}
	return m
}
