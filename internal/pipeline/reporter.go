package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/store"
)

// maxTicksPerStage bounds the ticker so a hung provider call cannot emit
// progress updates forever.
const maxTicksPerStage = 1200

// Reporter persists staged progress updates while a job executes. Each stage
// runs under Track, which combines wall-clock interpolation against the
// expected duration with explicit advances from the stage body. Reported
// percent is monotonic within a stage and capped at 99 until the stage body
// returns without error.
type Reporter struct {
	store store.Store
	tick  time.Duration
}

func NewReporter(st store.Store, tick time.Duration) *Reporter {
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	return &Reporter{store: st, tick: tick}
}

// Tracker is handed to a stage body so it can publish progress and mutate the
// job record under the reporter's lock.
type Tracker struct {
	mu         sync.Mutex
	reporter   *Reporter
	job        *model.Job
	stage      model.JobStatus
	expected   time.Duration
	totalSteps int
	started    time.Time
	floor      float64
	message    string
}

// Track runs fn as the given stage of job, persisting the stage transition
// before fn starts and emitting interpolated progress on every tick until fn
// returns. On success the stage is flushed at exactly 100 percent.
func (r *Reporter) Track(ctx context.Context, job *model.Job, stage model.JobStatus, expected time.Duration, totalSteps int, fn func(ctx context.Context, tr *Tracker) error) error {
	if totalSteps < 1 {
		totalSteps = 1
	}
	tr := &Tracker{
		reporter:   r,
		job:        job,
		stage:      stage,
		expected:   expected,
		totalSteps: totalSteps,
		started:    time.Now(),
		message:    stageMessage(stage),
	}
	tr.enter(ctx)

	tickCtx, stopTicks := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.tickLoop(tickCtx)
	}()

	err := fn(ctx, tr)
	stopTicks()
	<-done
	if err != nil {
		return err
	}
	tr.finish(ctx)
	return nil
}

func (t *Tracker) enter(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.Status = t.stage
	t.job.Progress = model.Progress{
		Stage:      t.stage,
		TotalSteps: t.totalSteps,
		ETASeconds: int(t.expected / time.Second),
		Message:    t.message,
	}
	t.persist(ctx)
}

func (t *Tracker) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(t.reporter.tick)
	defer ticker.Stop()
	for i := 0; i < maxTicksPerStage; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			t.emit(ctx)
			t.mu.Unlock()
		}
	}
}

// Advance raises the progress floor to frac (in [0,1]) and emits an update.
// Ticks between advances keep interpolating past the floor, so callers only
// need to advance on coarse milestones.
func (t *Tracker) Advance(ctx context.Context, frac float64, msg string) {
	t.Update(ctx, frac, msg, nil)
}

// Update is Advance plus a job mutation applied under the tracker lock, so
// stage bodies can touch shared job state (scene entries) without racing the
// ticker's snapshot writes.
func (t *Tracker) Update(ctx context.Context, frac float64, msg string, mutate func(*model.Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frac > t.floor {
		t.floor = frac
	}
	if msg != "" {
		t.message = msg
	}
	if mutate != nil {
		mutate(t.job)
	}
	t.emit(ctx)
}

// emit recomputes percent/ETA and persists. Callers hold t.mu.
func (t *Tracker) emit(ctx context.Context) {
	frac := t.floor
	if t.expected > 0 {
		elapsed := float64(time.Since(t.started)) / float64(t.expected)
		if elapsed > frac {
			frac = elapsed
		}
	}
	if frac > 1 {
		frac = 1
	}
	pct := int(frac * 100)
	if pct > 99 {
		pct = 99
	}
	if t.job.Progress.Stage == t.stage && pct < t.job.Progress.Percent {
		pct = t.job.Progress.Percent
	}
	eta := int((t.expected - time.Since(t.started)) / time.Second)
	if eta < 0 {
		eta = 0
	}
	t.job.Progress = model.Progress{
		Stage:       t.stage,
		Percent:     pct,
		CurrentStep: pct * t.totalSteps / 100,
		TotalSteps:  t.totalSteps,
		ETASeconds:  eta,
		Message:     t.message,
	}
	t.persist(ctx)
}

func (t *Tracker) finish(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.Progress = model.Progress{
		Stage:       t.stage,
		Percent:     100,
		CurrentStep: t.totalSteps,
		TotalSteps:  t.totalSteps,
		Message:     stageDoneMessage(t.stage),
	}
	t.persist(ctx)
}

func (t *Tracker) persist(ctx context.Context) {
	if err := t.reporter.store.Put(ctx, t.job); err != nil {
		log.Printf("Failed to persist progress for job %s: %v", t.job.ID, err)
	}
}

func stageMessage(stage model.JobStatus) string {
	switch stage {
	case model.JobStatusRunning:
		return "Generating"
	case model.JobStatusUpscaling:
		return "Upscaling"
	case model.JobStatusEncoding:
		return "Encoding"
	default:
		return string(stage)
	}
}

func stageDoneMessage(stage model.JobStatus) string {
	switch stage {
	case model.JobStatusRunning:
		return "Generation complete"
	case model.JobStatusUpscaling:
		return "Upscaling complete"
	case model.JobStatusEncoding:
		return "Encoding complete"
	default:
		return string(stage) + " complete"
	}
}
