package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/store"
)

// completedSceneJob runs a scene job to completion and returns it.
func completedSceneJob(t *testing.T, runner *Runner, st *store.MemoryStore, id string) *model.Job {
	t.Helper()
	if err := runner.Run(context.Background(), id); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}
	job := getJob(t, st, id)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("setup: expected completed job, got %s", job.Status)
	}
	return job
}

func TestRunSceneRegeneratesAndRestitches(t *testing.T) {
	gen := &stubGenerator{}
	media := &stubMedia{}
	runner, st := newTestRunner(t, gen, media)

	queuedJob(t, st, "job-regen", model.JobTypeVideo, sceneOptions("a", "b", "c"))
	before := completedSceneJob(t, runner, st, "job-regen")
	oldOutput := before.Outputs[0]
	oldScene1 := before.SceneProgress[1].ArtifactURL

	// Admission resets the target scene to pending, optionally with a new
	// prompt, before the task is dispatched.
	before.ScenePrompts[1] = "the chase, but at night"
	before.SceneProgress[1] = model.SceneState{Status: model.SceneStatusPending}
	if err := st.Put(context.Background(), before); err != nil {
		t.Fatalf("failed to reset scene: %v", err)
	}

	if err := runner.RunScene(context.Background(), "job-regen", 1); err != nil {
		t.Fatalf("regeneration failed: %v", err)
	}

	job := getJob(t, st, "job-regen")
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed after regen, got %s", job.Status)
	}
	if len(job.Outputs) != 1 {
		t.Fatalf("expected single stitched output, got %d", len(job.Outputs))
	}
	if job.Outputs[0] == oldOutput {
		t.Error("output must be replaced by the new stitch")
	}
	if job.SceneProgress[1].ArtifactURL == oldScene1 {
		t.Error("regenerated scene must have a new artifact")
	}
	if job.SceneProgress[1].Status != model.SceneStatusCompleted {
		t.Errorf("regenerated scene must be completed, got %s", job.SceneProgress[1].Status)
	}

	// Untouched scenes keep their artifacts; the new stitch concatenates
	// them with the fresh scene in index order.
	if job.SceneProgress[0].ArtifactURL != before.SceneProgress[0].ArtifactURL {
		t.Error("scene 0 artifact must be untouched")
	}
	if job.SceneProgress[2].ArtifactURL != before.SceneProgress[2].ArtifactURL {
		t.Error("scene 2 artifact must be untouched")
	}
	if len(media.stitchInputs) != 2 {
		t.Fatalf("expected a second stitch, got %d", len(media.stitchInputs))
	}
	second := media.stitchInputs[1]
	if second[0] != job.SceneProgress[0].ArtifactURL || second[1] != job.SceneProgress[1].ArtifactURL || second[2] != job.SceneProgress[2].ArtifactURL {
		t.Errorf("stitch inputs out of order: %v", second)
	}

	// The regenerated scene saw the new prompt and scene 0 as reference.
	reqs := gen.requests()
	last := reqs[len(reqs)-1]
	if last.Prompt != "the chase, but at night" {
		t.Errorf("expected replacement prompt, got %q", last.Prompt)
	}
	if last.ReferenceURL != job.SceneProgress[0].ArtifactURL {
		t.Errorf("expected scene 0 reference, got %q", last.ReferenceURL)
	}
	if last.Seed == nil || *last.Seed != DeriveSeed("job-regen") {
		t.Error("regeneration must reuse the job seed")
	}

	// Manifest reflects the updated prompt and scene states.
	if job.Manifest == nil || job.Manifest.ScenePrompts[1] != "the chase, but at night" {
		t.Error("manifest must carry the updated scene prompt")
	}
}

func TestRunSceneUpscalesBeforeRestitch(t *testing.T) {
	gen := &stubGenerator{}
	media := &stubMedia{}
	runner, st := newTestRunner(t, gen, media)

	opts := sceneOptions("a", "b", "c")
	opts.UpscaleFactor = 2
	queuedJob(t, st, "job-up", model.JobTypeVideo, opts)
	before := completedSceneJob(t, runner, st, "job-up")

	before.SceneProgress[1] = model.SceneState{Status: model.SceneStatusPending}
	if err := st.Put(context.Background(), before); err != nil {
		t.Fatalf("failed to reset scene: %v", err)
	}
	upscalesBefore := media.upscaled

	if err := runner.RunScene(context.Background(), "job-up", 1); err != nil {
		t.Fatalf("regeneration failed: %v", err)
	}

	if media.upscaled != upscalesBefore+1 {
		t.Errorf("expected one upscale for the regenerated scene, got %d", media.upscaled-upscalesBefore)
	}

	// The fresh scene artifact is upscaled in place, so the new stitch
	// concatenates the same quality on every input.
	job := getJob(t, st, "job-up")
	if !strings.HasSuffix(job.SceneProgress[1].ArtifactURL, "?upscaled") {
		t.Errorf("regenerated scene artifact not upscaled: %q", job.SceneProgress[1].ArtifactURL)
	}
	if len(media.stitchInputs) != 2 {
		t.Fatalf("expected a second stitch, got %d", len(media.stitchInputs))
	}
	for i, u := range media.stitchInputs[1] {
		if !strings.HasSuffix(u, "?upscaled") {
			t.Errorf("stitch input %d not upscaled: %q", i, u)
		}
	}
}

func TestRunSceneStaleTask(t *testing.T) {
	gen := &stubGenerator{}
	runner, st := newTestRunner(t, gen, &stubMedia{})

	queuedJob(t, st, "job-stale", model.JobTypeVideo, sceneOptions("a", "b"))
	before := completedSceneJob(t, runner, st, "job-stale")
	calls := len(gen.requests())

	// Scene is not pending, so the task is stale and must be a no-op.
	if err := runner.RunScene(context.Background(), "job-stale", 1); err != nil {
		t.Fatalf("stale task must be skipped, got %v", err)
	}
	if len(gen.requests()) != calls {
		t.Error("stale task must not call the provider")
	}

	job := getJob(t, st, "job-stale")
	if job.Outputs[0] != before.Outputs[0] {
		t.Error("stale task must not touch outputs")
	}
}

func TestRunSceneGoneJob(t *testing.T) {
	runner, _ := newTestRunner(t, &stubGenerator{}, &stubMedia{})
	if err := runner.RunScene(context.Background(), "missing", 0); err != nil {
		t.Fatalf("regen of deleted job must be skipped, got %v", err)
	}
}
