package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreamforge/api/internal/model"
)

func testJob(id string) *model.Job {
	return &model.Job{
		ID:        id,
		Type:      model.JobTypeImage,
		Options:   model.Options{Prompt: "test"},
		Status:    model.JobStatusQueued,
		Progress:  model.Progress{Stage: model.JobStatusQueued},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, testJob("a")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != "a" || got.Status != model.JobStatusQueued {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(ctx, testJob("a"))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting an unknown id is not an error
	if err := s.Delete(ctx, "nope"); err != nil {
		t.Fatalf("delete of unknown id failed: %v", err)
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := testJob("a")
	job.SceneProgress = map[int]model.SceneState{0: {Status: model.SceneStatusPending}}
	s.Put(ctx, job)

	// Mutating the caller's copy must not leak into the store.
	job.Status = model.JobStatusFailed
	job.SceneProgress[0] = model.SceneState{Status: model.SceneStatusFailed}

	got, _ := s.Get(ctx, "a")
	if got.Status != model.JobStatusQueued {
		t.Errorf("store job mutated through caller reference: %s", got.Status)
	}
	if got.SceneProgress[0].Status != model.SceneStatusPending {
		t.Errorf("scene map mutated through caller reference: %s", got.SceneProgress[0].Status)
	}

	// Mutating a returned copy must not leak either.
	got.Status = model.JobStatusCompleted
	again, _ := s.Get(ctx, "a")
	if again.Status != model.JobStatusQueued {
		t.Errorf("store job mutated through returned copy: %s", again.Status)
	}
}

func TestMemoryStoreSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snaps, cancel, err := s.Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	job := testJob("a")
	s.Put(ctx, job)
	job.Status = model.JobStatusRunning
	s.Put(ctx, job)

	first := <-snaps
	if first.Status != model.JobStatusQueued {
		t.Errorf("expected first snapshot queued, got %s", first.Status)
	}
	second := <-snaps
	if second.Status != model.JobStatusRunning {
		t.Errorf("expected second snapshot running, got %s", second.Status)
	}

	cancel()
	if _, open := <-snaps; open {
		t.Error("expected channel to close after cancel")
	}

	// Writes after cancel must not panic or deliver.
	s.Put(ctx, job)

	// cancel is idempotent
	cancel()
}

func TestMemoryStoreSubscribeScopedToJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snaps, cancel, _ := s.Subscribe(ctx, "a")
	defer cancel()

	s.Put(ctx, testJob("b"))

	select {
	case snap := <-snaps:
		t.Fatalf("unexpected snapshot for other job: %+v", snap)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryStoreOutputsHiddenUntilCompleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snaps, cancel, _ := s.Subscribe(ctx, "a")
	defer cancel()

	job := testJob("a")
	job.Status = model.JobStatusRunning
	s.Put(ctx, job)

	job.Status = model.JobStatusCompleted
	job.Outputs = []string{"https://x.test/out.png"}
	s.Put(ctx, job)

	running := <-snaps
	if len(running.Outputs) != 0 {
		t.Error("non-terminal snapshot must not expose outputs")
	}
	done := <-snaps
	if len(done.Outputs) != 1 {
		t.Errorf("completed snapshot must expose outputs, got %d", len(done.Outputs))
	}
}
