package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/provider"
	"github.com/dreamforge/api/internal/store"
)

// stubGenerator records every request and hands out sequential URLs. Calls
// can be made to fail by global call index.
type stubGenerator struct {
	mu     sync.Mutex
	calls  []provider.Request
	failAt map[int]error
}

func (g *stubGenerator) Generate(ctx context.Context, req provider.Request) (string, error) {
	g.mu.Lock()
	idx := len(g.calls)
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if err, ok := g.failAt[idx]; ok {
		return "", err
	}
	return fmt.Sprintf("https://provider.test/artifact-%d.bin", idx), nil
}

func (g *stubGenerator) Fingerprint() string { return "stub@test" }

func (g *stubGenerator) requests() []provider.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.Request(nil), g.calls...)
}

// stubMedia records stitch inputs and applies URL suffixes so tests can see
// which passes ran.
type stubMedia struct {
	mu           sync.Mutex
	upscaled     int
	encoded      int
	stitchInputs [][]string
	stitchErr    error
}

func (m *stubMedia) Upscale(ctx context.Context, artifactURL string, factor int) (string, error) {
	m.mu.Lock()
	m.upscaled++
	m.mu.Unlock()
	return artifactURL + "?upscaled", nil
}

func (m *stubMedia) Encode(ctx context.Context, artifactURL string, format string) (string, error) {
	m.mu.Lock()
	m.encoded++
	m.mu.Unlock()
	return artifactURL + "?" + format, nil
}

func (m *stubMedia) Stitch(ctx context.Context, orderedURLs []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stitchErr != nil {
		return "", m.stitchErr
	}
	m.stitchInputs = append(m.stitchInputs, append([]string(nil), orderedURLs...))
	return fmt.Sprintf("https://provider.test/stitched-%d.mp4", len(m.stitchInputs)), nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Workers:                1,
		MaxPending:             100,
		TickMillis:             5,
		StepMillis:             1,
		UpscaleSeconds:         1,
		EncodeSeconds:          1,
		ProviderTimeoutSeconds: 5,
		MaxFanOut:              2,
		VideoFormat:            "mp4",
		JobTTLHours:            1,
	}
}

func newTestRunner(t *testing.T, gen provider.Generator, media provider.MediaTools) (*Runner, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := testPipelineConfig()
	reporter := NewReporter(st, time.Duration(cfg.TickMillis)*time.Millisecond)
	return NewRunner(st, gen, media, nil, reporter, NewJobLocks(), cfg), st
}

func queuedJob(t *testing.T, st *store.MemoryStore, id string, jobType model.JobType, opts model.Options) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:        id,
		Type:      jobType,
		Options:   opts,
		Status:    model.JobStatusQueued,
		Progress:  model.Progress{Stage: model.JobStatusQueued},
		CreatedAt: time.Now(),
	}
	if err := st.Put(context.Background(), job); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	return job
}

func getJob(t *testing.T, st *store.MemoryStore, id string) *model.Job {
	t.Helper()
	job, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load job %s: %v", id, err)
	}
	return job
}
