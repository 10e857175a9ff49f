package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamforge/api/internal/model"
)

// Mock is the development fallback used when no provider API key is
// configured. It returns deterministic CDN-style URLs so the rest of the
// pipeline (stitching included) behaves exactly as in production.
type Mock struct {
	BaseURL string
	Delay   time.Duration
}

func NewMock() *Mock {
	return &Mock{
		BaseURL: "https://cdn.dreamforge.dev",
		Delay:   50 * time.Millisecond,
	}
}

func (m *Mock) Fingerprint() string {
	return "mock@local"
}

func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	}
	digest := xxhash.Sum64String(fmt.Sprintf("%s|%s|%s|%d", req.Type, req.Prompt, req.ReferenceURL, seed))
	return fmt.Sprintf("%s/mock/%s/%016x.%s", m.BaseURL, req.Type, digest, mockExtension(req.Type)), nil
}

func mockExtension(t model.JobType) string {
	switch t {
	case model.JobTypeVideo:
		return "mp4"
	case model.JobType3D:
		return "glb"
	case model.JobTypeCAD:
		return "step"
	default:
		return "png"
	}
}

// MockMediaTools mirrors Mock for the upscale/encode/stitch service.
type MockMediaTools struct {
	BaseURL string
}

func NewMockMediaTools() *MockMediaTools {
	return &MockMediaTools{BaseURL: "https://cdn.dreamforge.dev"}
}

func (m *MockMediaTools) Upscale(ctx context.Context, artifactURL string, factor int) (string, error) {
	if factor <= 1 {
		return artifactURL, nil
	}
	return fmt.Sprintf("%s/mock/upscaled/%016x_x%d", m.BaseURL, xxhash.Sum64String(artifactURL), factor), nil
}

func (m *MockMediaTools) Encode(ctx context.Context, artifactURL string, format string) (string, error) {
	return fmt.Sprintf("%s/mock/encoded/%016x.%s", m.BaseURL, xxhash.Sum64String(artifactURL), format), nil
}

func (m *MockMediaTools) Stitch(ctx context.Context, orderedURLs []string) (string, error) {
	if len(orderedURLs) == 0 {
		return "", fmt.Errorf("nothing to stitch")
	}
	var digest uint64
	for _, u := range orderedURLs {
		digest = xxhash.Sum64String(fmt.Sprintf("%016x|%s", digest, u))
	}
	return fmt.Sprintf("%s/mock/stitched/%016x.mp4", m.BaseURL, digest), nil
}
