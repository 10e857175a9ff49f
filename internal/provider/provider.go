// Package provider wraps the external generation services the pipeline
// drives: the model provider that turns a prompt into one artifact URL, and
// the media-tools service that upscales, encodes and concatenates artifacts.
// Both are black boxes with URL-in/URL-out contracts.
package provider

import (
	"context"

	"github.com/dreamforge/api/internal/model"
)

// Request carries one generation call. ReferenceURL, when set, points at a
// previously generated artifact the provider should stay visually consistent
// with; Seed pins the provider's sampling for reproducibility.
type Request struct {
	Type         model.JobType
	Prompt       string
	Options      model.Options
	ReferenceURL string
	Seed         *int64
}

// Generator produces one raw artifact URL per call. Implementations must be
// safe to call again with the same request (regeneration).
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)

	// Fingerprint identifies the provider/model combination for the job
	// manifest.
	Fingerprint() string
}

// MediaTools performs the post-generation passes. Stitch concatenates the
// given artifacts in order, container-level only, and is safe to re-invoke
// for the same job.
type MediaTools interface {
	Upscale(ctx context.Context, artifactURL string, factor int) (string, error)
	Encode(ctx context.Context, artifactURL string, format string) (string, error)
	Stitch(ctx context.Context, orderedURLs []string) (string, error)
}
