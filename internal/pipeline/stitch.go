package pipeline

import (
	"context"
	"errors"

	"github.com/dreamforge/api/internal/client"
	"github.com/dreamforge/api/internal/model"
)

// stitchScenes concatenates all scene artifacts into the final video, in
// scene index order. Precondition: every scene is completed with an artifact
// URL; a gap yields a StitchError naming the offending scene and leaves all
// artifacts untouched. Re-invocation after a scene regeneration is safe.
func (r *Runner) stitchScenes(ctx context.Context, job *model.Job) (string, error) {
	n := len(job.ScenePrompts)
	urls := make([]string, n)
	for i := 0; i < n; i++ {
		st, ok := job.SceneProgress[i]
		if !ok || st.Status != model.SceneStatusCompleted || st.ArtifactURL == "" {
			return "", &StitchError{Scene: i}
		}
		urls[i] = st.ArtifactURL
	}

	callCtx, cancel := r.providerContext(ctx)
	defer cancel()
	final, err := r.media.Stitch(callCtx, urls)
	if err != nil {
		return "", &StitchError{Scene: -1, Err: err}
	}
	if final == "" {
		return "", &StitchError{Scene: -1, Err: errors.New("media tools returned no output")}
	}
	return r.mirror(ctx, final, client.ArtifactKey(job.ID, "final", 0)), nil
}
