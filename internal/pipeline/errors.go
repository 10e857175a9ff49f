package pipeline

import (
	"errors"
	"fmt"

	"github.com/dreamforge/api/internal/model"
)

// ErrRegenInFlight is returned when a regeneration is requested for a scene
// that is already pending or running. The job record is a single-writer
// resource; the second caller is rejected, never interleaved.
var ErrRegenInFlight = errors.New("scene regeneration already in progress")

// ErrJobActive is returned when an operation requires the job to be settled
// but a worker is still advancing it.
var ErrJobActive = errors.New("job is still being processed")

// ValidationError rejects a request synchronously without mutating any job
// state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ProviderError marks a failed or timed-out generation provider call. It is
// terminal for the affected job; when Scene is >= 0 it names the scene whose
// generation failed.
type ProviderError struct {
	Stage model.JobStatus
	Scene int // -1 when the job is not scene-based
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Scene >= 0 {
		return fmt.Sprintf("scene %d: generation failed during %s: %v", e.Scene, e.Stage, e.Err)
	}
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StitchError marks a failed concatenation. Completed scene artifacts are
// preserved so the stitch can be retried; partial outputs are never
// published. Scene >= 0 names a missing or broken input.
type StitchError struct {
	Scene int
	Err   error
}

func (e *StitchError) Error() string {
	if e.Scene >= 0 {
		return fmt.Sprintf("stitch failed: scene %d artifact unavailable", e.Scene)
	}
	return fmt.Sprintf("stitch failed: %v", e.Err)
}

func (e *StitchError) Unwrap() error { return e.Err }
