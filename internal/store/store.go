// Package store provides the job record store. The state machine only
// depends on the Store interface, so the same pipeline runs against the
// in-memory map used by tests and the Redis-backed table used in
// production. Progress subscriptions are delivered over channels rather
// than stored callbacks.
package store

import (
	"context"
	"errors"

	"github.com/dreamforge/api/internal/model"
)

// ErrNotFound is returned when a job id is unknown to the store.
var ErrNotFound = errors.New("job not found")

// Store persists job records and publishes a snapshot to subscribers on
// every write. Stores do not serialize writers; the pipeline holds a
// per-job lock so each job has a single writer at a time.
type Store interface {
	// Get returns a copy of the job or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Put saves the job and publishes its snapshot to subscribers.
	Put(ctx context.Context, job *model.Job) error

	// Delete removes the job record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Subscribe returns a channel of snapshots for one job id and a cancel
	// function. Snapshots for a given job arrive in write order. The channel
	// is closed after the cancel function is called.
	Subscribe(ctx context.Context, id string) (<-chan model.JobSnapshot, func(), error)
}
