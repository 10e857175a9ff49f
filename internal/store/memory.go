package store

import (
	"context"
	"sync"

	"github.com/dreamforge/api/internal/model"
)

const subscriberBuffer = 256

// MemoryStore is an in-process Store keyed by job id. It backs tests and
// single-node deployments that run without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	subs    map[string]map[int]chan model.JobSnapshot
	nextSub int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*model.Job),
		subs: make(map[string]map[int]chan model.JobSnapshot),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	snap := model.SnapshotOf(job)

	// Sends are non-blocking, so delivery happens under the lock. That keeps
	// unsubscribe (which closes the channel) safely ordered against writers.
	for _, ch := range s.subs[job.ID] {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: drop the tick rather than block the writer.
		}
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan model.JobSnapshot, func(), error) {
	ch := make(chan model.JobSnapshot, subscriberBuffer)

	s.mu.Lock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[int]chan model.JobSnapshot)
	}
	key := s.nextSub
	s.nextSub++
	s.subs[id][key] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if subs, ok := s.subs[id]; ok {
				delete(subs, key)
				if len(subs) == 0 {
					delete(s.subs, id)
				}
			}
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel, nil
}
