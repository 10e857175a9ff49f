package pipeline

import "sync"

// JobLocks hands out per-job locks so that exactly one goroutine mutates a
// job record at a time. The worker takes the blocking form while executing a
// job; the API layer uses TryLock to reject writes against an active job
// instead of queueing behind it.
type JobLocks struct {
	mu   sync.Mutex
	held map[string]*jobLock
}

type jobLock struct {
	sem  chan struct{}
	refs int
}

func NewJobLocks() *JobLocks {
	return &JobLocks{held: make(map[string]*jobLock)}
}

func (l *JobLocks) acquireEntry(jobID string) *jobLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[jobID]
	if !ok {
		e = &jobLock{sem: make(chan struct{}, 1)}
		l.held[jobID] = e
	}
	e.refs++
	return e
}

func (l *JobLocks) releaseEntry(jobID string, e *jobLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.held, jobID)
	}
}

// Lock blocks until the job lock is available and returns the unlock func.
func (l *JobLocks) Lock(jobID string) func() {
	e := l.acquireEntry(jobID)
	e.sem <- struct{}{}
	return func() {
		<-e.sem
		l.releaseEntry(jobID, e)
	}
}

// TryLock acquires the job lock without blocking. It returns false when the
// job is currently being executed.
func (l *JobLocks) TryLock(jobID string) (func(), bool) {
	e := l.acquireEntry(jobID)
	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.releaseEntry(jobID, e)
		}, true
	default:
		l.releaseEntry(jobID, e)
		return nil, false
	}
}
