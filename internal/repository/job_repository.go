package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// InMemoryJobRepository implements JobRepository using in-memory storage.
// Jobs are copied on the way in and out, so callers never share state with
// the repository or with each other.
type InMemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[domain.JobID]*domain.Job
	queue []domain.JobID // FIFO queue of pending job IDs
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:  make(map[domain.JobID]*domain.Job),
		queue: make([]domain.JobID, 0),
	}
}

func clone(job *domain.Job) *domain.Job {
	c := job.Snapshot()
	return &c
}

// Enqueue adds a job to the queue.
func (r *InMemoryJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = clone(job)
	r.queue = append(r.queue, job.ID)

	return nil
}

// Dequeue retrieves the next pending job (FIFO).
func (r *InMemoryJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, jobID := range r.queue {
		job, ok := r.jobs[jobID]
		if !ok {
			continue
		}

		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return clone(job), nil
		}
	}

	return nil, domain.ErrNoJobs
}

// Update modifies job state. A job moved to retrying is queued again.
func (r *InMemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}

	r.jobs[job.ID] = clone(job)

	if job.Status == domain.JobStatusRetrying {
		r.queue = append(r.queue, job.ID)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	return clone(job), nil
}

// Stats returns queue statistics.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueueStats{}
	for _, job := range r.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusRetrying:
			stats.Retrying++
		}
	}

	return stats, nil
}
