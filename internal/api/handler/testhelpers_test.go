package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/tikgrabba/internal/domain"
	"github.com/iconidentify/tikgrabba/internal/repository"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats      *repository.QueueStats
	statsErr   error
	jobs       map[domain.JobID]*domain.Job
	enqueueErr error
	dequeueErr error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	if m.dequeueErr != nil {
		return nil, m.dequeueErr
	}
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued {
			return job, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}
