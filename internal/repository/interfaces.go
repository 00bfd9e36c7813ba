package repository

import (
	"context"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// JobRepository manages the resolve job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// HistoryRepository persists a summary of every finished pipeline run.
type HistoryRepository interface {
	// Record stores one entry.
	Record(ctx context.Context, entry domain.HistoryEntry) error

	// List returns the most recent entries first.
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// Close releases the underlying store.
	Close() error
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Retrying   int `json:"retrying"`
}
