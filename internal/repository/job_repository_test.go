package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

const testRef = domain.MediaReference("https://www.tiktok.com/@a/video/1")

func newTestJob(id string) *domain.Job {
	return domain.NewJob(domain.JobID(id), testRef, "ssstik", 3)
}

func TestNewInMemoryJobRepository(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if repo == nil {
		t.Fatal("repo should not be nil")
	}
	if repo.jobs == nil {
		t.Error("jobs map should be initialized")
	}
	if repo.queue == nil {
		t.Error("queue should be initialized")
	}
}

func TestInMemoryJobRepository_Enqueue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	if err := repo.Enqueue(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	retrieved, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != "job-1" {
		t.Errorf("ID = %q, want %q", retrieved.ID, "job-1")
	}
	if retrieved.Reference != testRef {
		t.Errorf("Reference = %q", retrieved.Reference)
	}
	if retrieved.Flavor != "ssstik" {
		t.Errorf("Flavor = %q", retrieved.Flavor)
	}
}

func TestInMemoryJobRepository_Dequeue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	if _, err := repo.Dequeue(ctx); err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}

	repo.Enqueue(ctx, newTestJob("job-1"))
	repo.Enqueue(ctx, newTestJob("job-2"))

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" {
		t.Errorf("expected job-1, got %s", dequeued.ID)
	}

	dequeued, err = repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}

	if _, err := repo.Dequeue(ctx); err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}

func TestInMemoryJobRepository_Dequeue_SkipsNonPending(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job1 := newTestJob("job-1")
	job1.Status = domain.JobStatusCompleted
	repo.Enqueue(ctx, job1)
	repo.Enqueue(ctx, newTestJob("job-2"))

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Update(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := newTestJob("job-1")
	repo.Enqueue(ctx, job)

	job.MarkProcessing()
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, _ := repo.Get(ctx, "job-1")
	if retrieved.Status != domain.JobStatusProcessing {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.JobStatusProcessing)
	}
}

func TestInMemoryJobRepository_Update_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if err := repo.Update(context.Background(), newTestJob("nonexistent")); err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_Update_RequeueRetrying(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))
	job, _ := repo.Dequeue(ctx)

	job.MarkFailed("transport error", true)
	if job.Status != domain.JobStatusRetrying {
		t.Fatalf("Status = %v, want retrying", job.Status)
	}
	repo.Update(ctx, job)

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" || dequeued.Attempts != 1 {
		t.Errorf("dequeued = %+v", dequeued)
	}
}

func TestInMemoryJobRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := newTestJob("job-1")
	repo.Enqueue(ctx, job)
	job.Status = domain.JobStatusFailed

	got, _ := repo.Get(ctx, "job-1")
	if got.Status != domain.JobStatusQueued {
		t.Error("mutating the enqueued job leaked into the repository")
	}

	got.Report = domain.NewReport(testRef, "ssstik")
	again, _ := repo.Get(ctx, "job-1")
	if again.Report != nil {
		t.Error("mutating a fetched job leaked into the repository")
	}
}

func TestInMemoryJobRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if _, err := repo.Get(context.Background(), "nonexistent"); err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_Stats(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if *stats != (QueueStats{}) {
		t.Error("expected all zeros for empty repo")
	}

	statuses := []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusQueued,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
		domain.JobStatusCompleted,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusRetrying,
	}

	for i, status := range statuses {
		job := newTestJob(fmt.Sprintf("job-%d", i))
		job.Status = status
		repo.Enqueue(ctx, job)
	}

	stats, _ = repo.Stats(ctx)
	want := QueueStats{Queued: 2, Processing: 1, Completed: 3, Failed: 1, Retrying: 1}
	if *stats != want {
		t.Errorf("Stats = %+v, want %+v", *stats, want)
	}
}

func TestInMemoryJobRepository_Concurrency(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			repo.Enqueue(ctx, newTestJob(fmt.Sprintf("job-%d", id)))
			repo.Stats(ctx)
			if job, err := repo.Dequeue(ctx); err == nil {
				job.MarkCompleted()
				repo.Update(ctx, job)
			}
		}(i)
	}
	wg.Wait()

	stats, _ := repo.Stats(ctx)
	if stats.Queued+stats.Completed != 10 {
		t.Errorf("stats = %+v, want 10 jobs accounted for", *stats)
	}
}
