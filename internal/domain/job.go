package domain

import (
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents one queued resolution request.
type Job struct {
	ID         JobID
	Reference  MediaReference
	Flavor     string
	Status     JobStatus
	Attempts   int
	MaxRetries int
	LastError  string
	Report     *Report
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewJob creates a new job for resolving a reference.
func NewJob(id JobID, ref MediaReference, flavor string, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:         id,
		Reference:  ref,
		Flavor:     flavor,
		Status:     JobStatusQueued,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed records a failed attempt. Retryable failures move the job to
// retrying while attempts remain; anything else fails it permanently.
func (j *Job) MarkFailed(err string, retryable bool) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if retryable && j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}

// Snapshot returns a copy safe to hand to readers while workers keep mutating the job.
func (j *Job) Snapshot() Job {
	c := *j
	if j.Report != nil {
		r := *j.Report
		r.Stages = append([]StageTransition(nil), j.Report.Stages...)
		r.Outcomes = append([]DownloadOutcome(nil), j.Report.Outcomes...)
		r.Failures = append([]FetchFailure(nil), j.Report.Failures...)
		c.Report = &r
	}
	return c
}
