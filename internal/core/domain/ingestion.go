package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an ingestion job
type JobStatus string

const (
	JobStatusNotStarted JobStatus = "not_started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusSkipped    JobStatus = "skipped"
)

// IsTerminal reports whether no further transitions happen without a new run.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusSkipped
}

// JobKind separates per-source jobs from catalog runs
type JobKind string

const (
	JobKindSource  JobKind = "source"
	JobKindCatalog JobKind = "catalog"
	JobKindIndex   JobKind = "index"
)

// IngestionJob tracks one embedding run
type IngestionJob struct {
	ID               string     `json:"id"`
	Kind             JobKind    `json:"kind"`
	SourceKey        string     `json:"source_key,omitempty"`
	Status           JobStatus  `json:"status"`
	Force            bool       `json:"force"`
	ProcessedCount   int        `json:"processed_count"`
	FailedEmbeddings int        `json:"failed_embeddings"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewIngestionJob creates a not_started job.
func NewIngestionJob(kind JobKind, sourceKey string, force bool) *IngestionJob {
	now := time.Now()
	return &IngestionJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		SourceKey: sourceKey,
		Status:    JobStatusNotStarted,
		Force:     force,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing moves any state to processing and clears the previous outcome.
func (j *IngestionJob) MarkProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.CompletedAt = nil
	j.UpdatedAt = now
	j.Error = ""
	j.ProcessedCount = 0
	j.FailedEmbeddings = 0
}

// MarkCompleted records a successful run.
func (j *IngestionJob) MarkCompleted(processed, failedEmbeddings int) {
	j.finish(JobStatusCompleted)
	j.ProcessedCount = processed
	j.FailedEmbeddings = failedEmbeddings
}

// MarkSkipped records that the source was already fully ingested.
func (j *IngestionJob) MarkSkipped(existing int) {
	j.finish(JobStatusSkipped)
	j.ProcessedCount = existing
}

// MarkFailed records the error. Processed counts chunks already committed.
func (j *IngestionJob) MarkFailed(processed int, err error) {
	j.finish(JobStatusFailed)
	j.ProcessedCount = processed
	if err != nil {
		j.Error = err.Error()
	}
}

func (j *IngestionJob) finish(status JobStatus) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Result projects the job into the outbound status record.
func (j *IngestionJob) Result() IngestionResult {
	return IngestionResult{
		JobID:            j.ID,
		ProcessedCount:   j.ProcessedCount,
		FailedEmbeddings: j.FailedEmbeddings,
		Skipped:          j.Status == JobStatusSkipped,
		Status:           j.Status,
		ErrorDetail:      j.Error,
	}
}

// IngestionResult is the status record returned to collaborators
type IngestionResult struct {
	JobID            string    `json:"job_id,omitempty"`
	ProcessedCount   int       `json:"processed_count"`
	FailedEmbeddings int       `json:"failed_embeddings"`
	Skipped          bool      `json:"skipped"`
	Status           JobStatus `json:"status"`
	ErrorDetail      string    `json:"error_detail,omitempty"`
}
