package driven

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// SourceStore keeps uploaded source documents until workers ingest them (PostgreSQL)
type SourceStore interface {
	// Save creates or replaces the stored document for its key
	Save(ctx context.Context, doc *domain.SourceDocument) error

	// Get retrieves a stored document, domain.ErrNotFound if absent
	Get(ctx context.Context, key domain.SourceKey) (*domain.SourceDocument, error)

	// Delete removes a stored document; missing documents are not an error
	Delete(ctx context.Context, key domain.SourceKey) error
}

// IngestionJobStore persists job status records for polling.
// Implementations can use Redis (preferred) or Postgres (fallback).
type IngestionJobStore interface {
	// Save creates or updates a job
	Save(ctx context.Context, job *domain.IngestionJob) error

	// Get retrieves a job by ID, domain.ErrNotFound if absent
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)

	// LatestForSource returns the most recent job for a source key
	LatestForSource(ctx context.Context, sourceKey string) (*domain.IngestionJob, error)
}
