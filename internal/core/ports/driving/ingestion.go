package driving

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// IngestionService accepts source documents and reports job progress
type IngestionService interface {
	// Submit stores the source, creates a not_started job and enqueues it
	Submit(ctx context.Context, doc *domain.SourceDocument, force bool) (*domain.IngestionJob, error)

	// Job returns a job status record
	Job(ctx context.Context, jobID string) (*domain.IngestionJob, error)

	// LatestJob returns the most recent job for a source
	LatestJob(ctx context.Context, key domain.SourceKey) (*domain.IngestionJob, error)

	// Delete removes a source's chunks and stored upload, returning the chunk count
	Delete(ctx context.Context, key domain.SourceKey) (int, error)
}

// CatalogService queues bulk reference-textbook ingestion
type CatalogService interface {
	// Catalog returns the configured grade/chapter catalog
	Catalog() *domain.Catalog

	// Submit records a catalog job for grades (all when empty) and enqueues it
	Submit(ctx context.Context, grades []int, force, dryRun bool) (*domain.IngestionJob, error)
}
