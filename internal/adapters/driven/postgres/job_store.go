package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IngestionJobStore = (*JobStore)(nil)

// JobStore implements driven.IngestionJobStore using PostgreSQL
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, kind, source_key, status, force, processed_count, failed_embeddings, error,
	created_at, updated_at, started_at, completed_at`

// Save creates or updates a job
func (s *JobStore) Save(ctx context.Context, job *domain.IngestionJob) error {
	query := `
		INSERT INTO ingestion_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			force = EXCLUDED.force,
			processed_count = EXCLUDED.processed_count,
			failed_embeddings = EXCLUDED.failed_embeddings,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		string(job.Kind),
		job.SourceKey,
		string(job.Status),
		job.Force,
		job.ProcessedCount,
		job.FailedEmbeddings,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
		NullTime(job.StartedAt),
		NullTime(job.CompletedAt),
	)
	return err
}

// Get retrieves a job by ID
func (s *JobStore) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id))
}

// LatestForSource returns the most recently created job for a source key
func (s *JobStore) LatestForSource(ctx context.Context, sourceKey string) (*domain.IngestionJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM ingestion_jobs
		WHERE source_key = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanJob(s.db.QueryRowContext(ctx, query, sourceKey))
}

func (s *JobStore) scanJob(row *sql.Row) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var kind, status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&kind,
		&job.SourceKey,
		&status,
		&job.Force,
		&job.ProcessedCount,
		&job.FailedEmbeddings,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.StartedAt = TimePtr(startedAt)
	job.CompletedAt = TimePtr(completedAt)
	return &job, nil
}
