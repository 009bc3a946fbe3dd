package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driving"
)

// Ensure AdminService implements driving.AdminService
var _ driving.AdminService = (*AdminService)(nil)

// AdminService queues index maintenance and re-embedding, and runs index jobs.
type AdminService struct {
	vectors driven.VectorStore
	jobs    driven.IngestionJobStore
	queue   driven.TaskQueue
	logger  *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(vectors driven.VectorStore, jobs driven.IngestionJobStore, queue driven.TaskQueue, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{vectors: vectors, jobs: jobs, queue: queue, logger: logger}
}

// BuildIndex records an index job and enqueues it.
func (s *AdminService) BuildIndex(ctx context.Context, replace bool) (*domain.IngestionJob, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrServiceUnavailable)
	}
	job := domain.NewIngestionJob(domain.JobKindIndex, "", replace)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	task := domain.NewBuildIndexTask(job.ID, replace)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		job.MarkFailed(0, fmt.Errorf("enqueue: %w", err))
		_ = s.jobs.Save(ctx, job)
		return nil, fmt.Errorf("failed to enqueue index build: %w", err)
	}
	s.logger.Info("index build queued", "job_id", job.ID, "replace", replace, "task_id", task.ID)
	return job, nil
}

// RunIndexJob builds the index for a queued job. An empty jobID runs
// without status tracking.
func (s *AdminService) RunIndexJob(ctx context.Context, jobID string, replace bool) error {
	var job *domain.IngestionJob
	if jobID != "" {
		j, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to load job %s: %w", jobID, err)
		}
		job = j
		job.MarkProcessing()
		s.saveJob(ctx, job)
	}

	err := s.vectors.BuildIndex(ctx, replace)
	if job != nil {
		if err != nil {
			job.MarkFailed(0, err)
		} else {
			job.MarkCompleted(0, 0)
		}
		s.saveJob(ctx, job)
	}
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	s.logger.Info("index built", "replace", replace)
	return nil
}

// QueueStats returns task queue counters.
func (s *AdminService) QueueStats(ctx context.Context) (*driven.QueueStats, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrServiceUnavailable)
	}
	return s.queue.Stats(ctx)
}

// ReembedMissing enqueues a re-embedding pass and returns the task id.
func (s *AdminService) ReembedMissing(ctx context.Context) (string, error) {
	if s.queue == nil {
		return "", fmt.Errorf("%w: task queue not configured", domain.ErrServiceUnavailable)
	}
	task := domain.NewReembedMissingTask()
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return "", fmt.Errorf("failed to enqueue re-embedding: %w", err)
	}
	return task.ID, nil
}

func (s *AdminService) saveJob(ctx context.Context, job *domain.IngestionJob) {
	if err := s.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("failed to save job status", "job_id", job.ID, "error", err)
	}
}
