package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driving"
	"github.com/tamgam-edu/diya-core/internal/postprocessors"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

// Ensure IngestionService implements driving.IngestionService
var _ driving.IngestionService = (*IngestionService)(nil)

// DefaultSourceLockTTL bounds how long one source run may hold its lock
// without flushing a batch.
const DefaultSourceLockTTL = 10 * time.Minute

// IngestionService runs the per-document flow: extract, chunk, embed and
// store the chunks of one source. It is idempotent per source unless forced.
type IngestionService struct {
	sources    driven.SourceStore
	jobs       driven.IngestionJobStore
	vectors    driven.VectorStore
	extractors driven.ExtractorRegistry
	queue      driven.TaskQueue
	lock       driven.DistributedLock
	services   *runtime.Services
	notes      *postprocessors.NoteChunker
	logger     *slog.Logger

	chunkSize int
	overlap   int
	batchSize int
	lockTTL   time.Duration
}

// IngestionServiceConfig holds dependencies for IngestionService.
type IngestionServiceConfig struct {
	Sources    driven.SourceStore
	Jobs       driven.IngestionJobStore
	Vectors    driven.VectorStore
	Extractors driven.ExtractorRegistry
	Queue      driven.TaskQueue       // Required for Submit
	Lock       driven.DistributedLock // Optional: one run per source across instances
	Services   *runtime.Services
	Logger     *slog.Logger

	ChunkSize int  // Words per window (default: 500)
	Overlap   *int // Words shared by neighbours (default: 50, 0 for disjoint windows)
	BatchSize int  // Chunks per flush (default: 20)
	LockTTL   time.Duration
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(cfg IngestionServiceConfig) *IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &IngestionService{
		sources:    cfg.Sources,
		jobs:       cfg.Jobs,
		vectors:    cfg.Vectors,
		extractors: cfg.Extractors,
		queue:      cfg.Queue,
		lock:       cfg.Lock,
		services:   cfg.Services,
		notes:      postprocessors.NewNoteChunker(),
		logger:     logger,
		chunkSize:  cfg.ChunkSize,
		overlap:    postprocessors.DefaultOverlap,
		batchSize:  cfg.BatchSize,
		lockTTL:    cfg.LockTTL,
	}
	if s.chunkSize <= 0 {
		s.chunkSize = postprocessors.DefaultChunkSize
	}
	if cfg.Overlap != nil {
		s.overlap = *cfg.Overlap
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		s.overlap = min(postprocessors.DefaultOverlap, s.chunkSize/2)
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultSourceLockTTL
	}
	return s
}

// Submit stores the upload, records a not_started job and enqueues it.
// It returns as soon as the task is queued.
func (s *IngestionService) Submit(ctx context.Context, doc *domain.SourceDocument, force bool) (*domain.IngestionJob, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if doc.Note.IsEmpty() && len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: source has no content", domain.ErrInvalidInput)
	}
	if doc.Key.Kind != domain.SourceKindNote && doc.Note != nil {
		return nil, fmt.Errorf("%w: structured notes are only accepted for note sources", domain.ErrInvalidInput)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrServiceUnavailable)
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if err := s.sources.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store source: %w", err)
	}

	job := domain.NewIngestionJob(domain.JobKindSource, doc.Key.String(), force)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task := domain.NewIngestSourceTask(job)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		job.MarkFailed(0, fmt.Errorf("enqueue: %w", err))
		_ = s.jobs.Save(ctx, job)
		return nil, fmt.Errorf("failed to enqueue ingestion: %w", err)
	}

	s.logger.Info("ingestion queued", "job_id", job.ID, "source_key", job.SourceKey, "force", force, "task_id", task.ID)
	return job, nil
}

// Ingest runs the flow synchronously for an already stored source.
func (s *IngestionService) Ingest(ctx context.Context, key domain.SourceKey, force bool) (domain.IngestionResult, error) {
	job := domain.NewIngestionJob(domain.JobKindSource, key.String(), force)
	if err := s.jobs.Save(ctx, job); err != nil {
		return job.Result(), fmt.Errorf("failed to save job: %w", err)
	}
	err := s.run(ctx, job, key)
	return job.Result(), err
}

// RunJob executes a queued job by id. The worker calls this.
// ErrIngestionInProgress means another worker holds the source; retry later.
func (s *IngestionService) RunJob(ctx context.Context, jobID string) (domain.IngestionResult, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.IngestionResult{}, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	key, err := domain.ParseSourceKey(job.SourceKey)
	if err != nil {
		return job.Result(), err
	}
	err = s.run(ctx, job, key)
	return job.Result(), err
}

// Job returns a job status record.
func (s *IngestionService) Job(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// LatestJob returns the most recent job for a source.
func (s *IngestionService) LatestJob(ctx context.Context, key domain.SourceKey) (*domain.IngestionJob, error) {
	return s.jobs.LatestForSource(ctx, key.String())
}

// Delete removes a source's chunks and its stored upload.
func (s *IngestionService) Delete(ctx context.Context, key domain.SourceKey) (int, error) {
	if key.ID == "" {
		return 0, fmt.Errorf("%w: source id is required", domain.ErrInvalidInput)
	}
	n, err := s.vectors.Delete(ctx, domain.ChunkFilterFor(key))
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.sources.Delete(ctx, key); err != nil {
		return n, fmt.Errorf("failed to delete source: %w", err)
	}
	s.logger.Info("source deleted", "source_key", key.String(), "chunks", n)
	return n, nil
}

func sourceLockName(key domain.SourceKey) string {
	return "ingest:" + string(key.Kind) + ":" + key.ID
}

// run drives one job through processing to a terminal state. The returned
// error is nil for skipped and completed runs.
func (s *IngestionService) run(ctx context.Context, job *domain.IngestionJob, key domain.SourceKey) error {
	logger := s.logger.With("job_id", job.ID, "source_key", job.SourceKey)

	if s.lock != nil {
		name := sourceLockName(key)
		acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire source lock: %w", err)
		}
		if !acquired {
			logger.Info("source is being ingested elsewhere")
			return domain.ErrIngestionInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
				logger.Warn("failed to release source lock", "error", err)
			}
		}()
	}

	job.MarkProcessing()
	s.saveJob(ctx, job, logger)

	filter := domain.ChunkFilterFor(key)
	existing, err := s.vectors.Count(ctx, filter)
	if err != nil {
		return s.fail(ctx, job, 0, fmt.Errorf("failed to count existing chunks: %w", err), logger)
	}
	if existing > 0 {
		if !job.Force {
			job.MarkSkipped(existing)
			s.saveJob(ctx, job, logger)
			logger.Info("source already ingested, skipping", "chunks", existing)
			return nil
		}
		deleted, err := s.vectors.Delete(ctx, filter)
		if err != nil {
			return s.fail(ctx, job, 0, fmt.Errorf("failed to delete previous chunks: %w", err), logger)
		}
		logger.Info("deleted previous chunks", "count", deleted)
	}

	doc, err := s.sources.Get(ctx, key)
	if err != nil {
		return s.fail(ctx, job, 0, fmt.Errorf("failed to load source: %w", err), logger)
	}

	texts, err := s.chunkTexts(ctx, doc)
	if err != nil {
		return s.fail(ctx, job, 0, err, logger)
	}

	var embedder driven.EmbeddingService
	if s.services != nil {
		embedder = s.services.EmbeddingService()
	}
	w := newChunkWriter(s.vectors, s.batchSize, logger)
	if s.lock != nil {
		name := sourceLockName(key)
		w.onFlush = func(ctx context.Context) {
			if err := s.lock.Extend(ctx, name, s.lockTTL); err != nil {
				logger.Warn("failed to extend source lock", "error", err)
			}
		}
	}

	provenance := domain.ProvenanceFor(key)
	contentType := key.Kind.ContentType()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, job, w.written, err, logger)
		}

		var vec []float32
		if embedder != nil {
			vec = embedder.Embed(ctx, text)
		}
		chunk, err := domain.NewChunk(domain.ChunkParams{
			Provenance:  provenance,
			ClassID:     doc.ClassID,
			Subject:     doc.Subject,
			ContentType: contentType,
			Text:        text,
			Index:       i,
			Embedding:   vec,
		})
		if err != nil {
			return s.fail(ctx, job, w.written, fmt.Errorf("chunk %d: %w", i, err), logger)
		}
		if err := w.add(ctx, chunk); err != nil {
			return s.fail(ctx, job, w.written, err, logger)
		}
	}
	if err := w.flush(ctx); err != nil {
		return s.fail(ctx, job, w.written, err, logger)
	}

	job.MarkCompleted(w.written, w.missing)
	s.saveJob(ctx, job, logger)
	logger.Info("ingestion completed",
		"chunks", w.written,
		"without_vector", w.missing,
		"write_failures", w.writeFailures,
	)
	return nil
}

// chunkTexts produces the ordered chunk texts for a source document.
func (s *IngestionService) chunkTexts(ctx context.Context, doc *domain.SourceDocument) ([]string, error) {
	if doc.Key.Kind == domain.SourceKindNote && doc.Note != nil {
		return s.notes.Chunk(doc.Note), nil
	}

	extracted, err := s.extractors.Extract(ctx, doc.Content, doc.TypeHint())
	if err != nil {
		var extErr *domain.ExtractionError
		if errors.As(err, &extErr) || errors.Is(err, domain.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, domain.NewExtractionError(doc.TypeHint(), err)
	}
	s.logger.Debug("extracted source text",
		"source_key", doc.Key.String(),
		"units", extracted.Units,
		"words", domain.WordCount(extracted.Text),
	)
	return postprocessors.Texts(postprocessors.NewTextPipeline(s.chunkSize, s.overlap).Process(extracted.Text)), nil
}

func (s *IngestionService) fail(ctx context.Context, job *domain.IngestionJob, processed int, err error, logger *slog.Logger) error {
	job.MarkFailed(processed, err)
	s.saveJob(ctx, job, logger)
	logger.Error("ingestion failed", "processed", processed, "error", err)
	return err
}

func (s *IngestionService) saveJob(ctx context.Context, job *domain.IngestionJob, logger *slog.Logger) {
	if err := s.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("failed to save job status", "status", job.Status, "error", err)
	}
}
