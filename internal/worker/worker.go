package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/services"
)

// SourceRunner runs queued per-document ingestion jobs.
type SourceRunner interface {
	RunJob(ctx context.Context, jobID string) (domain.IngestionResult, error)
}

// CatalogRunner runs queued catalog ingestion jobs.
type CatalogRunner interface {
	RunJob(ctx context.Context, jobID string, grades []int, dryRun bool) (*domain.CatalogRunResult, error)
}

// IndexRunner builds the ANN index for a queued job.
type IndexRunner interface {
	RunIndexJob(ctx context.Context, jobID string, replace bool) error
}

// Reembedder fills vectors for chunks stored without one.
type Reembedder interface {
	Run(ctx context.Context) (services.ReembedResult, error)
}

// Worker processes tasks from the task queue.
// Each task type is routed to its runner; a missing runner fails the task.
type Worker struct {
	taskQueue driven.TaskQueue
	sources   SourceRunner
	catalog   CatalogRunner
	index     IndexRunner
	reembed   Reembedder
	jobs      driven.IngestionJobStore
	scheduler *services.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Sources        SourceRunner
	Catalog        CatalogRunner
	Index          IndexRunner
	Reembed        Reembedder
	Jobs           driven.IngestionJobStore // Optional: marks jobs failed when a handler panics
	Scheduler      *services.Scheduler
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		sources:        cfg.Sources,
		catalog:        cfg.Catalog,
		index:          cfg.Index,
		reembed:        cfg.Reembed,
		jobs:           cfg.Jobs,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and acks or nacks it. Handlers return an error
// only when a retry may succeed; terminal failures are already recorded on
// the job and the task is acked. A panicking handler fails its job and the
// task is acked.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "job_id", task.JobID())
	logger.Info("processing task")

	startTime := time.Now()
	p, err := w.dispatch(ctx, task, logger)
	duration := time.Since(startTime)

	if p != nil {
		logger.Error("task panicked",
			"duration", duration,
			"panic", p.value,
			"stack", string(p.stack),
		)
		w.failJob(ctx, task.JobID(), fmt.Errorf("panic: %v", p.value), logger)
		if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}
		return
	}

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

type taskPanic struct {
	value any
	stack []byte
}

// dispatch routes a task to its handler, converting a panic into a taskPanic.
func (w *Worker) dispatch(ctx context.Context, task *domain.Task, logger *slog.Logger) (p *taskPanic, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = &taskPanic{value: r, stack: debug.Stack()}
		}
	}()

	switch task.Type {
	case domain.TaskTypeIngestSource:
		return nil, w.handleIngestSource(ctx, task, logger)
	case domain.TaskTypeIngestCatalog:
		return nil, w.handleIngestCatalog(ctx, task, logger)
	case domain.TaskTypeBuildIndex:
		return nil, w.handleBuildIndex(ctx, task)
	case domain.TaskTypeReembedMissing:
		return nil, w.handleReembed(ctx, logger)
	default:
		return nil, fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// failJob records a terminal failure on a job left mid-run.
func (w *Worker) failJob(ctx context.Context, jobID string, cause error, logger *slog.Logger) {
	if w.jobs == nil || jobID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		logger.Warn("failed to load job after panic", "error", err)
		return
	}
	if job.Status.IsTerminal() {
		return
	}
	job.MarkFailed(job.ProcessedCount, cause)
	if err := w.jobs.Save(ctx, job); err != nil {
		logger.Warn("failed to save job after panic", "error", err)
	}
}

func (w *Worker) handleIngestSource(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	if w.sources == nil {
		return fmt.Errorf("no source runner configured")
	}
	jobID := task.JobID()
	if jobID == "" {
		return fmt.Errorf("job_id not found in task payload")
	}

	result, err := w.sources.RunJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrIngestionInProgress) || !result.Status.IsTerminal() {
			return err
		}
		logger.Warn("ingestion job failed", "status", result.Status, "error", err)
		return nil
	}

	logger.Info("ingestion job finished",
		"status", result.Status,
		"processed", result.ProcessedCount,
		"failed_embeddings", result.FailedEmbeddings,
		"skipped", result.Skipped,
	)
	return nil
}

func (w *Worker) handleIngestCatalog(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	if w.catalog == nil {
		return fmt.Errorf("no catalog runner configured")
	}
	jobID := task.JobID()
	if jobID == "" {
		return fmt.Errorf("job_id not found in task payload")
	}

	res, err := w.catalog.RunJob(ctx, jobID, task.Grades(), task.BoolPayload("dry_run"))
	if err != nil {
		return err
	}

	failed := 0
	for _, g := range res.Grades {
		if g.Status == domain.GradeStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("some grades failed", "total", len(res.Grades), "failed", failed)
	}
	logger.Info("catalog job finished", "chunks", res.TotalChunks, "index_built", res.IndexBuilt)
	return nil
}

func (w *Worker) handleBuildIndex(ctx context.Context, task *domain.Task) error {
	if w.index == nil {
		return fmt.Errorf("no index runner configured")
	}
	return w.index.RunIndexJob(ctx, task.JobID(), task.BoolPayload("replace"))
}

func (w *Worker) handleReembed(ctx context.Context, logger *slog.Logger) error {
	if w.reembed == nil {
		return fmt.Errorf("no reembedder configured")
	}
	res, err := w.reembed.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("re-embedding finished", "embedded", res.Embedded, "failed", res.Failed)
	return nil
}

// Health reports the worker's state.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
