package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven/mocks"
	"github.com/tamgam-edu/diya-core/internal/core/services"
)

// mockTaskQueue implements driven.TaskQueue for testing
type mockTaskQueue struct {
	mu           sync.Mutex
	tasks        []*domain.Task
	dequeueDelay time.Duration
	pingFn       func() error

	acked  []string
	nacked []string
}

func newMockTaskQueue() *mockTaskQueue {
	return &mockTaskQueue{
		tasks: make([]*domain.Task, 0),
	}
}

func (m *mockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockTaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil, nil
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	return task, nil
}

func (m *mockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if m.dequeueDelay > 0 {
		select {
		case <-time.After(m.dequeueDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Dequeue(ctx)
}

func (m *mockTaskQueue) Ack(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, taskID)
	return nil
}

func (m *mockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, taskID)
	return nil
}

func (m *mockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	return &driven.QueueStats{PendingCount: int64(len(m.tasks))}, nil
}

func (m *mockTaskQueue) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn()
	}
	return nil
}

func (m *mockTaskQueue) Close() error {
	return nil
}

func (m *mockTaskQueue) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked), len(m.nacked)
}

// Test that mock implements the interface
func TestMockTaskQueueInterface(t *testing.T) {
	var _ driven.TaskQueue = (*mockTaskQueue)(nil)
}

type mockSourceRunner struct {
	runFn func(jobID string) (domain.IngestionResult, error)
	calls []string
}

func (m *mockSourceRunner) RunJob(ctx context.Context, jobID string) (domain.IngestionResult, error) {
	m.calls = append(m.calls, jobID)
	if m.runFn != nil {
		return m.runFn(jobID)
	}
	return domain.IngestionResult{JobID: jobID, Status: domain.JobStatusCompleted, ProcessedCount: 3}, nil
}

type mockCatalogRunner struct {
	grades []int
	dryRun bool
	err    error
}

func (m *mockCatalogRunner) RunJob(ctx context.Context, jobID string, grades []int, dryRun bool) (*domain.CatalogRunResult, error) {
	m.grades = grades
	m.dryRun = dryRun
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CatalogRunResult{
		Grades:      []domain.GradeResult{{Grade: 9, Status: domain.GradeStatusFailed, Error: "boom"}},
		TotalChunks: 12,
	}, nil
}

type mockIndexRunner struct {
	jobID   string
	replace bool
	err     error
}

func (m *mockIndexRunner) RunIndexJob(ctx context.Context, jobID string, replace bool) error {
	m.jobID = jobID
	m.replace = replace
	return m.err
}

type mockReembedder struct {
	runs int
	err  error
}

func (m *mockReembedder) Run(ctx context.Context) (services.ReembedResult, error) {
	m.runs++
	return services.ReembedResult{Embedded: 2}, m.err
}

func TestNewWorker(t *testing.T) {
	w := NewWorker(WorkerConfig{
		TaskQueue:      newMockTaskQueue(),
		Logger:         slog.Default(),
		Concurrency:    2,
		DequeueTimeout: 5,
	})

	if w == nil {
		t.Fatal("expected non-nil worker")
	}
	if w.concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 5 {
		t.Errorf("expected dequeue timeout 5, got %d", w.dequeueTimeout)
	}
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: newMockTaskQueue()})

	if w.concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 5 {
		t.Errorf("expected default dequeue timeout 5, got %d", w.dequeueTimeout)
	}
	if w.logger == nil {
		t.Error("expected default logger")
	}
}

func TestWorker_StartStop(t *testing.T) {
	queue := newMockTaskQueue()
	queue.dequeueDelay = 100 * time.Millisecond

	w := NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Concurrency:    1,
		DequeueTimeout: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if !w.Health(ctx).Running {
		t.Error("expected worker to be running")
	}
	if err := w.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	w.Stop()
	if w.Health(ctx).Running {
		t.Error("expected worker to be stopped")
	}
	w.Stop() // Should not panic
}

func TestWorker_ProcessesQueuedTasks(t *testing.T) {
	queue := newMockTaskQueue()
	queue.dequeueDelay = 10 * time.Millisecond
	sources := &mockSourceRunner{}

	job := domain.NewIngestionJob(domain.JobKindSource, "note:1", false)
	_ = queue.Enqueue(context.Background(), domain.NewIngestSourceTask(job))

	w := NewWorker(WorkerConfig{TaskQueue: queue, Sources: sources})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if acked, _ := queue.counts(); acked == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	if acked, _ := queue.counts(); acked != 1 {
		t.Fatalf("expected 1 ack, got %d", acked)
	}
}

func TestWorker_Health_QueueError(t *testing.T) {
	queue := newMockTaskQueue()
	queue.pingFn = func() error {
		return errors.New("connection failed")
	}

	w := NewWorker(WorkerConfig{TaskQueue: queue})

	health := w.Health(context.Background())
	if health.QueueHealth {
		t.Error("expected queue to be unhealthy")
	}
	if health.Error != "connection failed" {
		t.Errorf("expected error message, got %q", health.Error)
	}
}

func TestWorker_ProcessTask_UnknownType(t *testing.T) {
	queue := newMockTaskQueue()
	w := NewWorker(WorkerConfig{TaskQueue: queue})

	w.processTask(context.Background(), &domain.Task{ID: "task-123", Type: domain.TaskType("unknown_type")}, slog.Default())

	if _, nacked := queue.counts(); nacked != 1 {
		t.Errorf("expected 1 nack for unknown type, got %d", nacked)
	}
}

func TestWorker_IngestSource(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]string
		runFn     func(string) (domain.IngestionResult, error)
		wantAck   int
		wantNack  int
		wantCalls int
	}{
		{
			name:      "completed",
			payload:   map[string]string{"job_id": "job-1"},
			wantAck:   1,
			wantCalls: 1,
		},
		{
			name:     "missing job id",
			payload:  nil,
			wantNack: 1,
		},
		{
			name:    "lock held is retried",
			payload: map[string]string{"job_id": "job-1"},
			runFn: func(string) (domain.IngestionResult, error) {
				return domain.IngestionResult{Status: domain.JobStatusNotStarted}, domain.ErrIngestionInProgress
			},
			wantNack:  1,
			wantCalls: 1,
		},
		{
			name:    "failed job is not retried",
			payload: map[string]string{"job_id": "job-1"},
			runFn: func(string) (domain.IngestionResult, error) {
				return domain.IngestionResult{Status: domain.JobStatusFailed}, errors.New("extract: bad pdf")
			},
			wantAck:   1,
			wantCalls: 1,
		},
		{
			name:    "job load failure is retried",
			payload: map[string]string{"job_id": "job-1"},
			runFn: func(string) (domain.IngestionResult, error) {
				return domain.IngestionResult{}, errors.New("redis down")
			},
			wantNack:  1,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := newMockTaskQueue()
			sources := &mockSourceRunner{runFn: tt.runFn}
			w := NewWorker(WorkerConfig{TaskQueue: queue, Sources: sources})

			task := domain.NewTask(domain.TaskTypeIngestSource, tt.payload)
			w.processTask(context.Background(), task, slog.Default())

			acked, nacked := queue.counts()
			if acked != tt.wantAck || nacked != tt.wantNack {
				t.Errorf("acked=%d nacked=%d, want %d/%d", acked, nacked, tt.wantAck, tt.wantNack)
			}
			if len(sources.calls) != tt.wantCalls {
				t.Errorf("expected %d runs, got %d", tt.wantCalls, len(sources.calls))
			}
		})
	}
}

func TestWorker_HandlerPanicFailsJob(t *testing.T) {
	ctx := context.Background()
	queue := newMockTaskQueue()
	jobs := mocks.NewMockJobStore()

	job := domain.NewIngestionJob(domain.JobKindSource, "note:n-1", false)
	job.MarkProcessing()
	job.ProcessedCount = 4
	if err := jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	sources := &mockSourceRunner{runFn: func(string) (domain.IngestionResult, error) {
		var sections []string
		_ = sections[3]
		return domain.IngestionResult{}, nil
	}}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Sources: sources, Jobs: jobs})

	task := domain.NewTask(domain.TaskTypeIngestSource, map[string]string{"job_id": job.ID})
	w.processTask(ctx, task, slog.Default())

	acked, nacked := queue.counts()
	if acked != 1 || nacked != 0 {
		t.Errorf("acked=%d nacked=%d, want 1/0", acked, nacked)
	}

	got, err := jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected failed job, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "panic: runtime error: index out of range") {
		t.Errorf("expected panic text in job error, got %q", got.Error)
	}
	if got.ProcessedCount != 4 {
		t.Errorf("expected processed count kept, got %d", got.ProcessedCount)
	}

	// The worker keeps serving tasks after a panic
	sources.runFn = nil
	w.processTask(ctx, domain.NewTask(domain.TaskTypeIngestSource, map[string]string{"job_id": "job-2"}), slog.Default())
	if acked, _ := queue.counts(); acked != 2 {
		t.Errorf("expected the next task to be acked, got %d acks", acked)
	}
}

func TestWorker_HandlerPanicWithoutJobStore(t *testing.T) {
	queue := newMockTaskQueue()
	w := NewWorker(WorkerConfig{TaskQueue: queue, Reembed: panickingReembedder{}})

	w.processTask(context.Background(), domain.NewTask(domain.TaskTypeReembedMissing, nil), slog.Default())

	if acked, nacked := queue.counts(); acked != 1 || nacked != 0 {
		t.Errorf("acked=%d nacked=%d, want 1/0", acked, nacked)
	}
}

type panickingReembedder struct{}

func (panickingReembedder) Run(ctx context.Context) (services.ReembedResult, error) {
	panic("reembed exploded")
}

func TestWorker_IngestCatalog(t *testing.T) {
	queue := newMockTaskQueue()
	catalog := &mockCatalogRunner{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Catalog: catalog})

	job := domain.NewIngestionJob(domain.JobKindCatalog, "", true)
	w.processTask(context.Background(), domain.NewIngestCatalogTask(job, []int{8, 9}, true), slog.Default())

	if acked, _ := queue.counts(); acked != 1 {
		t.Errorf("grade failures are recorded on the job, expected ack")
	}
	if len(catalog.grades) != 2 || catalog.grades[1] != 9 || !catalog.dryRun {
		t.Errorf("unexpected run args grades=%v dryRun=%v", catalog.grades, catalog.dryRun)
	}

	catalog.err = domain.ErrIngestionInProgress
	w.processTask(context.Background(), domain.NewIngestCatalogTask(job, nil, false), slog.Default())
	if _, nacked := queue.counts(); nacked != 1 {
		t.Errorf("expected nack when the catalog lock is held")
	}
}

func TestWorker_BuildIndex(t *testing.T) {
	queue := newMockTaskQueue()
	index := &mockIndexRunner{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Index: index})

	w.processTask(context.Background(), domain.NewBuildIndexTask("job-9", true), slog.Default())

	if index.jobID != "job-9" || !index.replace {
		t.Errorf("unexpected index args %q %v", index.jobID, index.replace)
	}
	if acked, _ := queue.counts(); acked != 1 {
		t.Errorf("expected ack")
	}

	index.err = errors.New("disk full")
	w.processTask(context.Background(), domain.NewBuildIndexTask("job-10", false), slog.Default())
	if _, nacked := queue.counts(); nacked != 1 {
		t.Errorf("expected nack on index failure")
	}
}

func TestWorker_Reembed(t *testing.T) {
	queue := newMockTaskQueue()
	reembed := &mockReembedder{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Reembed: reembed})

	w.processTask(context.Background(), domain.NewReembedMissingTask(), slog.Default())
	if reembed.runs != 1 {
		t.Errorf("expected one pass, got %d", reembed.runs)
	}

	reembed.err = domain.ErrServiceUnavailable
	w.processTask(context.Background(), domain.NewReembedMissingTask(), slog.Default())
	acked, nacked := queue.counts()
	if acked != 1 || nacked != 1 {
		t.Errorf("acked=%d nacked=%d", acked, nacked)
	}
}

func TestWorker_MissingRunner(t *testing.T) {
	queue := newMockTaskQueue()
	w := NewWorker(WorkerConfig{TaskQueue: queue})

	for _, task := range []*domain.Task{
		domain.NewTask(domain.TaskTypeIngestSource, map[string]string{"job_id": "j"}),
		domain.NewTask(domain.TaskTypeIngestCatalog, map[string]string{"job_id": "j"}),
		domain.NewBuildIndexTask("j", false),
		domain.NewReembedMissingTask(),
	} {
		w.processTask(context.Background(), task, slog.Default())
	}

	if _, nacked := queue.counts(); nacked != 4 {
		t.Errorf("expected 4 nacks, got %d", nacked)
	}
}

func TestWorker_ContextCancellation(t *testing.T) {
	queue := newMockTaskQueue()
	queue.dequeueDelay = 500 * time.Millisecond

	w := NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Concurrency:    1,
		DequeueTimeout: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("worker did not stop after context cancellation")
		w.Stop()
	}
}

func TestRunnerInterfaces(t *testing.T) {
	var _ SourceRunner = (*services.IngestionService)(nil)
	var _ CatalogRunner = (*services.CatalogIngestor)(nil)
	var _ IndexRunner = (*services.AdminService)(nil)
	var _ Reembedder = (*services.Reembedder)(nil)
}
