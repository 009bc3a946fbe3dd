package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// MockSourceStore is a mock implementation of SourceStore for testing
type MockSourceStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.SourceDocument
}

// NewMockSourceStore creates a new MockSourceStore
func NewMockSourceStore() *MockSourceStore {
	return &MockSourceStore{docs: make(map[string]*domain.SourceDocument)}
}

func (m *MockSourceStore) Save(ctx context.Context, doc *domain.SourceDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.docs[doc.Key.String()] = &cp
	return nil
}

func (m *MockSourceStore) Get(ctx context.Context, key domain.SourceKey) (*domain.SourceDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockSourceStore) Delete(ctx context.Context, key domain.SourceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key.String())
	return nil
}

// MockJobStore is a mock implementation of IngestionJobStore for testing
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.IngestionJob

	// History records every saved status per job id
	History map[string][]domain.JobStatus
}

// NewMockJobStore creates a new MockJobStore
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:    make(map[string]*domain.IngestionJob),
		History: make(map[string][]domain.JobStatus),
	}
}

func (m *MockJobStore) Save(ctx context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.History[job.ID] = append(m.History[job.ID], job.Status)
	return nil
}

func (m *MockJobStore) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobStore) LatestForSource(ctx context.Context, sourceKey string) (*domain.IngestionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.IngestionJob
	for _, j := range m.jobs {
		if j.SourceKey != sourceKey {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// MockSchedulerStore is an in-memory SchedulerStore
type MockSchedulerStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.ScheduledTask
}

// NewMockSchedulerStore creates a new MockSchedulerStore
func NewMockSchedulerStore() *MockSchedulerStore {
	return &MockSchedulerStore{tasks: make(map[string]*domain.ScheduledTask)}
}

func (m *MockSchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockSchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

func (m *MockSchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *MockSchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *MockSchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	all, _ := m.ListScheduledTasks(ctx)
	var due []*domain.ScheduledTask
	for _, t := range all {
		if t.IsDue() {
			due = append(due, t)
		}
	}
	return due, nil
}

func (m *MockSchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.UpdateNextRun()
	t.LastError = lastError
	return nil
}
