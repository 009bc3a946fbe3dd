package domain

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeIngestSource embeds one stored source document
	TaskTypeIngestSource TaskType = "ingest_source"
	// TaskTypeIngestCatalog runs bulk reference-textbook ingestion
	TaskTypeIngestCatalog TaskType = "ingest_catalog"
	// TaskTypeBuildIndex (re)builds the ANN index
	TaskTypeBuildIndex TaskType = "build_index"
	// TaskTypeReembedMissing fills vectors for chunks stored without one
	TaskTypeReembedMissing TaskType = "reembed_missing"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// Payload contains task-specific data
	// For ingest_source: {"job_id": "...", "source_key": "note:42", "force": "true"}
	// For ingest_catalog: {"job_id": "...", "grades": "8,9", "force": "false", "dry_run": "false"}
	// For build_index: {"replace": "true"}
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewIngestSourceTask creates a task that runs the per-document flow for job.
func NewIngestSourceTask(job *IngestionJob) *Task {
	return NewTask(TaskTypeIngestSource, map[string]string{
		"job_id":     job.ID,
		"source_key": job.SourceKey,
		"force":      strconv.FormatBool(job.Force),
	})
}

// NewIngestCatalogTask creates a bulk catalog ingestion task.
func NewIngestCatalogTask(job *IngestionJob, grades []int, dryRun bool) *Task {
	gs := make([]string, len(grades))
	for i, g := range grades {
		gs[i] = strconv.Itoa(g)
	}
	t := NewTask(TaskTypeIngestCatalog, map[string]string{
		"job_id":  job.ID,
		"grades":  strings.Join(gs, ","),
		"force":   strconv.FormatBool(job.Force),
		"dry_run": strconv.FormatBool(dryRun),
	})
	// catalog runs are not retried by the queue
	t.MaxAttempts = 1
	return t
}

// NewBuildIndexTask creates an index maintenance task.
func NewBuildIndexTask(jobID string, replace bool) *Task {
	return NewTask(TaskTypeBuildIndex, map[string]string{
		"job_id":  jobID,
		"replace": strconv.FormatBool(replace),
	})
}

// NewReembedMissingTask creates a re-embedding pass task.
func NewReembedMissingTask() *Task {
	return NewTask(TaskTypeReembedMissing, nil)
}

func (t *Task) payload(key string) string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[key]
}

// JobID returns the ingestion job this task reports to.
func (t *Task) JobID() string { return t.payload("job_id") }

// SourceKey returns the source key for ingest_source tasks.
func (t *Task) SourceKey() string { return t.payload("source_key") }

// BoolPayload parses a boolean payload value, defaulting to false.
func (t *Task) BoolPayload(key string) bool {
	b, _ := strconv.ParseBool(t.payload(key))
	return b
}

// Grades parses the grade list of an ingest_catalog task.
func (t *Task) Grades() []int {
	raw := t.payload("grades")
	if raw == "" {
		return nil
	}
	var grades []int
	for _, s := range strings.Split(raw, ",") {
		if g, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			grades = append(grades, g)
		}
	}
	return grades
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && time.Now().After(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// 2s, 4s, 8s ... capped at 5 minutes
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	t.ScheduledFor = now.Add(backoff)
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	ItemsCount  int           `json:"items_count,omitempty"`
	ErrorsCount int           `json:"errors_count,omitempty"`
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      TaskType      `json:"type"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	LastError string        `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// DefaultSchedulerConfig returns the default scheduled tasks
func DefaultSchedulerConfig(reembedInterval time.Duration) []*ScheduledTask {
	return []*ScheduledTask{
		NewScheduledTask(
			"reembed-missing",
			"Re-embed Missing Vectors",
			TaskTypeReembedMissing,
			reembedInterval,
		),
	}
}
