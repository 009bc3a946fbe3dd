package driving

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// AdminService handles index maintenance and queue inspection
type AdminService interface {
	// BuildIndex enqueues an ANN index build. With replace an existing index is dropped first.
	BuildIndex(ctx context.Context, replace bool) (*domain.IngestionJob, error)

	// QueueStats returns task queue counters
	QueueStats(ctx context.Context) (*driven.QueueStats, error)

	// ReembedMissing enqueues a re-embedding pass immediately
	ReembedMissing(ctx context.Context) (string, error)
}

// ScheduleService manages periodic maintenance schedules
type ScheduleService interface {
	// ListScheduledTasks returns every schedule
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SetEnabled turns a schedule on or off
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// TriggerNow enqueues a schedule's task immediately, ignoring its next run
	TriggerNow(ctx context.Context, id string) (*domain.Task, error)
}
