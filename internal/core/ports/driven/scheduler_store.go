package driven

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// SchedulerStore persists recurring task schedules so next-run times
// survive restarts.
type SchedulerStore interface {
	// GetScheduledTask retrieves a schedule, domain.ErrNotFound if absent
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// ListScheduledTasks returns every schedule ordered by next run
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SaveScheduledTask creates or updates a schedule
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteScheduledTask removes a schedule
	DeleteScheduledTask(ctx context.Context, id string) error

	// GetDueScheduledTasks returns enabled schedules whose next run has passed
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun stamps the run and advances next run by the interval
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
