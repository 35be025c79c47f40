package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
)

// JobStore defines the interface for persisting reminder delivery jobs.
// It is the durability layer under the delivery queue: a job row outlives a
// process crash and is redelivered until a worker completes or abandons it.
type JobStore interface {
	// Save persists a new job row.
	Save(ctx context.Context, job *domain.ReminderJob) error

	// UpdateStatus updates a job's status and error message, and increments
	// the attempt counter when the new status is processing.
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, errorMsg string) error

	// GetPending retrieves all jobs with "pending" status, oldest first.
	GetPending(ctx context.Context) ([]*domain.ReminderJob, error)

	// GetProcessing retrieves jobs with "processing" status. If olderThan is
	// non-zero, only jobs that have been in that state longer than the given
	// duration are returned.
	GetProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.ReminderJob, error)
}
