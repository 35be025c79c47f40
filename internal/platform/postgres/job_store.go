package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/platform/logger"
	"github.com/Akash0391/todo-project/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
// Job rows are the durability layer of the delivery queue: they survive a
// crash and are recovered or redelivered on restart.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

// Save persists a new job row.
func (s *PostgresJobStore) Save(ctx context.Context, job *domain.ReminderJob) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO reminder_jobs (id, task_id, status, attempts, error_message, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.TaskID,
		job.Status,
		job.Attempts,
		job.ErrorMessage,
		job.EnqueuedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save reminder job",
			"job_id", job.ID,
			"task_id", job.TaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// UpdateStatus updates a job's status and error message. Entering the
// processing state counts as a delivery attempt.
func (s *PostgresJobStore) UpdateStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status domain.JobStatus,
	errorMsg string,
) error {
	log := logger.FromContext(ctx)

	var query string
	if status == domain.JobStatusProcessing {
		query = `
			UPDATE reminder_jobs
			SET status = $1, error_message = $2, attempts = attempts + 1, updated_at = $3
			WHERE id = $4
		`
	} else {
		query = `
			UPDATE reminder_jobs
			SET status = $1, error_message = $2, updated_at = $3
			WHERE id = $4
		`
	}

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), jobID)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", jobID,
			"status", status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "reminder job"); err != nil {
		// Job row is gone; nothing left to update.
		log.Warn("no reminder job found to update", "job_id", jobID)
		return nil
	}

	return nil
}

// GetPending retrieves all jobs with "pending" status, oldest first.
func (s *PostgresJobStore) GetPending(ctx context.Context) ([]*domain.ReminderJob, error) {
	return s.getByStatus(ctx, domain.JobStatusPending, 0)
}

// GetProcessing retrieves jobs with "processing" status, optionally filtered
// to those older than the given duration.
func (s *PostgresJobStore) GetProcessing(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.ReminderJob, error) {
	return s.getByStatus(ctx, domain.JobStatusProcessing, olderThan)
}

// getByStatus is a helper to fetch jobs by status with an optional age filter.
func (s *PostgresJobStore) getByStatus(
	ctx context.Context,
	status domain.JobStatus,
	olderThan time.Duration,
) ([]*domain.ReminderJob, error) {
	log := logger.FromContext(ctx)

	var query string
	var args []any

	if olderThan > 0 {
		query = `
			SELECT id, task_id, status, attempts, error_message, enqueued_at, updated_at
			FROM reminder_jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY enqueued_at ASC
		`
		args = []any{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, task_id, status, attempts, error_message, enqueued_at, updated_at
			FROM reminder_jobs
			WHERE status = $1
			ORDER BY enqueued_at ASC
		`
		args = []any{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs by status",
			"status", status,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ReminderJob
	for rows.Next() {
		var job domain.ReminderJob
		var errorMessage sql.NullString

		err := rows.Scan(
			&job.ID,
			&job.TaskID,
			&job.Status,
			&job.Attempts,
			&errorMessage,
			&job.EnqueuedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		job.ErrorMessage = errorMessage.String
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}
