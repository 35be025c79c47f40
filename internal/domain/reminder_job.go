package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a reminder delivery job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Common validation errors for ReminderJob
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyJobTaskID   = errors.New("job task ID cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
)

// ReminderJob is one unit of reminder delivery work. Jobs are created by the
// scheduler, handed to workers through the delivery queue, and may be
// redelivered after a crash or timeout, so consumers must be idempotent.
type ReminderJob struct {
	ID           uuid.UUID `json:"id"`
	TaskID       uuid.UUID `json:"task_id"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewReminderJob creates a pending delivery job for the given task.
func NewReminderJob(taskID uuid.UUID) (*ReminderJob, error) {
	now := time.Now().UTC()
	job := &ReminderJob{
		ID:         uuid.New(),
		TaskID:     taskID,
		Status:     JobStatusPending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the ReminderJob has valid data.
func (j *ReminderJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.TaskID == uuid.Nil {
		return ErrEmptyJobTaskID
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}
