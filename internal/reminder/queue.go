// Package reminder implements the reminder pipeline: a scheduler that claims
// due reminders, a durable delivery queue, and a worker pool that sends
// notifications. Delivery is at-least-once; the task's reminder_sent flag is
// the idempotency guard that keeps redelivery from notifying twice.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/store"
)

// ErrQueueFull is returned by Enqueue when the in-memory buffer is full. The
// job row is already durable at that point; it is redelivered on the next
// recovery pass.
var ErrQueueFull = errors.New("delivery queue is full")

// Queue is the durable hand-off between the scheduler and the workers. Every
// job is persisted before it enters the in-memory channel, so a crash never
// loses work: Recover re-queues whatever was pending or in flight.
type Queue struct {
	jobs   store.JobStore
	ch     chan *domain.ReminderJob
	logger *slog.Logger
}

// NewQueue creates a delivery queue with the given buffer size.
func NewQueue(jobs store.JobStore, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:   jobs,
		ch:     make(chan *domain.ReminderJob, size),
		logger: logger.With(slog.String("component", "delivery_queue")),
	}
}

// Enqueue persists the job and hands it to the in-memory channel. The write
// comes first: a job that made it into the store survives a crash even if the
// channel hand-off never happens.
func (q *Queue) Enqueue(ctx context.Context, job *domain.ReminderJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	if err := q.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.ch <- job:
		return nil
	default:
		q.logger.Warn("queue buffer full, job deferred to recovery",
			slog.String("job_id", job.ID.String()),
			slog.String("task_id", job.TaskID.String()))
		return ErrQueueFull
	}
}

// Chan returns the read side of the queue for workers.
func (q *Queue) Chan() <-chan *domain.ReminderJob {
	return q.ch
}

// Recover loads unfinished jobs from the store and re-queues them. Jobs left
// in processing state by a crashed worker are reset to pending first. Called
// once at startup, before workers begin consuming.
func (q *Queue) Recover(ctx context.Context) error {
	pending, err := q.jobs.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	processing, err := q.jobs.GetProcessing(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load processing jobs: %w", err)
	}

	q.logger.Info("recovering unfinished jobs",
		slog.Int("pending_count", len(pending)),
		slog.Int("processing_count", len(processing)))

	for _, job := range pending {
		q.requeue(job)
	}

	for _, job := range processing {
		if err := q.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, "reset after restart"); err != nil {
			q.logger.Error("failed to reset interrupted job",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		job.Status = domain.JobStatusPending
		q.requeue(job)
	}

	return nil
}

// Redeliver resets a job to pending and puts it back on the channel after the
// given delay. The status reset is immediate so the job is durably retryable
// even if the process dies before the hand-off; only the in-memory requeue
// waits.
func (q *Queue) Redeliver(ctx context.Context, job *domain.ReminderJob, reason string, delay time.Duration) error {
	if err := q.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, reason); err != nil {
		return fmt.Errorf("failed to reset job for redelivery: %w", err)
	}
	job.Status = domain.JobStatusPending

	if delay <= 0 {
		q.requeue(job)
		return nil
	}
	time.AfterFunc(delay, func() { q.requeue(job) })
	return nil
}

// RequeueStuck resets processing jobs older than the given age back to
// pending and re-queues them, covering a worker that died mid-job. Returns
// the number of jobs redelivered.
func (q *Queue) RequeueStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := q.jobs.GetProcessing(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to load stuck jobs: %w", err)
	}

	requeued := 0
	for _, job := range stuck {
		if err := q.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, "reset after stall"); err != nil {
			q.logger.Error("failed to reset stuck job",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		job.Status = domain.JobStatusPending
		q.requeue(job)
		requeued++
	}

	return requeued, nil
}

// requeue performs a non-blocking channel hand-off. A full buffer is logged;
// the job row is still pending and the next recovery pass retries it.
func (q *Queue) requeue(job *domain.ReminderJob) {
	select {
	case q.ch <- job:
	default:
		q.logger.Error("failed to requeue job, buffer full",
			slog.String("job_id", job.ID.String()),
			slog.String("task_id", job.TaskID.String()))
	}
}
