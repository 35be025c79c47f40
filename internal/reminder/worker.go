package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/platform/mailer"
	"github.com/Akash0391/todo-project/internal/store"
)

// WorkerConfig holds configuration for the reminder worker pool.
type WorkerConfig struct {
	// WorkerCount determines how many goroutines consume the queue.
	WorkerCount int

	// MaxAttempts caps delivery retries per job. A job that fails this many
	// times is abandoned with status failed.
	MaxAttempts int

	// StuckJobAge is how long a job may sit in processing state before the
	// monitor treats the worker as dead and redelivers it.
	StuckJobAge time.Duration

	// StuckCheckInterval is how often the monitor scans for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckCheckInterval time.Duration

	// RetryDelay is how long a failed job waits before redelivery. Without
	// it a transport outage burns through the attempt cap in milliseconds.
	// If zero, defaults to 30 seconds.
	RetryDelay time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerCount:        2,
		MaxAttempts:        5,
		StuckJobAge:        30 * time.Minute,
		StuckCheckInterval: 5 * time.Minute,
		RetryDelay:         30 * time.Second,
	}
}

// Worker consumes delivery jobs and sends reminder notifications. Jobs are
// redelivered after failures and crashes, so every outcome path tolerates
// seeing the same job twice: the task's reminder_sent conditional write is
// what guarantees at most one notification per armed reminder.
type Worker struct {
	queue     *Queue
	jobs      store.JobStore
	tasks     store.TaskStore
	users     store.UserStore
	transport mailer.Transport
	config    WorkerConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a reminder worker pool.
func NewWorker(
	queue *Queue,
	jobs store.JobStore,
	tasks store.TaskStore,
	users store.UserStore,
	transport mailer.Transport,
	config WorkerConfig,
	logger *slog.Logger,
) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.StuckCheckInterval == 0 {
		config.StuckCheckInterval = 5 * time.Minute
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		tasks:     tasks,
		users:     users,
		transport: transport,
		config:    config,
		logger:    logger.With(slog.String("component", "reminder_worker")),
	}
}

// Start recovers unfinished jobs and launches the worker goroutines plus the
// stuck-job monitor.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	w.wg.Add(1)
	go w.stuckJobMonitor(ctx)

	return nil
}

// Stop shuts the pool down and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// run is one worker goroutine's consume loop.
func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()

	w.logger.Debug("starting worker", slog.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("stopping worker", slog.Int("worker_id", id))
			return
		case job, ok := <-w.queue.Chan():
			if !ok {
				return
			}
			w.Process(ctx, job)
		}
	}
}

// Process handles one delivery job end to end. Exported so tests can drive
// individual jobs without running the pool.
func (w *Worker) Process(ctx context.Context, job *domain.ReminderJob) {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("task_id", job.TaskID.String()))

	if err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, ""); err != nil {
		log.Error("failed to mark job processing", slog.String("error", err.Error()))
		return
	}
	job.Status = domain.JobStatusProcessing
	job.Attempts++

	task, err := w.tasks.GetByID(ctx, job.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			// Task deleted after the reminder was scheduled. Nothing to
			// deliver, nothing to retry.
			w.complete(ctx, job, "task no longer exists")
			return
		}
		w.retryOrAbandon(ctx, job, fmt.Errorf("failed to load task: %w", err))
		return
	}

	if task.ReminderSent {
		// Another worker (or a previous attempt of this job) already
		// handled the reminder.
		w.complete(ctx, job, "reminder already sent")
		return
	}

	recipient, ok, err := w.resolveRecipient(ctx, task)
	if err != nil {
		w.retryOrAbandon(ctx, job, fmt.Errorf("failed to load task owner: %w", err))
		return
	}
	if !ok {
		// Definitively no deliverable recipient. The reminder is considered
		// handled so the scheduler stops re-claiming the task.
		w.markSent(ctx, job, task, log)
		w.complete(ctx, job, "no deliverable recipient")
		return
	}

	subject := fmt.Sprintf("Reminder: %s", task.Title)
	body := reminderBody(task)
	if err := w.transport.Send(ctx, recipient, subject, body); err != nil {
		w.retryOrAbandon(ctx, job, fmt.Errorf("failed to send notification: %w", err))
		return
	}

	w.markSent(ctx, job, task, log)
	w.complete(ctx, job, "")

	log.Info("reminder delivered", slog.Int("attempts", job.Attempts))
}

// resolveRecipient returns the email address to notify. ok is false only for
// definitive outcomes: no owner, owner record gone, or the owner opted out.
// A lookup failure is returned as an error so the caller retries instead of
// swallowing the reminder.
func (w *Worker) resolveRecipient(
	ctx context.Context,
	task *domain.Task,
) (string, bool, error) {
	if task.OwnerID == nil {
		return "", false, nil
	}

	user, err := w.users.GetByID(ctx, *task.OwnerID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return "", false, nil
		}
		return "", false, err
	}

	if !user.EmailNotifications {
		return "", false, nil
	}

	return user.Email, true, nil
}

// markSent flips the task's reminder_sent flag. Losing the conditional write
// means another worker got there first, which is the outcome we wanted.
func (w *Worker) markSent(
	ctx context.Context,
	job *domain.ReminderJob,
	task *domain.Task,
	log *slog.Logger,
) {
	err := w.tasks.MarkReminderSent(ctx, task.ID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrAlreadyClaimed):
		log.Debug("reminder already marked sent by another worker")
	case store.IsNotFoundError(err):
		log.Debug("task deleted before reminder could be marked sent")
	default:
		log.Error("failed to mark reminder sent", slog.String("error", err.Error()))
	}
}

// complete marks the job finished.
func (w *Worker) complete(ctx context.Context, job *domain.ReminderJob, note string) {
	if err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, note); err != nil {
		w.logger.Error("failed to mark job completed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
	job.Status = domain.JobStatusCompleted
}

// retryOrAbandon redelivers a failed job until the attempt cap, then abandons
// it with a terminal failed status. Abandonment is logged at ERROR because it
// means a user will not get their reminder without operator action.
func (w *Worker) retryOrAbandon(ctx context.Context, job *domain.ReminderJob, cause error) {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("task_id", job.TaskID.String()),
		slog.Int("attempts", job.Attempts))

	if job.Attempts >= w.config.MaxAttempts {
		if err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, cause.Error()); err != nil {
			log.Error("failed to mark job failed", slog.String("error", err.Error()))
		}
		job.Status = domain.JobStatusFailed
		log.Error("abandoning reminder delivery after repeated failures",
			slog.String("error", cause.Error()))
		return
	}

	log.Warn("reminder delivery failed, will retry",
		slog.String("error", cause.Error()),
		slog.Duration("retry_in", w.config.RetryDelay))

	if err := w.queue.Redeliver(ctx, job, cause.Error(), w.config.RetryDelay); err != nil {
		log.Error("failed to redeliver job", slog.String("error", err.Error()))
	}
}

// stuckJobMonitor periodically redelivers jobs stranded in processing state
// by a dead worker.
func (w *Worker) stuckJobMonitor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.StuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, err := w.queue.RequeueStuck(ctx, w.config.StuckJobAge)
			if err != nil {
				w.logger.Error("failed to check for stuck jobs",
					slog.String("error", err.Error()))
				continue
			}
			if requeued > 0 {
				w.logger.Info("redelivered stuck jobs", slog.Int("count", requeued))
			}
		}
	}
}

// reminderBody renders the notification text.
func reminderBody(task *domain.Task) string {
	body := fmt.Sprintf("Your task %q is due", task.Title)
	if task.DueDate != nil {
		body = fmt.Sprintf("%s on %s", body, task.DueDate.Format("Mon, 02 Jan 2006 15:04"))
	}
	return body + "."
}
