package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/store"
)

// SchedulerConfig holds configuration for the reminder scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler scans for due reminders.
	TickInterval time.Duration

	// ClaimLimit caps how many tasks one tick may claim.
	ClaimLimit int

	// StaleClaimAge is how old a claim may get before it is treated as
	// leaked (scheduler crashed between claiming and enqueuing) and
	// released for the next tick.
	StaleClaimAge time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:  time.Minute,
		ClaimLimit:    100,
		StaleClaimAge: 10 * time.Minute,
	}
}

// enqueuer is the slice of Queue the scheduler needs.
type enqueuer interface {
	Enqueue(ctx context.Context, job *domain.ReminderJob) error
}

// Scheduler periodically claims tasks whose reminder time has arrived and
// turns each claim into a durable delivery job. Claiming is a conditional
// write, so two scheduler instances never enqueue the same task twice for
// one reminder. Ticks run on a single goroutine and therefore never overlap.
type Scheduler struct {
	tasks  store.TaskStore
	queue  enqueuer
	config SchedulerConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(
	tasks store.TaskStore,
	queue enqueuer,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Minute
	}
	if config.ClaimLimit <= 0 {
		config.ClaimLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  tasks,
		queue:  queue,
		config: config,
		logger: logger.With(slog.String("component", "reminder_scheduler")),
	}
}

// Start begins the tick loop. Call Stop to shut it down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop terminates the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tick runs one scheduling pass: release leaked claims, claim due reminders,
// enqueue one delivery job per claim. Every failure is logged and skipped;
// a bad tick never takes the scheduler down, the next tick retries.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.config.StaleClaimAge > 0 {
		released, err := s.tasks.ReleaseStaleReminderClaims(ctx, s.config.StaleClaimAge)
		if err != nil {
			s.logger.Error("failed to release stale claims",
				slog.String("error", err.Error()))
		} else if released > 0 {
			s.logger.Warn("released stale reminder claims",
				slog.Int64("count", released))
		}
	}

	claimed, err := s.tasks.ClaimDueReminders(ctx, time.Now().UTC(), s.config.ClaimLimit)
	if err != nil {
		s.logger.Error("failed to claim due reminders",
			slog.String("error", err.Error()))
		return
	}
	if len(claimed) == 0 {
		return
	}

	s.logger.Info("claimed due reminders", slog.Int("count", len(claimed)))

	for _, task := range claimed {
		job, err := domain.NewReminderJob(task.ID)
		if err != nil {
			s.logger.Error("failed to build delivery job",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			s.releaseClaim(ctx, task)
			continue
		}

		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error("failed to enqueue delivery job",
				slog.String("task_id", task.ID.String()),
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			// A full buffer still persisted the job; recovery will
			// deliver it, so the claim must stand. Anything else means
			// no job row exists and the claim has to be handed back.
			if !errors.Is(err, ErrQueueFull) {
				s.releaseClaim(ctx, task)
			}
			continue
		}
	}
}

// releaseClaim clears the claim so the next tick retries the task. The job
// side stays idempotent: even if a duplicate job is eventually enqueued, the
// reminder_sent conditional write keeps the user from being notified twice.
func (s *Scheduler) releaseClaim(ctx context.Context, task *domain.Task) {
	if err := s.tasks.ReleaseReminderClaim(ctx, task.ID); err != nil {
		s.logger.Error("failed to release reminder claim",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}
}
