package reminder

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeJobStore is an in-memory JobStore with error injection.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ReminderJob

	saveErr   error
	updateErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.ReminderJob)}
}

func (f *fakeJobStore) Save(ctx context.Context, job *domain.ReminderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobStore) UpdateStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status domain.JobStatus,
	errorMsg string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	job, ok := f.jobs[jobID]
	if !ok {
		return nil
	}
	if status == domain.JobStatusProcessing {
		job.Attempts++
	}
	job.Status = status
	job.ErrorMessage = errorMsg
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeJobStore) GetPending(ctx context.Context) ([]*domain.ReminderJob, error) {
	return f.byStatus(domain.JobStatusPending, 0), nil
}

func (f *fakeJobStore) GetProcessing(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.ReminderJob, error) {
	return f.byStatus(domain.JobStatusProcessing, olderThan), nil
}

func (f *fakeJobStore) byStatus(status domain.JobStatus, olderThan time.Duration) []*domain.ReminderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*domain.ReminderJob
	for _, job := range f.jobs {
		if job.Status != status {
			continue
		}
		if olderThan > 0 && job.UpdatedAt.After(cutoff) {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

func (f *fakeJobStore) status(t *testing.T, id uuid.UUID) domain.JobStatus {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		t.Fatalf("job %s not in store", id)
	}
	return job.Status
}

// fakeReminderTaskStore implements the reminder-facing slice of TaskStore.
type fakeReminderTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	claimErr    error
	markErr     error
	released    []uuid.UUID
	stalefreed  int64
	claimCalls  int
	markedTasks []uuid.UUID
}

func newFakeReminderTaskStore() *fakeReminderTaskStore {
	return &fakeReminderTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeReminderTaskStore) add(task *domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
}

func (f *fakeReminderTaskStore) Create(ctx context.Context, task *domain.Task) error {
	f.add(task)
	return nil
}

func (f *fakeReminderTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (f *fakeReminderTaskStore) Find(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return nil, nil
}

func (f *fakeReminderTaskStore) Update(ctx context.Context, task *domain.Task) error {
	f.add(task)
	return nil
}

func (f *fakeReminderTaskStore) Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (f *fakeReminderTaskStore) Reorder(ctx context.Context, pairs []events.OrderPair) error {
	return nil
}

func (f *fakeReminderTaskStore) ClaimDueReminders(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var claimed []*domain.Task
	for _, task := range f.tasks {
		if len(claimed) >= limit {
			break
		}
		if task.ReminderDue(now) && task.ReminderClaimedAt == nil {
			stamp := now
			task.ReminderClaimedAt = &stamp
			copied := *task
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (f *fakeReminderTaskStore) ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	if task, ok := f.tasks[id]; ok {
		task.ReminderClaimedAt = nil
	}
	return nil
}

func (f *fakeReminderTaskStore) ReleaseStaleReminderClaims(
	ctx context.Context,
	olderThan time.Duration,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stalefreed, nil
}

func (f *fakeReminderTaskStore) RearmReminder(ctx context.Context, id uuid.UUID, reminder *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Reminder = reminder
	task.ReminderSent = false
	task.ReminderClaimedAt = nil
	return nil
}

func (f *fakeReminderTaskStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if task.ReminderSent {
		return store.ErrAlreadyClaimed
	}
	task.ReminderSent = true
	f.markedTasks = append(f.markedTasks, id)
	return nil
}

func (f *fakeReminderTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return f
}

// fakeUserStore is an in-memory UserStore that can fail lookups a
// configurable number of times.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User

	failTimes int
	failErr   error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return nil, f.failErr
	}
	user, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

// fakeTransport records sends and can fail a configurable number of times.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMail
	failTimes int
	failErr   error
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return f.failErr
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// dueTask builds a task whose reminder is already due.
func dueTask(t *testing.T, ownerID *uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("water the plants", domain.PriorityMedium, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	due := time.Now().Add(-time.Minute).UTC()
	task.Reminder = &due
	return task
}
