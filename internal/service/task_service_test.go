package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/store"
)

// fakeTaskStore is an in-memory TaskStore with error injection for unit
// testing the service layer.
type fakeTaskStore struct {
	tasks map[uuid.UUID]*domain.Task

	createErr  error
	updateErr  error
	reorderErr error

	// beforeUpdate runs at the top of Update, between the service's read and
	// its write, to stage concurrent mutations.
	beforeUpdate func()
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) Find(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range f.tasks {
		copied := *task
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Update mirrors the store contract: the contended columns (order index and
// reminder state) keep their stored values and are only written through
// Reorder, RearmReminder and MarkReminderSent.
func (f *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	current, ok := f.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	copied := *task
	copied.OrderIndex = current.OrderIndex
	copied.Reminder = current.Reminder
	copied.ReminderSent = current.ReminderSent
	copied.ReminderClaimedAt = current.ReminderClaimedAt
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) RearmReminder(ctx context.Context, id uuid.UUID, reminder *time.Time) error {
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Reminder = reminder
	task.ReminderSent = false
	task.ReminderClaimedAt = nil
	return nil
}

func (f *fakeTaskStore) Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return task, nil
}

func (f *fakeTaskStore) Reorder(ctx context.Context, pairs []events.OrderPair) error {
	if f.reorderErr != nil {
		return f.reorderErr
	}
	for _, pair := range pairs {
		task, ok := f.tasks[pair.ID]
		if !ok {
			return store.ErrTaskNotFound
		}
		task.OrderIndex = pair.OrderIndex
	}
	return nil
}

func (f *fakeTaskStore) ClaimDueReminders(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskStore) ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeTaskStore) ReleaseStaleReminderClaims(
	ctx context.Context,
	olderThan time.Duration,
) (int64, error) {
	return 0, nil
}

func (f *fakeTaskStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if task.ReminderSent {
		return store.ErrAlreadyClaimed
	}
	task.ReminderSent = true
	return nil
}

func (f *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return f
}

// recordingPublisher captures everything published through it.
type recordingPublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	topic string
	event *events.Event
}

func (p *recordingPublisher) Publish(topic string, event *events.Event) {
	p.published = append(p.published, publishedEvent{topic: topic, event: event})
}

func (p *recordingPublisher) byType(eventType string) []publishedEvent {
	var out []publishedEvent
	for _, pe := range p.published {
		if pe.event.Type == eventType {
			out = append(out, pe)
		}
	}
	return out
}

func newTestTaskService(
	t *testing.T,
	taskStore store.TaskStore,
	publisher Publisher,
) *taskServiceImpl {
	t.Helper()
	return &taskServiceImpl{
		taskStore: taskStore,
		publisher: publisher,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		runTx: func(ctx context.Context, db *sql.DB, fn store.TxFn) error {
			return fn(ctx, nil)
		},
	}
}

func seedTask(t *testing.T, f *fakeTaskStore, title string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(title, domain.PriorityMedium, nil)
	require.NoError(t, err)
	require.NoError(t, f.Create(context.Background(), task))
	return task
}

func TestTaskServiceCreate(t *testing.T) {
	t.Run("persists then publishes", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)

		task, err := svc.CreateTask(context.Background(), CreateTaskRequest{
			Title:    "write report",
			Priority: domain.PriorityHigh,
		})
		require.NoError(t, err)
		assert.Equal(t, "write report", task.Title)
		assert.Equal(t, domain.DefaultCategory, task.Category)

		created := pub.byType(events.TypeTaskCreated)
		require.Len(t, created, 1)
		assert.Equal(t, topicTasks, created[0].topic)

		var payload events.TaskCreatedPayload
		require.NoError(t, created[0].event.UnmarshalPayload(&payload))
		assert.Equal(t, task.ID, payload.Task.ID)
	})

	t.Run("store failure publishes nothing", func(t *testing.T) {
		f := newFakeTaskStore()
		f.createErr = errors.New("connection reset")
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)

		_, err := svc.CreateTask(context.Background(), CreateTaskRequest{Title: "doomed"})
		require.Error(t, err)
		assert.Empty(t, pub.published)
	})

	t.Run("validation failure never reaches the store", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)

		_, err := svc.CreateTask(context.Background(), CreateTaskRequest{Title: ""})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEmptyTaskTitle)
		assert.Empty(t, f.tasks)
		assert.Empty(t, pub.published)
	})
}

func TestTaskServiceUpdate(t *testing.T) {
	t.Run("category patch changes category only", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "groceries")

		category := "Errands"
		got, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{
			Category: &category,
		}, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Errands", got.Category)
		assert.False(t, got.Completed, "category patch must not flip completion")

		updated := pub.byType(events.TypeTaskUpdated)
		require.Len(t, updated, 2) // global topic plus task room

		var payload events.TaskUpdatedPayload
		require.NoError(t, updated[0].event.UnmarshalPayload(&payload))
		assert.Equal(t, []string{"category"}, payload.UpdatedFields)
		assert.Equal(t, "alice", payload.UpdatedBy)
	})

	t.Run("completed patch changes completion only", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "groceries")

		completed := true
		got, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{
			Completed: &completed,
		}, "alice")
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, domain.DefaultCategory, got.Category)
	})

	t.Run("no-op patch publishes nothing", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "groceries")

		_, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{}, "alice")
		require.NoError(t, err)
		assert.Empty(t, pub.published)
	})

	t.Run("new reminder re-arms notification durably", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "dentist")

		claimed := time.Now().UTC()
		f.tasks[task.ID].ReminderSent = true
		f.tasks[task.ID].ReminderClaimedAt = &claimed

		reminder := time.Now().Add(time.Hour).UTC()
		got, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{
			Reminder: &reminder,
		}, "alice")
		require.NoError(t, err)
		assert.False(t, got.ReminderSent)
		assert.Nil(t, got.ReminderClaimedAt)

		// The stored row, the returned record and the broadcast payload must
		// all carry the reset, or the re-armed reminder never fires.
		stored := f.tasks[task.ID]
		assert.False(t, stored.ReminderSent)
		assert.Nil(t, stored.ReminderClaimedAt)
		require.NotNil(t, stored.Reminder)
		assert.True(t, stored.Reminder.Equal(reminder))

		updated := pub.byType(events.TypeTaskUpdated)
		require.NotEmpty(t, updated)
		var payload events.TaskUpdatedPayload
		require.NoError(t, updated[0].event.UnmarshalPayload(&payload))
		assert.False(t, payload.Task.ReminderSent)
	})

	t.Run("title patch does not revert a concurrent reorder", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "groceries")

		// A reorder commits between the update's read and its write.
		f.beforeUpdate = func() {
			f.tasks[task.ID].OrderIndex = 7
		}

		title := "renamed"
		_, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{Title: &title}, "alice")
		require.NoError(t, err)

		stored := f.tasks[task.ID]
		assert.Equal(t, "renamed", stored.Title)
		assert.Equal(t, 7, stored.OrderIndex,
			"title-only patch must not revert the accepted reorder")
	})

	t.Run("title patch does not revert a delivered reminder", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})
		task := seedTask(t, f, "dentist")

		// A worker marks the reminder sent between the read and the write.
		f.beforeUpdate = func() {
			f.tasks[task.ID].ReminderSent = true
		}

		title := "renamed"
		_, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{Title: &title}, "alice")
		require.NoError(t, err)

		assert.True(t, f.tasks[task.ID].ReminderSent,
			"reminder_sent never transitions back without a new reminder")
	})

	t.Run("unknown task", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})

		_, err := svc.UpdateTask(context.Background(), uuid.New(), TaskPatch{}, "alice")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("store failure publishes nothing", func(t *testing.T) {
		f := newFakeTaskStore()
		f.updateErr = errors.New("connection reset")
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "groceries")

		title := "renamed"
		_, err := svc.UpdateTask(context.Background(), task.ID, TaskPatch{Title: &title}, "alice")
		require.Error(t, err)
		assert.Empty(t, pub.published)
	})
}

func TestTaskServiceDelete(t *testing.T) {
	t.Run("returns last record and publishes", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "obsolete")

		got, err := svc.DeleteTask(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, "obsolete", got.Title)

		deleted := pub.byType(events.TypeTaskDeleted)
		require.Len(t, deleted, 2)

		var payload events.TaskDeletedPayload
		require.NoError(t, deleted[0].event.UnmarshalPayload(&payload))
		assert.Equal(t, task.ID, payload.TaskID)
		require.NotNil(t, payload.Task)
		assert.Equal(t, "obsolete", payload.Task.Title)
	})

	t.Run("unknown task publishes nothing", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)

		_, err := svc.DeleteTask(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.Empty(t, pub.published)
	})
}

func TestTaskServiceReorder(t *testing.T) {
	t.Run("applies batch and publishes one event", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		first := seedTask(t, f, "first")
		second := seedTask(t, f, "second")

		pairs := []events.OrderPair{
			{ID: first.ID, OrderIndex: 1},
			{ID: second.ID, OrderIndex: 0},
		}
		require.NoError(t, svc.ReorderTasks(context.Background(), pairs))

		assert.Equal(t, 1, f.tasks[first.ID].OrderIndex)
		assert.Equal(t, 0, f.tasks[second.ID].OrderIndex)

		reordered := pub.byType(events.TypeTaskReordered)
		require.Len(t, reordered, 1)

		var payload events.TaskReorderedPayload
		require.NoError(t, reordered[0].event.UnmarshalPayload(&payload))
		assert.Len(t, payload.Order, 2)
	})

	t.Run("missing id fails the whole batch with no event", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		first := seedTask(t, f, "first")

		err := svc.ReorderTasks(context.Background(), []events.OrderPair{
			{ID: first.ID, OrderIndex: 1},
			{ID: uuid.New(), OrderIndex: 0},
		})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.Empty(t, pub.published)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		svc := newTestTaskService(t, newFakeTaskStore(), &recordingPublisher{})
		err := svc.ReorderTasks(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyReorder)
	})
}

func TestTaskServiceQuickUpdate(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		f := newFakeTaskStore()
		pub := &recordingPublisher{}
		svc := newTestTaskService(t, f, pub)
		task := seedTask(t, f, "quick")

		got, err := svc.QuickUpdate(
			context.Background(), task.ID, "completed", json.RawMessage(`true`), "bob")
		require.NoError(t, err)
		assert.True(t, got.Completed)
	})

	t.Run("priority", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})
		task := seedTask(t, f, "quick")

		got, err := svc.QuickUpdate(
			context.Background(), task.ID, "priority", json.RawMessage(`"High"`), "bob")
		require.NoError(t, err)
		assert.Equal(t, domain.PriorityHigh, got.Priority)
	})

	t.Run("invalid priority rejected", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})
		task := seedTask(t, f, "quick")

		_, err := svc.QuickUpdate(
			context.Background(), task.ID, "priority", json.RawMessage(`"Urgent"`), "bob")
		assert.ErrorIs(t, err, domain.ErrInvalidPriority)
	})

	t.Run("unsupported field", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})
		task := seedTask(t, f, "quick")

		_, err := svc.QuickUpdate(
			context.Background(), task.ID, "category", json.RawMessage(`"Work"`), "bob")
		assert.ErrorIs(t, err, ErrUnsupportedField)
	})

	t.Run("malformed value", func(t *testing.T) {
		f := newFakeTaskStore()
		svc := newTestTaskService(t, f, &recordingPublisher{})
		task := seedTask(t, f, "quick")

		_, err := svc.QuickUpdate(
			context.Background(), task.ID, "completed", json.RawMessage(`"yes"`), "bob")
		assert.Error(t, err)
	})
}
