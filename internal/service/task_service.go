// Package service implements the application use cases on top of the store
// layer. Mutations persist first and broadcast an event only on success, so
// subscribers never observe state the database does not hold.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/store"
)

// Sentinel errors returned by TaskService. The API layer maps these to HTTP
// status codes; the websocket layer answers with a task:error frame.
var (
	// ErrUnsupportedField is returned by QuickUpdate for fields outside its
	// whitelist.
	ErrUnsupportedField = errors.New("field not supported by quick update")

	// ErrEmptyReorder is returned when a reorder request carries no pairs.
	ErrEmptyReorder = errors.New("reorder requires at least one pair")
)

// TaskServiceError is a custom error type for task service errors.
type TaskServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// Publisher fans events out to subscribed connections. Implemented by
// hub.Hub; the service never sees individual connections.
type Publisher interface {
	Publish(topic string, event *events.Event)
}

// Topic names mirror the hub's naming so the service does not import the hub
// package.
const topicTasks = "tasks"

func taskTopic(id uuid.UUID) string {
	return "task:" + id.String()
}

// CreateTaskRequest carries the fields a caller may set when creating a task.
type CreateTaskRequest struct {
	Title    string
	Priority domain.Priority
	Category string
	DueDate  *time.Time
	Reminder *time.Time
	Subtasks []domain.Subtask
	OwnerID  *uuid.UUID
}

// TaskPatch is a partial update. Nil fields are left untouched; each field
// patches exactly the column it names.
type TaskPatch struct {
	Title     *string
	Completed *bool
	Priority  *domain.Priority
	Category  *string
	DueDate   *time.Time
	Reminder  *time.Time
	Subtasks  *[]domain.Subtask
}

// TaskService is the single mutation path for tasks. Every write persists
// first and publishes the corresponding event only after the store reports
// success, so subscribers never see an event for state that was not stored.
type TaskService interface {
	// CreateTask validates and persists a new task, then publishes
	// task:created.
	CreateTask(ctx context.Context, req CreateTaskRequest) (*domain.Task, error)

	// GetTask retrieves a task by id.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks retrieves tasks matching the filter in display order.
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)

	// UpdateTask applies a partial patch and publishes task:updated naming
	// the changed fields and the actor.
	UpdateTask(ctx context.Context, id uuid.UUID, patch TaskPatch, updatedBy string) (*domain.Task, error)

	// DeleteTask removes a task, publishes task:deleted, and returns the
	// last known record so callers can offer undo.
	DeleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ReorderTasks applies a batch of (id, orderIndex) assignments in one
	// transaction and publishes a single task:reordered event. A missing id
	// fails the whole batch.
	ReorderTasks(ctx context.Context, pairs []events.OrderPair) error

	// QuickUpdate patches a single whitelisted field (completed, priority,
	// title) from a raw JSON value. Used by the websocket side channel.
	QuickUpdate(ctx context.Context, id uuid.UUID, field string, value json.RawMessage, updatedBy string) (*domain.Task, error)
}

// taskServiceImpl implements the TaskService interface.
type taskServiceImpl struct {
	db        *sql.DB
	taskStore store.TaskStore
	publisher Publisher
	logger    *slog.Logger

	// runTx wraps store.RunInTransaction; replaceable in tests.
	runTx func(ctx context.Context, db *sql.DB, fn store.TxFn) error
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	db *sql.DB,
	taskStore store.TaskStore,
	publisher Publisher,
	logger *slog.Logger,
) (TaskService, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if taskStore == nil {
		return nil, fmt.Errorf("taskStore cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		db:        db,
		taskStore: taskStore,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "task_service")),
		runTx:     store.RunInTransaction,
	}, nil
}

// CreateTask implements TaskService.CreateTask.
func (s *taskServiceImpl) CreateTask(
	ctx context.Context,
	req CreateTaskRequest,
) (*domain.Task, error) {
	task, err := domain.NewTask(req.Title, req.Priority, req.OwnerID)
	if err != nil {
		return nil, &TaskServiceError{Operation: "create", Message: "invalid task", Err: err}
	}

	if req.Category != "" {
		task.Category = req.Category
	}
	task.DueDate = req.DueDate
	task.Reminder = req.Reminder
	if req.Subtasks != nil {
		task.Subtasks = req.Subtasks
	}

	if err := task.Validate(); err != nil {
		return nil, &TaskServiceError{Operation: "create", Message: "invalid task", Err: err}
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, &TaskServiceError{Operation: "create", Message: "failed to save task", Err: err}
	}

	s.publishEvent(events.TypeTaskCreated, events.TaskCreatedPayload{Task: task}, topicTasks)

	s.logger.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("title", task.Title))

	return task, nil
}

// GetTask implements TaskService.GetTask.
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks implements TaskService.ListTasks.
func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.Task, error) {
	tasks, err := s.taskStore.Find(ctx, filter)
	if err != nil {
		return nil, &TaskServiceError{Operation: "list", Message: "failed to query tasks", Err: err}
	}
	return tasks, nil
}

// UpdateTask implements TaskService.UpdateTask.
func (s *taskServiceImpl) UpdateTask(
	ctx context.Context,
	id uuid.UUID,
	patch TaskPatch,
	updatedBy string,
) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updatedFields := applyPatch(task, patch)
	if len(updatedFields) == 0 {
		return task, nil
	}

	if err := task.Validate(); err != nil {
		return nil, &TaskServiceError{Operation: "update", Message: "invalid task", Err: err}
	}

	task.UpdatedAt = time.Now().UTC()
	if err := s.saveTask(ctx, task, containsField(updatedFields, "reminder")); err != nil {
		return nil, &TaskServiceError{Operation: "update", Message: "failed to save task", Err: err}
	}

	s.publishEvent(events.TypeTaskUpdated, events.TaskUpdatedPayload{
		Task:          task,
		UpdatedFields: updatedFields,
		UpdatedBy:     updatedBy,
	}, topicTasks, taskTopic(id))

	s.logger.Debug("task updated",
		slog.String("task_id", id.String()),
		slog.Any("fields", updatedFields),
		slog.String("updated_by", updatedBy))

	return task, nil
}

// DeleteTask implements TaskService.DeleteTask.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.TypeTaskDeleted, events.TaskDeletedPayload{
		TaskID: id,
		Task:   task,
	}, topicTasks, taskTopic(id))

	s.logger.Debug("task deleted", slog.String("task_id", id.String()))

	return task, nil
}

// ReorderTasks implements TaskService.ReorderTasks.
func (s *taskServiceImpl) ReorderTasks(ctx context.Context, pairs []events.OrderPair) error {
	if len(pairs) == 0 {
		return ErrEmptyReorder
	}

	err := s.runTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.taskStore.WithTx(tx).Reorder(ctx, pairs)
	})
	if err != nil {
		if store.IsNotFoundError(err) {
			return err
		}
		return &TaskServiceError{Operation: "reorder", Message: "failed to apply order", Err: err}
	}

	s.publishEvent(events.TypeTaskReordered, events.TaskReorderedPayload{Order: pairs}, topicTasks)

	s.logger.Debug("tasks reordered", slog.Int("count", len(pairs)))

	return nil
}

// quickUpdateFields is the whitelist of fields the websocket side channel may
// patch.
var quickUpdateFields = map[string]struct{}{
	"completed": {},
	"priority":  {},
	"title":     {},
}

// QuickUpdate implements TaskService.QuickUpdate.
func (s *taskServiceImpl) QuickUpdate(
	ctx context.Context,
	id uuid.UUID,
	field string,
	value json.RawMessage,
	updatedBy string,
) (*domain.Task, error) {
	if _, ok := quickUpdateFields[field]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, field)
	}

	var patch TaskPatch
	switch field {
	case "completed":
		var completed bool
		if err := json.Unmarshal(value, &completed); err != nil {
			return nil, &TaskServiceError{Operation: "quick update", Message: "completed must be a boolean", Err: err}
		}
		patch.Completed = &completed
	case "priority":
		var priority domain.Priority
		if err := json.Unmarshal(value, &priority); err != nil {
			return nil, &TaskServiceError{Operation: "quick update", Message: "priority must be a string", Err: err}
		}
		patch.Priority = &priority
	case "title":
		var title string
		if err := json.Unmarshal(value, &title); err != nil {
			return nil, &TaskServiceError{Operation: "quick update", Message: "title must be a string", Err: err}
		}
		patch.Title = &title
	}

	return s.UpdateTask(ctx, id, patch, updatedBy)
}

// saveTask persists a patched task. Update never touches the reminder
// columns, so re-arming goes through the store's dedicated conditional write
// in the same transaction; the broadcast record and the row then agree.
func (s *taskServiceImpl) saveTask(ctx context.Context, task *domain.Task, rearm bool) error {
	if !rearm {
		return s.taskStore.Update(ctx, task)
	}

	return s.runTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		ts := s.taskStore.WithTx(tx)
		if err := ts.Update(ctx, task); err != nil {
			return err
		}
		return ts.RearmReminder(ctx, task.ID, task.Reminder)
	})
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// applyPatch copies the patch's non-nil fields onto the task and returns the
// names of the fields that changed. Setting a new reminder time re-arms the
// notification.
func applyPatch(task *domain.Task, patch TaskPatch) []string {
	var fields []string

	if patch.Title != nil && *patch.Title != task.Title {
		task.Title = *patch.Title
		fields = append(fields, "title")
	}
	if patch.Completed != nil && *patch.Completed != task.Completed {
		task.Completed = *patch.Completed
		fields = append(fields, "completed")
	}
	if patch.Priority != nil && *patch.Priority != task.Priority {
		task.Priority = *patch.Priority
		fields = append(fields, "priority")
	}
	if patch.Category != nil && *patch.Category != task.Category {
		task.Category = *patch.Category
		fields = append(fields, "category")
	}
	if patch.DueDate != nil {
		task.DueDate = patch.DueDate
		fields = append(fields, "due_date")
	}
	if patch.Reminder != nil {
		task.Reminder = patch.Reminder
		task.ReminderSent = false
		task.ReminderClaimedAt = nil
		fields = append(fields, "reminder")
	}
	if patch.Subtasks != nil {
		task.Subtasks = *patch.Subtasks
		fields = append(fields, "subtasks")
	}

	return fields
}

// publishEvent builds and publishes an event to each topic. Failures to
// marshal are logged and swallowed: the write already committed, and
// subscribers recover missed events by refetching.
func (s *taskServiceImpl) publishEvent(eventType string, payload interface{}, topics ...string) {
	event, err := events.New(eventType, payload)
	if err != nil {
		s.logger.Error("failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	for _, topic := range topics {
		s.publisher.Publish(topic, event)
	}
}
