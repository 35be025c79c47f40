package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/platform/logger"
	"github.com/Akash0391/todo-project/internal/store"
)

// taskColumns is the SELECT column list shared by every task query.
const taskColumns = `id, title, completed, priority, category, due_date, reminder,
	reminder_sent, reminder_claimed_at, subtasks, order_index, owner_id,
	created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx returns a new TaskStore instance that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db: tx,
	}
}

// Create saves a new task to the store.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	subtasks, err := json.Marshal(task.Subtasks)
	if err != nil {
		return fmt.Errorf("failed to marshal subtasks: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Completed,
		task.Priority,
		task.Category,
		task.DueDate,
		task.Reminder,
		task.ReminderSent,
		task.ReminderClaimedAt,
		subtasks,
		task.OrderIndex,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// Find retrieves tasks matching the filter, ordered by order index with id as
// tiebreak so the display order is deterministic.
func (s *PostgresTaskStore) Find(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	var conditions []string
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		conditions = append(conditions, fmt.Sprintf("completed = $%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY order_index ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// Update saves changes to an existing task. The SET list deliberately leaves
// out order_index and the reminder columns: those are written only by their
// conditional owners (Reorder, RearmReminder, MarkReminderSent), so a
// read-modify-write cycle here cannot revert a concurrently accepted reorder
// or a reminder another worker already delivered.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	subtasks, err := json.Marshal(task.Subtasks)
	if err != nil {
		return fmt.Errorf("failed to marshal subtasks: %w", err)
	}

	query := `
		UPDATE tasks
		SET title = $1, completed = $2, priority = $3, category = $4,
			due_date = $5, subtasks = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Completed,
		task.Priority,
		task.Category,
		task.DueDate,
		subtasks,
		time.Now().UTC(),
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", task.ID,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// Delete removes a task and returns the last known record.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `DELETE FROM tasks WHERE id = $1 RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to delete task",
			"task_id", id,
			"error", err)
		return nil, MapError(err)
	}

	return task, nil
}

// Reorder applies a batch of (id, orderIndex) assignments. The caller wraps
// it in a transaction via WithTx; any missing id fails the whole batch so a
// partially applied order is never committed.
func (s *PostgresTaskStore) Reorder(ctx context.Context, pairs []events.OrderPair) error {
	log := logger.FromContext(ctx)

	query := `UPDATE tasks SET order_index = $1, updated_at = $2 WHERE id = $3`
	now := time.Now().UTC()

	for _, pair := range pairs {
		result, err := s.db.ExecContext(ctx, query, pair.OrderIndex, now, pair.ID)
		if err != nil {
			log.Error("failed to reorder task",
				"task_id", pair.ID,
				"order_index", pair.OrderIndex,
				"error", err)
			return MapError(err)
		}
		if err := CheckRowsAffected(result, "task"); err != nil {
			return store.ErrTaskNotFound
		}
	}

	return nil
}

// ClaimDueReminders atomically claims up to limit due, unsent, unclaimed
// tasks. The claim and the read happen in one statement so two overlapping
// scheduler ticks cannot both claim the same task.
func (s *PostgresTaskStore) ClaimDueReminders(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET reminder_claimed_at = $1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE reminder IS NOT NULL
				AND reminder <= $2
				AND reminder_sent = FALSE
				AND reminder_claimed_at IS NULL
			ORDER BY reminder ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), now.UTC(), limit)
	if err != nil {
		log.Error("failed to claim due reminders", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed tasks: %w", err)
	}

	return tasks, nil
}

// ReleaseReminderClaim clears the claim marker so a later tick can retry.
func (s *PostgresTaskStore) ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tasks SET reminder_claimed_at = NULL WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return MapError(err)
	}

	return nil
}

// ReleaseStaleReminderClaims clears claim markers older than the given age on
// tasks that never got marked sent, covering a scheduler crash between the
// claim and the enqueue.
func (s *PostgresTaskStore) ReleaseStaleReminderClaims(
	ctx context.Context,
	olderThan time.Duration,
) (int64, error) {
	query := `
		UPDATE tasks
		SET reminder_claimed_at = NULL
		WHERE reminder_sent = FALSE
			AND reminder_claimed_at IS NOT NULL
			AND reminder_claimed_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, MapError(err)
	}

	return result.RowsAffected()
}

// RearmReminder sets a new reminder time and resets the sent flag and claim
// marker in one statement, so the update the caller broadcasts and the row the
// scheduler scans agree.
func (s *PostgresTaskStore) RearmReminder(ctx context.Context, id uuid.UUID, reminder *time.Time) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET reminder = $1, reminder_sent = FALSE, reminder_claimed_at = NULL,
			updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, reminder, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to rearm reminder",
			"task_id", id,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// MarkReminderSent transitions reminder_sent from false to true. The guard in
// the WHERE clause makes the transition happen exactly once; a lost write
// surfaces as store.ErrAlreadyClaimed so redeliveries become no-ops.
func (s *PostgresTaskStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2 AND reminder_sent = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to mark reminder sent",
			"task_id", id,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Distinguish "already sent" from "deleted".
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).
		Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrTaskNotFound
	}

	return store.ErrAlreadyClaimed
}

// rowScanner matches *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row in taskColumns order.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var subtasks []byte
	var dueDate, reminder, claimedAt sql.NullTime
	var ownerID uuid.NullUUID

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Completed,
		&task.Priority,
		&task.Category,
		&dueDate,
		&reminder,
		&task.ReminderSent,
		&claimedAt,
		&subtasks,
		&task.OrderIndex,
		&ownerID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if reminder.Valid {
		task.Reminder = &reminder.Time
	}
	if claimedAt.Valid {
		task.ReminderClaimedAt = &claimedAt.Time
	}
	if ownerID.Valid {
		task.OwnerID = &ownerID.UUID
	}

	if len(subtasks) > 0 {
		if err := json.Unmarshal(subtasks, &task.Subtasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subtasks: %w", err)
		}
	}
	if task.Subtasks == nil {
		task.Subtasks = []domain.Subtask{}
	}

	return &task, nil
}
