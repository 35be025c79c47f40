package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
)

// TaskFilter narrows a Find query. Zero-valued fields are ignored.
type TaskFilter struct {
	// Query matches against task titles (case-insensitive substring).
	Query string

	// Category restricts results to a single category.
	Category string

	// Completed restricts results by completion flag when non-nil.
	Completed *bool

	// OwnerID restricts results to tasks owned by the given user when non-nil.
	OwnerID *uuid.UUID
}

// TaskStore defines the interface for task persistence.
//
// The reminder-related methods (ClaimDueReminders, ReleaseReminderClaim,
// MarkReminderSent) are conditional writes: they only transition from the
// expected prior state, so a concurrent editor and the reminder pipeline
// cannot lose each other's updates.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Find retrieves tasks matching the filter, ordered by order index with
	// id as tiebreak. Returns an empty slice if nothing matches.
	Find(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// Update saves changes to an existing task. The contended columns are
	// excluded from the write: order_index belongs to Reorder, and the
	// reminder columns belong to RearmReminder and MarkReminderSent, so a
	// read-modify-write update cannot revert a concurrent reorder or a
	// delivered reminder.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task and returns the last known record.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Reorder applies a batch of (id, orderIndex) assignments. Callers must
	// run it inside a transaction (via WithTx) so the batch is atomic;
	// a missing id fails the whole batch with ErrTaskNotFound.
	Reorder(ctx context.Context, pairs []events.OrderPair) error

	// ClaimDueReminders atomically claims up to limit tasks whose reminder
	// time has arrived, whose reminder has not been sent, and which are not
	// already claimed. Claimed tasks are stamped with now and returned.
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)

	// ReleaseReminderClaim clears the claim marker so a later tick can retry
	// the task. Releasing an unclaimed task is a no-op.
	ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error

	// ReleaseStaleReminderClaims clears claim markers older than the given
	// age, covering a scheduler that crashed between claiming and enqueuing.
	// Returns the number of claims released.
	ReleaseStaleReminderClaims(ctx context.Context, olderThan time.Duration) (int64, error)

	// RearmReminder sets a new reminder time and resets the sent flag and
	// claim marker in one write, so the scheduler picks the task up again.
	// Returns ErrTaskNotFound if the task does not exist.
	RearmReminder(ctx context.Context, id uuid.UUID, reminder *time.Time) error

	// MarkReminderSent transitions reminder_sent from false to true.
	// Returns ErrAlreadyClaimed if the flag was already set, and
	// ErrTaskNotFound if the task does not exist.
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}

// UserStore defines the read-only interface for user records.
type UserStore interface {
	// GetByID retrieves a user by its unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}
