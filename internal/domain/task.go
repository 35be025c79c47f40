package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority represents the urgency of a task.
type Priority string

// Possible priority values
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// DefaultCategory is assigned to tasks created without an explicit category.
const DefaultCategory = "General"

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskTitle     = errors.New("task title cannot be empty")
	ErrInvalidPriority    = errors.New("invalid task priority")
	ErrEmptySubtaskTitle  = errors.New("subtask title cannot be empty")
	ErrReminderAlreadySet = errors.New("reminder already marked sent")
)

// Subtask is a checklist entry owned by its parent task. It has no identity
// beyond its position in the parent's list.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task represents a single to-do item in a shared list. Tasks are mutated
// through the task service only; the reminder worker flips ReminderSent after
// a delivery is handled, and the scheduler sets ReminderClaimedAt while a
// delivery job is in flight.
type Task struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Completed         bool       `json:"completed"`
	Priority          Priority   `json:"priority"`
	Category          string     `json:"category"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	Reminder          *time.Time `json:"reminder,omitempty"`
	ReminderSent      bool       `json:"reminder_sent"`
	ReminderClaimedAt *time.Time `json:"-"`
	Subtasks          []Subtask  `json:"subtasks"`
	OrderIndex        int        `json:"order_index"`
	OwnerID           *uuid.UUID `json:"owner_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewTask creates a new Task with the given title, applying defaults for
// priority and category. Returns an error if validation fails.
func NewTask(title string, priority Priority, ownerID *uuid.UUID) (*Task, error) {
	if priority == "" {
		priority = PriorityMedium
	}

	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		Title:     title,
		Priority:  priority,
		Category:  DefaultCategory,
		Subtasks:  []Subtask{},
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	if !isValidPriority(t.Priority) {
		return ErrInvalidPriority
	}

	for _, st := range t.Subtasks {
		if st.Title == "" {
			return ErrEmptySubtaskTitle
		}
	}

	return nil
}

// MarkReminderSent transitions ReminderSent from false to true. The
// transition happens at most once; a second call returns
// ErrReminderAlreadySet so callers can treat redelivery as a no-op.
func (t *Task) MarkReminderSent() error {
	if t.ReminderSent {
		return ErrReminderAlreadySet
	}
	t.ReminderSent = true
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ReminderDue reports whether the task's reminder time has arrived and the
// reminder has not yet been handled.
func (t *Task) ReminderDue(now time.Time) bool {
	return t.Reminder != nil && !t.Reminder.After(now) && !t.ReminderSent
}

// Less orders tasks by OrderIndex, breaking ties by id so that display order
// is deterministic.
func (t *Task) Less(other *Task) bool {
	if t.OrderIndex != other.OrderIndex {
		return t.OrderIndex < other.OrderIndex
	}
	return t.ID.String() < other.ID.String()
}

// isValidPriority checks if the given priority is a valid Priority.
func isValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}
