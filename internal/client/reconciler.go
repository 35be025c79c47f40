// Package client implements the consumer side of the realtime task feed: a
// local task cache that applies optimistic mutations immediately and
// reconciles them against the authoritative events published by the server.
package client

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
)

// Reconciler keeps a local view of the task list. Mutations are applied
// optimistically with a rollback snapshot per mutation; server events are
// authoritative and applied last-writer-wins, so receiving the same event
// twice converges to the same state.
type Reconciler struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task

	// snapshots holds the pre-mutation state keyed by mutation id. A nil
	// entry records that the task did not exist before the mutation.
	snapshots map[string]snapshot
}

type snapshot struct {
	taskID uuid.UUID
	prior  *domain.Task
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		tasks:     make(map[uuid.UUID]*domain.Task),
		snapshots: make(map[string]snapshot),
	}
}

// Reset replaces the whole cache with an authoritative task list. Used on
// initial load and after a reconnect, when missed events cannot be replayed.
// Pending snapshots are dropped: the refetched state already includes or
// excludes those mutations authoritatively.
func (r *Reconciler) Reset(tasks []*domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make(map[uuid.UUID]*domain.Task, len(tasks))
	for _, task := range tasks {
		copied := *task
		r.tasks[task.ID] = &copied
	}
	r.snapshots = make(map[string]snapshot)
}

// OptimisticApply applies a locally initiated mutation immediately and
// records a rollback snapshot under the mutation id. Confirm or Rollback
// must follow once the server answers.
func (r *Reconciler) OptimisticApply(mutationID string, task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.tasks[task.ID]
	var priorCopy *domain.Task
	if prior != nil {
		copied := *prior
		priorCopy = &copied
	}
	r.snapshots[mutationID] = snapshot{taskID: task.ID, prior: priorCopy}

	copied := *task
	r.tasks[task.ID] = &copied
}

// OptimisticDelete removes a task locally and records a rollback snapshot.
func (r *Reconciler) OptimisticDelete(mutationID string, taskID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.tasks[taskID]
	var priorCopy *domain.Task
	if prior != nil {
		copied := *prior
		priorCopy = &copied
	}
	r.snapshots[mutationID] = snapshot{taskID: taskID, prior: priorCopy}

	delete(r.tasks, taskID)
}

// Confirm discards the rollback snapshot for a mutation the server accepted.
// The authoritative event for the mutation lands separately via ApplyEvent.
func (r *Reconciler) Confirm(mutationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, mutationID)
}

// Rollback restores the pre-mutation state for a mutation the server
// rejected. Unknown mutation ids are a no-op.
func (r *Reconciler) Rollback(mutationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[mutationID]
	if !ok {
		return
	}
	delete(r.snapshots, mutationID)

	if snap.prior == nil {
		delete(r.tasks, snap.taskID)
		return
	}
	copied := *snap.prior
	r.tasks[snap.taskID] = &copied
}

// ApplyEvent applies an authoritative server event to the cache. Events are
// idempotent: replaying the same event leaves the cache unchanged. Unknown
// event types are ignored so older clients survive newer servers.
func (r *Reconciler) ApplyEvent(event *events.Event) error {
	switch event.Type {
	case events.TypeTaskCreated:
		var payload events.TaskCreatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("bad %s payload: %w", event.Type, err)
		}
		if payload.Task == nil {
			return fmt.Errorf("%s event without task", event.Type)
		}
		r.put(payload.Task)

	case events.TypeTaskUpdated:
		var payload events.TaskUpdatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("bad %s payload: %w", event.Type, err)
		}
		if payload.Task == nil {
			return fmt.Errorf("%s event without task", event.Type)
		}
		// The event carries the full post-update record; last writer wins.
		r.put(payload.Task)

	case events.TypeTaskDeleted:
		var payload events.TaskDeletedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("bad %s payload: %w", event.Type, err)
		}
		r.mu.Lock()
		delete(r.tasks, payload.TaskID)
		r.mu.Unlock()

	case events.TypeTaskReordered:
		var payload events.TaskReorderedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("bad %s payload: %w", event.Type, err)
		}
		// The permutation is applied as a whole: either every pair lands
		// or, if the cache is missing one of the ids, none do and the
		// caller should resync.
		r.mu.Lock()
		for _, pair := range payload.Order {
			if _, ok := r.tasks[pair.ID]; !ok {
				r.mu.Unlock()
				return fmt.Errorf("reorder references unknown task %s", pair.ID)
			}
		}
		for _, pair := range payload.Order {
			r.tasks[pair.ID].OrderIndex = pair.OrderIndex
		}
		r.mu.Unlock()
	}

	return nil
}

// put stores a copy of the task.
func (r *Reconciler) put(task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *task
	r.tasks[task.ID] = &copied
}

// Get returns the cached task, or nil if absent.
func (r *Reconciler) Get(id uuid.UUID) *domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil
	}
	copied := *task
	return &copied
}

// Tasks returns the cached tasks in display order.
func (r *Reconciler) Tasks() []*domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		copied := *task
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len reports the number of cached tasks.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
