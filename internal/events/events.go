package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
)

// Event type identifiers carried on the wire. The task:* mutation events are
// produced by the task service after a durable write; the remaining types are
// side-channel events relayed between clients without touching the store.
const (
	TypeTaskCreated   = "task:created"
	TypeTaskUpdated   = "task:updated"
	TypeTaskDeleted   = "task:deleted"
	TypeTaskReordered = "task:reordered"

	TypeUserTyping    = "task:user-typing"
	TypeCollaboration = "task:collaboration"
	TypeError         = "task:error"
)

// Client-to-server frame types. These share the Event envelope but are only
// ever read by the server.
const (
	TypeTaskJoin    = "task:join"
	TypeTaskLeave   = "task:leave"
	TypeTyping      = "task:typing"
	TypeCollaborate = "task:collaborate"
	TypeQuickUpdate = "task:quick-update"
)

// Event is the envelope every broadcast frame is wrapped in. Events are
// transient: they are never persisted, and a client that misses one must
// refetch state rather than wait for a replay.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// New creates an Event of the given type with the payload serialized as JSON.
func New(eventType string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// TaskCreatedPayload carries the full created record.
type TaskCreatedPayload struct {
	Task *domain.Task `json:"task"`
}

// TaskUpdatedPayload carries the resulting record plus the names of the
// fields the patch touched, so clients can merge at field granularity.
type TaskUpdatedPayload struct {
	Task          *domain.Task `json:"task"`
	UpdatedFields []string     `json:"updated_fields"`
	UpdatedBy     string       `json:"updated_by,omitempty"`
}

// TaskDeletedPayload carries the removed id and, when available, the last
// known record so clients can offer an undo affordance.
type TaskDeletedPayload struct {
	TaskID uuid.UUID    `json:"task_id"`
	Task   *domain.Task `json:"task,omitempty"`
}

// OrderPair is one (id, orderIndex) assignment within a reorder batch.
type OrderPair struct {
	ID         uuid.UUID `json:"id"`
	OrderIndex int       `json:"order_index"`
}

// TaskReorderedPayload carries the whole reorder batch in one event so
// subscribers apply the permutation atomically.
type TaskReorderedPayload struct {
	Order []OrderPair `json:"order"`
}

// UserTypingPayload is a side-channel typing indicator scoped to a task room.
type UserTypingPayload struct {
	UserID   string    `json:"user_id"`
	TaskID   uuid.UUID `json:"task_id"`
	IsTyping bool      `json:"is_typing"`
}

// CollaborationPayload relays an arbitrary collaboration action between the
// members of a task room.
type CollaborationPayload struct {
	UserID string          `json:"user_id"`
	TaskID uuid.UUID       `json:"task_id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is sent to a single connection when one of its requests fails.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomPayload names the task room a client wants to join or leave.
type RoomPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TypingPayload is the inbound form of a typing indicator; the server stamps
// the sender's identity before relaying it as UserTypingPayload.
type TypingPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	IsTyping bool      `json:"is_typing"`
}

// CollaboratePayload is the inbound form of a collaboration action.
type CollaboratePayload struct {
	TaskID uuid.UUID       `json:"task_id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// QuickUpdatePayload patches one whitelisted field over the websocket side
// channel instead of the HTTP surface.
type QuickUpdatePayload struct {
	TaskID uuid.UUID       `json:"task_id"`
	Field  string          `json:"field"`
	Value  json.RawMessage `json:"value"`
}
