package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/events"
)

// TopicTasks is the global topic every task-list view subscribes to.
const TopicTasks = "tasks"

// TaskTopic returns the per-task room name for the given task id.
func TaskTopic(id uuid.UUID) string {
	return "task:" + id.String()
}

// UserTopic returns the personal room name for the given identity.
func UserTopic(userID string) string {
	return "user:" + userID
}

// relay forwards published events to hubs in other processes. Implemented by
// the Redis backplane; nil when the service runs as a single instance.
type relay interface {
	Relay(topic string, event *events.Event) error
}

// Hub maintains the set of live connections and their topic memberships, and
// fans published events out to topic members. It is created at server start
// and torn down at shutdown; there is no ambient global registry.
//
// Delivery is best-effort and in-order per connection. A slow or closed
// connection never blocks delivery to others.
type Hub struct {
	mu sync.RWMutex

	// topics maps topic name to the set of member connections.
	topics map[string]map[*Connection]struct{}

	// memberships maps a connection to the set of topics it holds, so
	// disconnect can leave everything in one pass.
	memberships map[*Connection]map[string]struct{}

	backplane relay
	logger    *slog.Logger
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics:      make(map[string]map[*Connection]struct{}),
		memberships: make(map[*Connection]map[string]struct{}),
		logger:      logger.With("component", "hub"),
	}
}

// SetBackplane attaches a cross-instance relay. Must be called before the
// hub starts accepting connections.
func (h *Hub) SetBackplane(r relay) {
	h.backplane = r
}

// Register adds a connection to the hub and auto-joins its personal topic.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.memberships[conn]; !ok {
		h.memberships[conn] = make(map[string]struct{})
	}
	count := len(h.memberships)
	h.mu.Unlock()

	h.Subscribe(conn, UserTopic(conn.UserID()))

	h.logger.Debug("connection registered",
		"connection_id", conn.ID(),
		"user_id", conn.UserID(),
		"connection_count", count)
}

// Unregister removes a connection from every topic it holds and closes it.
// Safe to call more than once.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	topics := h.memberships[conn]
	delete(h.memberships, conn)
	for topic := range topics {
		members := h.topics[topic]
		delete(members, conn)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	count := len(h.memberships)
	h.mu.Unlock()

	conn.close()

	h.logger.Debug("connection unregistered",
		"connection_id", conn.ID(),
		"user_id", conn.UserID(),
		"connection_count", count)
}

// Subscribe joins a connection to a topic. Idempotent.
func (h *Hub) Subscribe(conn *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.memberships[conn]; !ok {
		h.memberships[conn] = make(map[string]struct{})
	}
	h.memberships[conn][topic] = struct{}{}

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Connection]struct{})
	}
	h.topics[topic][conn] = struct{}{}
}

// Unsubscribe removes a connection from a topic. A connection that is not a
// member is a no-op.
func (h *Hub) Unsubscribe(conn *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.topics[topic]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.memberships[conn]; ok {
		delete(topics, topic)
	}
}

// Publish delivers the event to every member of the topic and relays it to
// other instances when a backplane is attached.
func (h *Hub) Publish(topic string, event *events.Event) {
	h.publish(topic, event, nil)

	if h.backplane != nil {
		if err := h.backplane.Relay(topic, event); err != nil {
			h.logger.Error("failed to relay event to backplane",
				"event_type", event.Type,
				"error", err)
		}
	}
}

// PublishExcept delivers the event to every member of the topic except the
// given connection. Used for side-channel relays where the sender already
// knows its own action.
func (h *Hub) PublishExcept(topic string, event *events.Event, except *Connection) {
	h.publish(topic, event, except)
}

// PublishLocal delivers the event to local members only, without relaying.
// The backplane uses it to apply events received from other instances.
func (h *Hub) PublishLocal(topic string, event *events.Event) {
	h.publish(topic, event, nil)
}

// publish marshals the event once and queues it to each member with a
// non-blocking send, so one stuck subscriber cannot stall the rest.
func (h *Hub) publish(topic string, event *events.Event, except *Connection) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event",
			"event_type", event.Type,
			"error", err)
		return
	}

	h.mu.RLock()
	members := make([]*Connection, 0, len(h.topics[topic]))
	for conn := range h.topics[topic] {
		if conn == except {
			continue
		}
		members = append(members, conn)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, conn := range members {
		if !conn.trySend(data) {
			dropped++
		}
	}

	if dropped > 0 {
		h.logger.Warn("dropped event for slow subscribers",
			"topic", topic,
			"event_type", event.Type,
			"dropped", dropped,
			"members", len(members))
	}
}

// SendTo queues the event to a single connection, bypassing topics. Used for
// per-connection error frames.
func (h *Hub) SendTo(conn *Connection, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if !conn.trySend(data) {
		return fmt.Errorf("connection %s not accepting frames", conn.ID())
	}
	return nil
}

// ConnectionCount reports the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.memberships)
}

// Close unregisters every connection. Called at server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.memberships))
	for conn := range h.memberships {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.Unregister(conn)
	}
}
