package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Akash0391/todo-project/internal/api/shared"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/hub"
	"github.com/Akash0391/todo-project/internal/service"
)

// writeTimeout bounds a single frame write; a peer that cannot drain a frame
// in this window is treated as gone.
const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP requests to websocket connections and bridges them
// into the hub: outbound frames drain from the connection's buffer, inbound
// frames are dispatched as room management, side-channel relays, or quick
// updates.
type WSHandler struct {
	hub            *hub.Hub
	taskService    service.TaskService
	sendBufferSize int
	logger         *slog.Logger
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(
	h *hub.Hub,
	taskService service.TaskService,
	sendBufferSize int,
	logger *slog.Logger,
) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:            h,
		taskService:    taskService,
		sendBufferSize: sendBufferSize,
		logger:         logger.With(slog.String("component", "ws_handler")),
	}
}

// Handle upgrades the request and services the connection until either side
// closes. Identity was resolved by the middleware chain; every connection is
// auto-subscribed to the global task feed and its personal room.
func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity := shared.GetIdentity(r.Context())
	if identity == "" {
		identity = "anonymous"
	}

	socket, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}
	defer socket.Close(websocket.StatusInternalError, "connection torn down")

	conn := hub.NewConnection(identity, h.sendBufferSize)
	h.hub.Register(conn)
	h.hub.Subscribe(conn, hub.TopicTasks)
	defer h.hub.Unregister(conn)

	log := h.logger.With(
		slog.String("connection_id", conn.ID().String()),
		slog.String("user_id", identity))
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, socket, conn, log)
	h.readLoop(ctx, socket, conn, log)

	log.Info("websocket disconnected")
	socket.Close(websocket.StatusNormalClosure, "")
}

// writePump drains the connection's outbound buffer onto the socket.
func (h *WSHandler) writePump(
	ctx context.Context,
	socket *websocket.Conn,
	conn *hub.Connection,
	log *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case data := <-conn.Outbound():
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := socket.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Debug("write failed, dropping connection",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// readLoop consumes inbound frames until the socket fails or the context is
// cancelled.
func (h *WSHandler) readLoop(
	ctx context.Context,
	socket *websocket.Conn,
	conn *hub.Connection,
	log *slog.Logger,
) {
	for {
		_, data, err := socket.Read(ctx)
		if err != nil {
			return
		}

		var frame events.Event
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, "malformed frame")
			continue
		}

		h.dispatch(ctx, conn, &frame, log)
	}
}

// dispatch routes one inbound frame. Side-channel frames (typing,
// collaborate) are relayed to the task room without touching the store;
// quick updates go through the task service so the persist-then-publish
// ordering holds even on this path.
func (h *WSHandler) dispatch(
	ctx context.Context,
	conn *hub.Connection,
	frame *events.Event,
	log *slog.Logger,
) {
	switch frame.Type {
	case events.TypeTaskJoin:
		var payload events.RoomPayload
		if err := frame.UnmarshalPayload(&payload); err != nil {
			h.sendError(conn, "malformed join frame")
			return
		}
		h.hub.Subscribe(conn, hub.TaskTopic(payload.TaskID))
		log.Debug("joined task room", slog.String("task_id", payload.TaskID.String()))

	case events.TypeTaskLeave:
		var payload events.RoomPayload
		if err := frame.UnmarshalPayload(&payload); err != nil {
			h.sendError(conn, "malformed leave frame")
			return
		}
		h.hub.Unsubscribe(conn, hub.TaskTopic(payload.TaskID))

	case events.TypeTyping:
		var payload events.TypingPayload
		if err := frame.UnmarshalPayload(&payload); err != nil {
			h.sendError(conn, "malformed typing frame")
			return
		}
		h.relay(conn, hub.TaskTopic(payload.TaskID), events.TypeUserTyping,
			events.UserTypingPayload{
				UserID:   conn.UserID(),
				TaskID:   payload.TaskID,
				IsTyping: payload.IsTyping,
			})

	case events.TypeCollaborate:
		var payload events.CollaboratePayload
		if err := frame.UnmarshalPayload(&payload); err != nil {
			h.sendError(conn, "malformed collaborate frame")
			return
		}
		h.relay(conn, hub.TaskTopic(payload.TaskID), events.TypeCollaboration,
			events.CollaborationPayload{
				UserID: conn.UserID(),
				TaskID: payload.TaskID,
				Action: payload.Action,
				Data:   payload.Data,
			})

	case events.TypeQuickUpdate:
		var payload events.QuickUpdatePayload
		if err := frame.UnmarshalPayload(&payload); err != nil {
			h.sendError(conn, "malformed quick-update frame")
			return
		}
		_, err := h.taskService.QuickUpdate(
			ctx, payload.TaskID, payload.Field, payload.Value, conn.UserID())
		if err != nil {
			log.Debug("quick update rejected",
				slog.String("task_id", payload.TaskID.String()),
				slog.String("field", payload.Field),
				slog.String("error", err.Error()))
			h.sendError(conn, quickUpdateErrorMessage(err))
		}

	default:
		h.sendError(conn, "unknown frame type")
	}
}

// relay stamps and publishes a side-channel event to a task room, excluding
// the sender, which already knows its own action.
func (h *WSHandler) relay(conn *hub.Connection, topic, eventType string, payload interface{}) {
	event, err := events.New(eventType, payload)
	if err != nil {
		h.sendError(conn, "failed to relay event")
		return
	}
	h.hub.PublishExcept(topic, event, conn)
}

// sendError answers the sender, and only the sender, with a task:error frame.
func (h *WSHandler) sendError(conn *hub.Connection, message string) {
	event, err := events.New(events.TypeError, events.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := h.hub.SendTo(conn, event); err != nil {
		h.logger.Debug("failed to deliver error frame",
			slog.String("connection_id", conn.ID().String()),
			slog.String("error", err.Error()))
	}
}
