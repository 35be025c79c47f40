package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/api/shared"
	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
	"github.com/Akash0391/todo-project/internal/service"
	"github.com/Akash0391/todo-project/internal/store"
)

// TaskHandler serves the HTTP task surface. All mutations are delegated to
// the task service so event publication stays behind the durable write.
type TaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Title    string           `json:"title"               validate:"required,max=500"`
	Priority string           `json:"priority,omitempty"  validate:"omitempty,oneof=High Medium Low"`
	Category string           `json:"category,omitempty"  validate:"omitempty,max=100"`
	DueDate  *time.Time       `json:"due_date,omitempty"`
	Reminder *time.Time       `json:"reminder,omitempty"`
	Subtasks []domain.Subtask `json:"subtasks,omitempty"`
	OwnerID  *uuid.UUID       `json:"owner_id,omitempty"`
}

// UpdateTaskRequest is the request body for a partial task update. Absent
// fields are left untouched.
type UpdateTaskRequest struct {
	Title     *string           `json:"title,omitempty"     validate:"omitempty,max=500"`
	Completed *bool             `json:"completed,omitempty"`
	Priority  *string           `json:"priority,omitempty"  validate:"omitempty,oneof=High Medium Low"`
	Category  *string           `json:"category,omitempty"  validate:"omitempty,max=100"`
	DueDate   *time.Time        `json:"due_date,omitempty"`
	Reminder  *time.Time        `json:"reminder,omitempty"`
	Subtasks  *[]domain.Subtask `json:"subtasks,omitempty"`
}

// ReorderRequest is the request body for a batch reorder.
type ReorderRequest struct {
	Order []events.OrderPair `json:"order" validate:"required,min=1"`
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.TaskFilter{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	}

	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed := raw == "true"
		filter.Completed = &completed
	}
	if raw := r.URL.Query().Get("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "invalid owner id")
			return
		}
		filter.OwnerID = &ownerID
	}

	tasks, err := h.taskService.ListTasks(r.Context(), filter)
	if err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "invalid task data", err)
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), service.CreateTaskRequest{
		Title:    req.Title,
		Priority: domain.Priority(req.Priority),
		Category: req.Category,
		DueDate:  req.DueDate,
		Reminder: req.Reminder,
		Subtasks: req.Subtasks,
		OwnerID:  req.OwnerID,
	})
	if err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// Update handles PATCH /api/tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "invalid task data", err)
		return
	}

	patch := service.TaskPatch{
		Title:     req.Title,
		Completed: req.Completed,
		Category:  req.Category,
		DueDate:   req.DueDate,
		Reminder:  req.Reminder,
		Subtasks:  req.Subtasks,
	}
	if req.Priority != nil {
		priority := domain.Priority(*req.Priority)
		patch.Priority = &priority
	}

	task, err := h.taskService.UpdateTask(r.Context(), id, patch, shared.GetIdentity(r.Context()))
	if err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/{id}. The response body carries the last
// known record so clients can offer undo.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.DeleteTask(r.Context(), id)
	if err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Reorder handles PUT /api/tasks/reorder.
func (h *TaskHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "invalid reorder data", err)
		return
	}

	if err := h.taskService.ReorderTasks(r.Context(), req.Order); err != nil {
		status, message := mapServiceError(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// taskID parses the {id} route parameter, answering 400 on garbage.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}
