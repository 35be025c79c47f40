// Package api provides the HTTP and websocket surface of the service.
package api

import (
	"errors"
	"net/http"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/service"
	"github.com/Akash0391/todo-project/internal/store"
)

// mapServiceError translates store/service/domain errors into an HTTP status
// and a client-safe message. Raw error strings never reach the client.
func mapServiceError(err error) (int, string) {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound, "task not found"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "task already exists"
	case errors.Is(err, service.ErrUnsupportedField):
		return http.StatusBadRequest, "field cannot be updated this way"
	case errors.Is(err, service.ErrEmptyReorder):
		return http.StatusBadRequest, "reorder requires at least one entry"
	case isValidationError(err):
		return http.StatusBadRequest, "invalid task data"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// isValidationError reports whether the error is a domain validation failure.
func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyTaskTitle) ||
		errors.Is(err, domain.ErrInvalidPriority) ||
		errors.Is(err, domain.ErrEmptySubtaskTitle) ||
		errors.Is(err, domain.ErrEmptyTaskID)
}

// quickUpdateErrorMessage renders a client-safe message for a rejected quick
// update frame.
func quickUpdateErrorMessage(err error) string {
	_, message := mapServiceError(err)
	return message
}
