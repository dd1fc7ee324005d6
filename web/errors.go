package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/present"
	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string, details interface{}) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message, Details: details}
}

// toAPIError maps pipeline errors onto HTTP responses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var colErr *db.ColumnError
	switch {
	case errors.Is(err, db.ErrDataUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "DATA_UNAVAILABLE", "Dataset is unavailable", err.Error())
	case errors.Is(err, db.ErrColumnNotFound) && errors.As(err, &colErr):
		return newAPIError(http.StatusUnprocessableEntity, "COLUMN_NOT_FOUND", "Dataset is missing a required column", colErr.Column)
	case errors.Is(err, db.ErrColumnNotFound), errors.Is(err, db.ErrUnsupportedType):
		return newAPIError(http.StatusUnprocessableEntity, "COLUMN_UNUSABLE", "Dataset column cannot be used", err.Error())
	case errors.Is(err, present.ErrUnknownView):
		return newAPIError(http.StatusNotFound, "VIEW_NOT_FOUND", "View not found", err.Error())
	case errors.Is(err, context.Canceled):
		return newAPIError(499, "CLIENT_CLOSED_REQUEST", "Request canceled", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error", nil)
	}
}
