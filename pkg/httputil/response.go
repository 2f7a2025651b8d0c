package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/sushilparajuli/note-app-fullstack/pkg/errors"
	"github.com/sushilparajuli/note-app-fullstack/pkg/logger"
	"github.com/sushilparajuli/note-app-fullstack/pkg/validator"
)

// Response is the standard JSON envelope used by every endpoint. Every
// response carries Success; failures carry Error (and Errors for field-level
// validation failures), successes carry Data and an optional Message.
type Response struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope with the given data and message.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// WriteFailure writes a failure envelope with the given error message.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

// WriteError maps an application error to the envelope. AppError values carry
// their own status and message; anything unclassified becomes a generic 500
// and the cause is logged, never exposed to the caller. It prefers the
// request-scoped logger from context over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	status := apperrors.HTTPStatus(err)
	message := "an internal error occurred"

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		status = appErr.Status
		message = appErr.Message
	case errors.Is(err, apperrors.ErrNotFound):
		message = "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		message = "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrUnauthorized):
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteFailure(w, status, message)
}

// WriteValidationError renders a validation failure with the field-keyed map
// of message lists in the Errors slot.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "Validation error",
			Errors:  valErr.Fields(),
		})
		return
	}

	WriteFailure(w, http.StatusBadRequest, err.Error())
}
