// Package api provides the HTTP handlers of the Melora daemon and its
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
	"github.com/TimBasler1996/Melora-sub001/internal/feed"
	"github.com/TimBasler1996/Melora-sub001/internal/interaction"
	"github.com/TimBasler1996/Melora-sub001/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates there is no signed-in user.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeFeedUnavailable indicates the feed could not be read from the store.
	ErrCodeFeedUnavailable = "feed_unavailable"

	// ErrCodeFeedNotRunning indicates the feed synchronizer is stopped.
	ErrCodeFeedNotRunning = "feed_not_running"

	// ErrCodeBroadcastNotVisible indicates the broadcast is not in the visible set.
	ErrCodeBroadcastNotVisible = "broadcast_not_visible"

	// ErrCodeInteractionFailed indicates the like or its event could not be written.
	ErrCodeInteractionFailed = "interaction_failed"

	// ErrCodeMessageFailed indicates the like succeeded but its chat message did not.
	ErrCodeMessageFailed = "message_failed"

	// ErrCodePersistFailed indicates the like succeeded but could not be saved locally.
	ErrCodePersistFailed = "persist_failed"

	// ErrCodeTimeout indicates the request context ended before the operation finished.
	ErrCodeTimeout = "timeout"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and reports code to
// the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeBroadcastNotVisible:
		return http.StatusNotFound
	case ErrCodeFeedUnavailable, ErrCodeFeedNotRunning:
		return http.StatusServiceUnavailable
	case ErrCodeInteractionFailed:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps a domain error to its API error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrCodeAuthFailed
	case errors.Is(err, feed.ErrInvalidLocation), errors.Is(err, interaction.ErrInvalidTarget),
		errors.Is(err, interaction.ErrUnknownStage), errors.Is(err, interaction.ErrNotResumable):
		return ErrCodeValidation
	case errors.Is(err, interaction.ErrSenderMismatch):
		return ErrCodeForbidden
	case errors.Is(err, feed.ErrNotRunning):
		return ErrCodeFeedNotRunning
	case errors.Is(err, feed.ErrFeedUnavailable):
		return ErrCodeFeedUnavailable
	case interaction.IsStep(err, interaction.StepMessage):
		return ErrCodeMessageFailed
	case interaction.IsStep(err, interaction.StepPersist):
		return ErrCodePersistFailed
	case errors.Is(err, interaction.ErrInteractionWrite):
		return ErrCodeInteractionFailed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// writeDomainError maps err to a code and status and writes it. Internal
// errors are logged and answered with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := ErrorCode(err)
	status := StatusCodeMapping(code)
	message := err.Error()
	if code == ErrCodeInternal {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		message = "Internal server error"
	}
	WriteError(w, r.Context(), status, code, message)
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
