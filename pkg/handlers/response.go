package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/logging"
)

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
// The body is encoded before the status line goes out, so a value that
// cannot be encoded yields a 500 error response instead of an empty 200.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fallback, _ := json.Marshal(ApiResponse{
			Success: false,
			Error:   "internal_error",
			Message: "failed to encode response",
		})
		_, _ = w.Write(append(fallback, '\n'))
		return fmt.Errorf("failed to encode response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, err = w.Write(append(body, '\n'))
	return err
}

// writeData writes a successful ApiResponse.
func writeData(w http.ResponseWriter, logger *zap.Logger, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// statusForError maps a service error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidIdentifier):
		return http.StatusBadRequest, "invalid_identifier"
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrEmptyResult):
		return http.StatusUnprocessableEntity, "empty_result"
	case errors.Is(err, apperrors.ErrQuery):
		return http.StatusInternalServerError, "query_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError logs err and writes the matching error response.
// Client errors are logged at debug level. The message of a 500 never
// carries driver text.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	status, code := statusForError(err)

	fields = append(fields, zap.String("error", logging.SanitizeError(err)))
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error(msg, fields...)
		message = msg
	} else {
		logger.Debug(msg, fields...)
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
