package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Errors the caller can act on (unknown table, bad column, bad filter) are
// returned as successful tool results carrying this body so the agent sees
// them rather than a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable errors (invalid parameters, resource not found).
// System failures (store unreachable, driver errors) are returned as Go errors.
//
// Example:
//
//	if table == "" {
//	    return NewErrorResult("invalid_parameters", "parameter 'table' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "not_found",
//	    `output column "rssi" of table "generator_sin"`,
//	    map[string]any{"columns": []string{"oml_ts_server", "value"}},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ServiceErrorCode maps a service error to a tool error code. ok is false for
// errors that are not the caller's to fix.
func ServiceErrorCode(err error) (code string, ok bool) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidIdentifier):
		return "invalid_identifier", true
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return "invalid_parameters", true
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found", true
	case errors.Is(err, apperrors.ErrEmptyResult):
		return "empty_result", true
	case errors.Is(err, apperrors.ErrQuery) && IsSQLUserError(err):
		return SQLUserErrorCode(err), true
	}
	return "", false
}

// NewServiceErrorResult converts a service error into a structured tool
// result when the caller can act on it. Returns nil otherwise; the caller
// should then return the Go error.
//
// Example usage:
//
//	schema, err := deps.Inspector.Inspect(ctx, experiment, table)
//	if err != nil {
//	    if errResult := NewServiceErrorResult(err); errResult != nil {
//	        return errResult, nil
//	    }
//	    return nil, fmt.Errorf("inspect failed: %w", err)
//	}
func NewServiceErrorResult(err error) *mcp.CallToolResult {
	code, ok := ServiceErrorCode(err)
	if !ok {
		return nil
	}
	message := err.Error()
	if errors.Is(err, apperrors.ErrQuery) {
		message = ExtractSQLErrorMessage(err)
	}
	return NewErrorResult(code, message)
}

// sqlStateRegex matches PostgreSQL SQLSTATE codes in error messages like "(SQLSTATE 42601)"
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError returns true if the error is a SQL user error rather than a
// server error (connection failure, internal error).
//
// PostgreSQL SQLSTATE class codes that indicate user errors:
//   - 22xxx: Data Exception (invalid input, division by zero)
//   - 42xxx: Syntax Error or Access Rule Violation
func IsSQLUserError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isSQLStateUserError(pgErr.Code)
	}

	// Check for SQLSTATE pattern in error message (for wrapped errors)
	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return isSQLStateUserError(matches[1])
	}

	return false
}

// isSQLStateUserError returns true if the SQLSTATE code indicates a user error.
func isSQLStateUserError(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", // Data Exception
		"42": // Syntax Error or Access Rule Violation
		return true
	}
	return false
}

// SQLUserErrorCode returns an appropriate error code for a SQL user error.
// Returns empty string if the error carries no SQLSTATE.
func SQLUserErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapSQLStateToCode(pgErr.Code)
	}

	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return mapSQLStateToCode(matches[1])
	}

	return ""
}

// mapSQLStateToCode maps a SQLSTATE code to a human-readable error code.
func mapSQLStateToCode(sqlState string) string {
	if len(sqlState) < 2 {
		return "sql_error"
	}

	switch sqlState {
	case "42703": // undefined_column
		return "undefined_column"
	case "42P01": // undefined_table
		return "undefined_table"
	case "42883": // undefined_function, e.g. ORDER BY on an unorderable type
		return "undefined_function"
	case "22003": // numeric_value_out_of_range
		return "numeric_out_of_range"
	case "22P02": // invalid_text_representation
		return "invalid_input"
	}

	if sqlState[:2] == "22" {
		return "data_exception"
	}
	return "sql_error"
}

// ExtractSQLErrorMessage extracts a clean error message from a SQL error.
// Removes the "SQLSTATE XXXXX" suffix and any "ERROR: " prefix for cleaner display.
func ExtractSQLErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	msg := err.Error()

	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}

	prefixes := []string{
		apperrors.ErrQuery.Error() + ": ",
		"ERROR: ",
	}
	for _, prefix := range prefixes {
		msg = strings.TrimPrefix(msg, prefix)
	}

	return msg
}
