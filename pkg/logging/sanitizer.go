package logging

import (
	"regexp"

	"go.uber.org/zap"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 160
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches the user:pass@host part of postgresql:// and sqlserver:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/?\s]+`)

	// go-mssqldb puts "user id" and "password" into the query string, URL-encoded
	encodedPasswordPattern = regexp.MustCompile(`(?i)(password|user\+id|user%20id)=[^&\s]+`)
)

// SanitizeConnectionString removes credentials from a connection string.
// Use this before logging any DSN. SQLite file DSNs pass through unchanged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = encodedPasswordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might echo a DSN.
// Drivers (pgx in particular) include the connection string in dial errors.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeQuery truncates a SQL statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return TruncateString(query, MaxQueryLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// QueryFields returns the zap fields logged for a store query.
// Parameter values are never logged, only their count.
func QueryFields(query string, params []any) []zap.Field {
	return []zap.Field{
		zap.String("sql", SanitizeQuery(query)),
		zap.Int("params", len(params)),
	}
}
