package sql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

// MaxIdentifierLength bounds table and column names accepted from callers.
// PostgreSQL truncates at 63 bytes and SQL Server at 128 characters.
const MaxIdentifierLength = 128

// InjectionCheckResult contains the result of an injection check on a caller-supplied value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // What the value was supplied as (e.g. "table", "label")
	Value       any    // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a value supplied by an API or MCP caller.
//
// Only string values are checked - numbers, booleans, and other types cannot
// contain SQL injection patterns and will return nil (no injection detected).
//
// Example:
//
//	result := CheckValueForInjection("table", "'; DROP TABLE _senders--")
//	// result.IsSQLi == true
func CheckValueForInjection(name string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}

	return nil
}

// ValidateIdentifier screens a table or column name before it is looked up in
// the store catalog. The catalog allow-list is authoritative; this only rejects
// values that can never be identifiers so they are not sent to the store at all.
// Returned errors wrap apperrors.ErrInvalidIdentifier.
func ValidateIdentifier(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s name is empty: %w", kind, apperrors.ErrInvalidIdentifier)
	}
	if !utf8.ValidString(name) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%s name %q is not valid text: %w", kind, name, apperrors.ErrInvalidIdentifier)
	}
	if utf8.RuneCountInString(name) > MaxIdentifierLength {
		return fmt.Errorf("%s name exceeds %d characters: %w", kind, MaxIdentifierLength, apperrors.ErrInvalidIdentifier)
	}
	if result := CheckValueForInjection(kind, name); result != nil {
		return fmt.Errorf("%s name %q rejected (fingerprint %s): %w",
			kind, name, result.Fingerprint, apperrors.ErrInvalidIdentifier)
	}
	return nil
}

// ValidateIdentifiers runs ValidateIdentifier over names, stopping at the first failure.
func ValidateIdentifiers(kind string, names []string) error {
	for _, name := range names {
		if err := ValidateIdentifier(kind, name); err != nil {
			return err
		}
	}
	return nil
}
