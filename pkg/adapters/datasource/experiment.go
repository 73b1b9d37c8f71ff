package datasource

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

// MaxExperimentNameLength bounds experiment names. PostgreSQL database names
// are limited to 63 bytes.
const MaxExperimentNameLength = 63

// ValidateExperimentName rejects names that cannot be an OML experiment:
// experiments become file names (SQLite) or database names (servers), so path
// separators, parent references and DSN delimiters are refused outright.
func ValidateExperimentName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("experiment name is empty: %w", apperrors.ErrInvalidIdentifier)
	case len(name) > MaxExperimentNameLength:
		return fmt.Errorf("experiment name exceeds %d bytes: %w", MaxExperimentNameLength, apperrors.ErrInvalidIdentifier)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("experiment name %q starts with a dot: %w", name, apperrors.ErrInvalidIdentifier)
	case strings.ContainsAny(name, "/\\?#&;=\x00"):
		return fmt.Errorf("experiment name %q contains a reserved character: %w", name, apperrors.ErrInvalidIdentifier)
	}
	return nil
}
