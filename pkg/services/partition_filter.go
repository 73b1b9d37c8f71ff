package services

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/models"
)

// PartitionFilter selects partitions by a boolean expression over their label
// values, e.g. `channel == "a" or channel == "NULL"`. Label values are matched
// in their display form (models.FormatValue), so NULL is "NULL".
type PartitionFilter struct {
	expr      string
	evaluator *bexpr.Evaluator
}

// NewPartitionFilter parses expr. Parse errors wrap apperrors.ErrInvalidRequest.
func NewPartitionFilter(expr string) (*PartitionFilter, error) {
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("error parsing filter '%s': %w: %w", expr, apperrors.ErrInvalidRequest, err)
	}
	return &PartitionFilter{expr: expr, evaluator: evaluator}, nil
}

// Match reports whether a partition with these labels passes the filter.
// Referencing a label that is not active is an error wrapping
// apperrors.ErrInvalidRequest.
func (f *PartitionFilter) Match(labels []models.LabelValue) (bool, error) {
	datum := make(map[string]string, len(labels))
	for _, l := range labels {
		datum[l.Column] = models.FormatValue(l.Value)
	}

	ok, err := f.evaluator.Evaluate(datum)
	if err != nil {
		return false, fmt.Errorf("error evaluating filter '%s': %w: %w", f.expr, apperrors.ErrInvalidRequest, err)
	}
	return ok, nil
}

// String returns the filter expression.
func (f *PartitionFilter) String() string {
	return f.expr
}
