package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/models"
)

// ParseExperiment extracts and validates the experiment name from the request path.
// Returns the name and true on success, or "" and false on error
// (after writing an error response).
// Expects path parameter: exp
func ParseExperiment(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	experiment := r.PathValue("exp")
	if err := datasource.ValidateExperimentName(experiment); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_experiment", err.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return experiment, true
}

// ParseExperimentAndTable extracts the experiment and table names.
// The table name is screened by the services against the store catalog.
// Expects path parameters: exp, table
func ParseExperimentAndTable(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, string, bool) {
	experiment, ok := ParseExperiment(w, r, logger)
	if !ok {
		return "", "", false
	}
	return experiment, r.PathValue("table"), true
}

// parseSeriesQuery reads a chart selection from query parameters:
//
//	x=oml_ts_server&y=value&y=phase&label=channel&sort=true&filter=channel+%3D%3D+"a"
//
// y and label may be repeated or comma-separated.
func parseSeriesQuery(q url.Values) (models.SeriesRequest, error) {
	req := models.SeriesRequest{
		X:      strings.TrimSpace(q.Get("x")),
		Y:      splitList(q["y"]),
		Labels: splitList(q["label"]),
		Filter: q.Get("filter"),
	}

	if err := parseSort(q, &req); err != nil {
		return req, err
	}
	if req.X == "" && len(req.Y) == 0 {
		return req, fmt.Errorf("at least one of x or y is required: %w", apperrors.ErrInvalidRequest)
	}
	return req, nil
}

// overlaySeriesQuery applies the label, filter and sort parameters present
// in q on top of a default selection. Absent parameters keep the default.
func overlaySeriesQuery(req models.SeriesRequest, q url.Values) (models.SeriesRequest, error) {
	if _, ok := q["label"]; ok {
		req.Labels = splitList(q["label"])
	}
	if _, ok := q["filter"]; ok {
		req.Filter = q.Get("filter")
	}
	if err := parseSort(q, &req); err != nil {
		return req, err
	}
	return req, nil
}

func parseSort(q url.Values, req *models.SeriesRequest) error {
	if s := q.Get("sort"); s != "" {
		sort, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("sort must be true or false, got %q: %w", s, apperrors.ErrInvalidRequest)
		}
		req.Sort = sort
	}
	if req.Sort && req.X == "" {
		return fmt.Errorf("sort requires x: %w", apperrors.ErrInvalidRequest)
	}
	return nil
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
