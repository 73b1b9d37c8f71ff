package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/config"
	"github.com/ekaya-inc/oml2view/pkg/models"
)

// DefaultRequest derives the viewer's initial chart selection from a schema:
// X is oml_ts_server when present and numeric, else the first numeric column;
// Y is every other numeric column that is not OML metadata; labels are the
// text columns. Rows are sorted by X.
// Returns an error wrapping apperrors.ErrEmptyResult when the schema has no
// columns (an empty table).
func DefaultRequest(schema *models.TableSchema) (models.SeriesRequest, error) {
	if len(schema.Columns) == 0 {
		return models.SeriesRequest{}, fmt.Errorf("table %q has no rows to infer columns from: %w", schema.Table, apperrors.ErrEmptyResult)
	}

	req := models.SeriesRequest{
		Y:      []string{},
		Labels: []string{},
	}

	if c, ok := schema.Column(models.ColumnTSServer); ok && c.Kind.IsNumeric() {
		req.X = c.Name
	} else {
		for _, c := range schema.Columns {
			if c.Kind.IsNumeric() {
				req.X = c.Name
				break
			}
		}
	}

	for _, c := range schema.Columns {
		if c.Name == req.X {
			continue
		}
		switch {
		case c.Kind.IsNumeric() && !models.IsMetadataColumn(c.Name):
			req.Y = append(req.Y, c.Name)
		case c.Kind == models.KindText:
			req.Labels = append(req.Labels, c.Name)
		}
	}

	req.Sort = req.X != ""
	return req, nil
}

// ViewService resolves the series request a table is first shown with.
type ViewService interface {
	// DefaultView returns DefaultRequest of the inspected schema with the
	// fields of a saved view for the table, if any, applied over it.
	DefaultView(ctx context.Context, experiment, table string) (models.SeriesRequest, error)
}

type viewService struct {
	inspector SchemaInspector
	views     *config.Views
	logger    *zap.Logger
}

// NewViewService creates a view service. views may be nil.
func NewViewService(inspector SchemaInspector, views *config.Views, logger *zap.Logger) ViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewService{
		inspector: inspector,
		views:     views,
		logger:    logger.Named("views"),
	}
}

func (s *viewService) DefaultView(ctx context.Context, experiment, table string) (models.SeriesRequest, error) {
	schema, err := s.inspector.Inspect(ctx, experiment, table)
	if err != nil {
		return models.SeriesRequest{}, err
	}

	req, err := DefaultRequest(schema)

	view, ok := s.views.Lookup(experiment, table)
	if !ok {
		return req, err
	}
	if err != nil {
		req = models.SeriesRequest{Y: []string{}, Labels: []string{}}
	}

	s.logger.Debug("Applying saved view",
		zap.String("experiment", experiment),
		zap.String("table", table))

	// Fields set in the view replace the derived ones.
	if view.X != "" {
		req.X = view.X
	}
	if view.Y != nil {
		req.Y = view.Y
	}
	if view.Labels != nil {
		req.Labels = view.Labels
	}
	if view.Filter != "" {
		req.Filter = view.Filter
	}
	req.Sort = req.Sort || view.Sort

	return req, nil
}
