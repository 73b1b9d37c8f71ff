package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/models"
)

// DefaultSampleRows reproduces the viewer's single-row sampling.
const DefaultSampleRows = 1

// SchemaInspector infers the column kinds of a measurement table.
type SchemaInspector interface {
	// Inspect samples the table and classifies every result column by the
	// first non-null value found. Unknown tables return an error wrapping
	// apperrors.ErrNotFound; an empty table yields a schema with no columns.
	Inspect(ctx context.Context, experiment, table string) (*models.TableSchema, error)
}

type schemaInspector struct {
	factory    datasource.DatasourceAdapterFactory
	sampleRows int
	logger     *zap.Logger
}

// NewSchemaInspector creates a schema inspector. sampleRows < 1 uses DefaultSampleRows.
func NewSchemaInspector(factory datasource.DatasourceAdapterFactory, sampleRows int, logger *zap.Logger) SchemaInspector {
	if sampleRows < 1 {
		sampleRows = DefaultSampleRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaInspector{
		factory:    factory,
		sampleRows: sampleRows,
		logger:     logger.Named("schema-inspector"),
	}
}

func (s *schemaInspector) Inspect(ctx context.Context, experiment, table string) (*models.TableSchema, error) {
	if _, err := loadTableCatalog(ctx, s.factory, experiment, table); err != nil {
		return nil, err
	}

	executor, err := s.factory.NewQueryExecutor(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment %q: %w", experiment, err)
	}
	defer executor.Close()

	query := "SELECT * FROM " + executor.QuoteIdentifier(table)
	result, err := runQuery(ctx, s.logger, executor, query, nil, s.sampleRows)
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", table, err)
	}

	schema := &models.TableSchema{
		Experiment: experiment,
		Table:      table,
		Columns:    make([]models.Column, 0, len(result.Columns)),
	}

	if result.RowCount == 0 {
		s.logger.Debug("Table is empty",
			zap.String("experiment", experiment),
			zap.String("table", table))
		return schema, nil
	}

	for i, col := range result.Columns {
		kind := models.KindUnknown
		for _, row := range result.Rows {
			if row[i] != nil {
				kind = KindOf(row[i])
				break
			}
		}
		schema.Columns = append(schema.Columns, models.Column{Name: col.Name, Kind: kind})
	}

	return schema, nil
}

// KindOf classifies a normalized, non-null result value.
func KindOf(v any) models.ColumnKind {
	switch v.(type) {
	case nil:
		return models.KindUnknown
	case int64, int32, int16, int8, int, uint64, uint32, uint16, uint8, uint, bool:
		return models.KindInteger
	case float64, float32:
		return models.KindReal
	case string, time.Time:
		return models.KindText
	case []byte:
		return models.KindBlob
	default:
		return models.KindUnknown
	}
}
