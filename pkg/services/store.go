package services

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/logging"
	sqlutil "github.com/ekaya-inc/oml2view/pkg/sql"
)

// tableCatalog is the declared shape of one table: the allow-list every
// caller-supplied identifier is checked against before it reaches SQL.
type tableCatalog struct {
	table   string
	columns map[string]bool
}

// hasColumn reports whether name is a declared column of the table.
func (c *tableCatalog) hasColumn(name string) bool {
	return c.columns[name]
}

// requireColumns returns an error wrapping apperrors.ErrNotFound for the first
// name that is not a declared column.
func (c *tableCatalog) requireColumns(kind string, names []string) error {
	for _, name := range names {
		if !c.hasColumn(name) {
			return fmt.Errorf("%s column %q of table %q: %w", kind, name, c.table, apperrors.ErrNotFound)
		}
	}
	return nil
}

// loadTableCatalog screens table, confirms it exists in the experiment and
// reads its declared columns.
func loadTableCatalog(ctx context.Context, factory datasource.DatasourceAdapterFactory, experiment, table string) (*tableCatalog, error) {
	if err := sqlutil.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}

	discoverer, err := factory.NewSchemaDiscoverer(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment %q: %w", experiment, err)
	}
	defer discoverer.Close()

	tables, err := discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w: %w", apperrors.ErrQuery, err)
	}

	found := false
	for _, t := range tables {
		if t.TableName == table {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("table %q in experiment %q: %w", table, experiment, apperrors.ErrNotFound)
	}

	columns, err := discoverer.DiscoverColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %q: %w: %w", table, apperrors.ErrQuery, err)
	}

	catalog := &tableCatalog{table: table, columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		catalog.columns[c.ColumnName] = true
	}
	return catalog, nil
}

// runQuery executes a statement and wraps failures with apperrors.ErrQuery.
// Queries are never retried.
func runQuery(ctx context.Context, logger *zap.Logger, executor datasource.QueryExecutor, query string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	logger.Debug("Running query", logging.QueryFields(query, params)...)

	result, err := executor.QueryWithParams(ctx, query, params, limit)
	if err != nil {
		logger.Error("Query failed",
			append(logging.QueryFields(query, params), zap.String("error", logging.SanitizeError(err)))...)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrQuery, err)
	}
	return result, nil
}

// closeQuietly closes v if it holds resources.
func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

// toInt64 reads an integer result cell.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
