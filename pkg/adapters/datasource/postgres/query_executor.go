//go:build postgres || all_adapters

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// QueryExecutor provides PostgreSQL query execution.
type QueryExecutor struct {
	*Adapter
}

// NewQueryExecutor creates a PostgreSQL query executor using the connection manager.
// If connMgr is nil, creates an unmanaged pool (for tests or direct instantiation).
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*QueryExecutor, error) {
	adapter, err := NewAdapter(ctx, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{Adapter: adapter}, nil
}

// Query runs a SELECT statement. See datasource.QueryExecutor.Query for limit behavior.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a SELECT with $n placeholders bound natively by pgx.
// Column types are named from the connection's pgtype map.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	if limit > 0 {
		sqlQuery = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
	}

	e.conn.Lock()
	defer e.conn.Unlock()

	rows, err := e.pool.Query(ctx, sqlQuery, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	typeMap := rows.Conn().TypeMap()
	fields := rows.FieldDescriptions()
	result := &datasource.QueryExecutionResult{
		Columns: make([]datasource.ColumnInfo, len(fields)),
		Rows:    make([][]any, 0),
	}
	for i, fd := range fields {
		result.Columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: typeName(typeMap, fd.DataTypeOID)}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		for i, v := range values {
			values[i] = datasource.NormalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// QuoteIdentifier quotes name with pgx's identifier sanitizer.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// TextMatchExpr returns "": pgx binds every value it decodes back losslessly.
func (e *QueryExecutor) TextMatchExpr(expr string) string { return "" }

func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
