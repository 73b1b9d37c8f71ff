//go:build mssql || all_adapters

package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	*Adapter
}

// NewQueryExecutor creates a SQL Server query executor.
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

// QueryWithParams runs a parameterized SELECT.
// The SQL should use $1, $2, etc. for parameter placeholders (PostgreSQL style);
// they are converted to SQL Server's @p1, @p2, ... named parameters.
// A positive limit uses SQL Server's TOP clause.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := datasource.RewritePlaceholders(sqlQuery, placeholder)
	if limit > 0 {
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, queryToRun)
	}

	namedParams := make([]any, len(params))
	for i, param := range params {
		namedParams[i] = named(i+1, param)
	}

	e.conn.Lock()
	defer e.conn.Unlock()

	rows, err := e.db.QueryContext(ctx, queryToRun, namedParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := datasource.CollectSQLRows(rows, convertValue)
	if err != nil {
		return nil, err
	}
	for i := range result.Columns {
		result.Columns[i].Type = mapSQLServerType(result.Columns[i].Type)
	}
	return result, nil
}

// QuoteIdentifier quotes an identifier with square brackets.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// TextMatchExpr returns "": go-mssqldb binds decoded values back unchanged.
func (e *QueryExecutor) TextMatchExpr(expr string) string { return "" }

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
