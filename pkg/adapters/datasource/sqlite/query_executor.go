package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// QueryExecutor provides SQLite query execution.
type QueryExecutor struct {
	*Adapter
}

// NewQueryExecutor creates a SQLite query executor using the connection manager.
// If connMgr is nil, opens an unmanaged handle (for tests or direct instantiation).
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
// $1, $2, ... placeholders are rewritten to SQLite's numbered ?1, ?2, ... form.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := datasource.RewritePlaceholders(sqlQuery, func(n int) string {
		return "?" + strconv.Itoa(n)
	})
	if limit > 0 {
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", queryToRun, limit)
	}

	e.conn.Lock()
	defer e.conn.Unlock()

	rows, err := e.db.QueryContext(ctx, queryToRun, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.CollectSQLRows(rows, nil)
}

// QuoteIdentifier quotes an identifier with double quotes, doubling embedded quotes.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TextMatchExpr casts expr to TEXT. The result column carries no declared
// type, so the driver returns the stored text as is.
func (e *QueryExecutor) TextMatchExpr(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
