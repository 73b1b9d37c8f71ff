package datasource

import "context"

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the experiment database is reachable.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// ExperimentLister enumerates the experiments a backend holds.
// For SQLite that is the set of database files in the data directory; for
// database servers it is the set of user databases.
type ExperimentLister interface {
	ListExperiments(ctx context.Context) ([]string, error)
}

// SchemaDiscoverer reads the catalog of one experiment database.
// The catalog is the allow-list every caller-supplied identifier is checked against.
// Each implementation owns its connection and must be closed when done.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables, including the OML metadata tables
	// (_senders, _experiment_metadata) when they exist. Sorted by name.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns the declared columns of a table in ordinal order.
	// Returns an empty slice when the table does not exist.
	DiscoverColumns(ctx context.Context, tableName string) ([]ColumnMetadata, error)

	// Close releases the database connection.
	Close() error
}

// QueryExecutor executes read-only SQL against one experiment database.
//
// Statements use $1, $2, ... placeholders regardless of dialect; adapters
// rewrite them to the driver's native form, leaving quoted identifiers and
// string literals untouched. Identifiers must be quoted with
// QuoteIdentifier before they are placed in statement text.
//
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement bounded to limit rows using the dialect's
	// limit form:
	//   - PostgreSQL, SQLite: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	//
	// limit <= 0 runs the statement unmodified, so an ORDER BY in the
	// statement is honored.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QueryWithParams runs a parameterized SELECT.
	// The params slice provides values in order corresponding to the placeholders.
	// See Query for limit behavior.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	// QuoteIdentifier safely quotes a SQL identifier (table or column name)
	// to prevent SQL injection. Each adapter implements dialect-specific quoting.
	QuoteIdentifier(name string) string

	// TextMatchExpr returns an expression reading expr in the store's stored
	// text form, or "" when values this executor returns bind back as
	// parameters unchanged. SQLite uses it for DATE/DATETIME/TIMESTAMP columns,
	// whose text the driver parses into time.Time on the way out.
	TextMatchExpr(expr string) string

	// Close releases any resources held by the executor.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "NVARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
// Rows keep result column order; values are normalized to Go scalars
// (int64, float64, string, []byte, bool, time.Time or nil).
type QueryExecutionResult struct {
	Columns  []ColumnInfo `json:"columns"`
	Rows     [][]any      `json:"rows"`
	RowCount int          `json:"row_count"`
}

// TableMetadata represents a discovered database table.
type TableMetadata struct {
	SchemaName string
	TableName  string
}

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}
