package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/oml2view/pkg/testhelpers"
)

const testExperiment = "exp1"

// newFixtureFactory builds a SQLite data directory holding the OML fixture
// experiment and a managed adapter factory over it.
func newFixtureFactory(t *testing.T) (datasource.DatasourceAdapterFactory, string) {
	t.Helper()

	dir := testhelpers.NewOMLDataDir(t, testExperiment)

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { connMgr.Close() })

	factory, err := datasource.NewDatasourceAdapterFactory("sqlite", map[string]any{"data_dir": dir}, connMgr)
	require.NoError(t, err)

	return factory, dir
}

// ============================================================================
// Mock Implementations
// ============================================================================

// mockFactory serves a fixed catalog and a scripted query executor.
type mockFactory struct {
	tables      []datasource.TableMetadata
	columns     []datasource.ColumnMetadata
	discoverErr error
	executor    *mockExecutor
}

func (f *mockFactory) NewConnectionTester(ctx context.Context, experiment string) (datasource.ConnectionTester, error) {
	return nil, errors.New("not implemented")
}

func (f *mockFactory) NewSchemaDiscoverer(ctx context.Context, experiment string) (datasource.SchemaDiscoverer, error) {
	return &mockDiscoverer{tables: f.tables, columns: f.columns, err: f.discoverErr}, nil
}

func (f *mockFactory) NewQueryExecutor(ctx context.Context, experiment string) (datasource.QueryExecutor, error) {
	return f.executor, nil
}

func (f *mockFactory) NewExperimentLister(ctx context.Context) (datasource.ExperimentLister, error) {
	return nil, errors.New("not implemented")
}

func (f *mockFactory) Type() string { return "mock" }

type mockDiscoverer struct {
	tables  []datasource.TableMetadata
	columns []datasource.ColumnMetadata
	err     error
}

func (d *mockDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tables, nil
}

func (d *mockDiscoverer) DiscoverColumns(ctx context.Context, tableName string) ([]datasource.ColumnMetadata, error) {
	return d.columns, nil
}

func (d *mockDiscoverer) Close() error { return nil }

// mockExecutor answers queries from results in order, then fails with err.
// textMatch makes TextMatchExpr answer like the SQLite executor.
type mockExecutor struct {
	results   []*datasource.QueryExecutionResult
	err       error
	textMatch bool
	queries   []string
	params    [][]any
	limits    []int
}

func (e *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

func (e *mockExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	e.queries = append(e.queries, sqlQuery)
	e.params = append(e.params, params)
	e.limits = append(e.limits, limit)
	if len(e.results) == 0 {
		return nil, e.err
	}
	r := e.results[0]
	e.results = e.results[1:]
	return r, nil
}

func (e *mockExecutor) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (e *mockExecutor) TextMatchExpr(expr string) string {
	if !e.textMatch {
		return ""
	}
	return "CAST(" + expr + " AS TEXT)"
}

func (e *mockExecutor) Close() error { return nil }

func mockTable(name string, columns ...string) *mockFactory {
	f := &mockFactory{
		tables:   []datasource.TableMetadata{{SchemaName: "main", TableName: name}},
		executor: &mockExecutor{},
	}
	for i, c := range columns {
		f.columns = append(f.columns, datasource.ColumnMetadata{ColumnName: c, OrdinalPosition: i + 1})
	}
	return f
}
