package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/models"
	"github.com/ekaya-inc/oml2view/pkg/testhelpers"
)

func newFixtureExtractor(t *testing.T) (SeriesExtractor, datasource.DatasourceAdapterFactory) {
	t.Helper()
	factory, _ := newFixtureFactory(t)
	return NewSeriesExtractor(factory, zaptest.NewLogger(t)), factory
}

// newSQLiteExtractor builds an extractor over a one-off SQLite experiment
// created from statements.
func newSQLiteExtractor(t *testing.T, statements ...string) SeriesExtractor {
	t.Helper()

	dir := t.TempDir()
	testhelpers.CreateSQLiteExperiment(t, dir, testExperiment, statements...)

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { connMgr.Close() })

	factory, err := datasource.NewDatasourceAdapterFactory("sqlite", map[string]any{"data_dir": dir}, connMgr)
	require.NoError(t, err)

	return NewSeriesExtractor(factory, zaptest.NewLogger(t))
}

func TestExtract_TwoPartitions(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureScenarioTable, models.ExtractRequest{
		Columns: []string{"x", "y"},
		Labels:  []string{"g"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, result.Columns)
	assert.Equal(t, []string{"g"}, result.Labels)
	assert.Empty(t, result.PrunedLabels)
	require.Len(t, result.Partitions, 2)

	a := result.Partitions[0]
	assert.Equal(t, "g=a", a.Key)
	assert.Equal(t, []models.LabelValue{{Column: "g", Value: "a"}}, a.Labels)
	assert.Equal(t, 2, a.RowCount)
	assert.Equal(t, []any{int64(1), int64(2)}, a.Series["x"])
	assert.Equal(t, []any{int64(10), int64(20)}, a.Series["y"])

	b := result.Partitions[1]
	assert.Equal(t, "g=b", b.Key)
	assert.Equal(t, []any{int64(3)}, b.Series["x"])
	assert.Equal(t, []any{int64(30)}, b.Series["y"])
}

func TestExtract_SingleValuedLabelIsPruned(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureSingleLabel, models.ExtractRequest{
		Columns: []string{"x", "y"},
		Labels:  []string{"g"},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Labels)
	assert.Equal(t, []string{"g"}, result.PrunedLabels)
	require.Len(t, result.Partitions, 1)

	p := result.Partitions[0]
	assert.Equal(t, "", p.Key)
	assert.Empty(t, p.Labels)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, p.Series["x"])
	assert.Equal(t, []any{int64(10), int64(20), int64(30)}, p.Series["y"])
}

func TestExtract_NoLabelsMatchesUnfilteredProjection(t *testing.T) {
	extractor, factory := newFixtureExtractor(t)
	ctx := context.Background()

	result, err := extractor.Extract(ctx, testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"value", "oml_seq"},
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 1)

	executor, err := factory.NewQueryExecutor(ctx, testExperiment)
	require.NoError(t, err)
	defer executor.Close()

	direct, err := executor.Query(ctx, `SELECT "value", "oml_seq" FROM "generator_sin"`, 0)
	require.NoError(t, err)

	p := result.Partitions[0]
	require.Equal(t, direct.RowCount, p.RowCount)
	for i, row := range direct.Rows {
		assert.Equal(t, row[0], p.Series["value"][i])
		assert.Equal(t, row[1], p.Series["oml_seq"][i])
	}
}

func TestExtract_NullLabelsKeepEveryRow(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	// channel holds a, b, NULL, a; label is always 'sine'
	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"oml_ts_server", "value"},
		Labels:  []string{"label", "channel"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"channel"}, result.Labels)
	assert.Equal(t, []string{"label"}, result.PrunedLabels)
	require.Len(t, result.Partitions, 3)

	total := 0
	keys := make(map[string]int)
	for _, p := range result.Partitions {
		total += p.RowCount
		keys[p.Key] = p.RowCount
		assert.Len(t, p.Series["value"], p.RowCount)
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, map[string]int{"channel=NULL": 1, "channel=a": 2, "channel=b": 1}, keys)
}

func TestExtract_PartitionsMatchDistinctTuples(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"value"},
		Labels:  []string{"oml_sender_id", "channel"},
	})
	require.NoError(t, err)

	// (1,a) (1,b) (2,NULL) (2,a)
	assert.Equal(t, []string{"oml_sender_id", "channel"}, result.Labels)
	require.Len(t, result.Partitions, 4)

	keys := make([]string, len(result.Partitions))
	for i, p := range result.Partitions {
		keys[i] = p.Key
		assert.Equal(t, 1, p.RowCount, p.Key)
	}
	assert.ElementsMatch(t, []string{
		"oml_sender_id=1,channel=a",
		"oml_sender_id=1,channel=b",
		"oml_sender_id=2,channel=NULL",
		"oml_sender_id=2,channel=a",
	}, keys)
}

func TestExtract_OrderBy(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"oml_ts_server", "oml_sender_id"},
		OrderBy: "oml_ts_server",
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 1)

	assert.Equal(t, []any{0.6, 0.8, 1.6, 1.8}, result.Partitions[0].Series["oml_ts_server"])
	assert.Equal(t, []any{int64(1), int64(2), int64(1), int64(2)}, result.Partitions[0].Series["oml_sender_id"])
}

func TestExtract_Filter(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)
	ctx := context.Background()

	only, err := extractor.Extract(ctx, testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"value"},
		Labels:  []string{"channel"},
		Filter:  `channel == "a"`,
	})
	require.NoError(t, err)
	require.Len(t, only.Partitions, 1)
	assert.Equal(t, "channel=a", only.Partitions[0].Key)
	assert.Equal(t, 2, only.Partitions[0].RowCount)

	notNull, err := extractor.Extract(ctx, testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"value"},
		Labels:  []string{"channel"},
		Filter:  `channel != "NULL"`,
	})
	require.NoError(t, err)
	assert.Len(t, notNull.Partitions, 2)

	_, err = extractor.Extract(ctx, testExperiment, testhelpers.FixtureMeasurement, models.ExtractRequest{
		Columns: []string{"value"},
		Labels:  []string{"channel"},
		Filter:  `channel ==`,
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest), "expected ErrInvalidRequest, got %v", err)
}

func TestExtract_EmptyTable(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureEmpty, models.ExtractRequest{
		Columns: []string{"oml_ts_server", "value"},
		Labels:  []string{"oml_sender_id"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"oml_sender_id"}, result.PrunedLabels)
	require.Len(t, result.Partitions, 1)
	assert.Equal(t, 0, result.Partitions[0].RowCount)
	assert.NotNil(t, result.Partitions[0].Series["value"])
	assert.Empty(t, result.Partitions[0].Series["value"])
}

func TestExtract_DuplicatesCollapse(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)

	result, err := extractor.Extract(context.Background(), testExperiment, testhelpers.FixtureScenarioTable, models.ExtractRequest{
		Columns: []string{"x", "y", "x"},
		Labels:  []string{"g", "g"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, result.Columns)
	assert.Equal(t, []string{"g"}, result.Labels)
	assert.Len(t, result.Partitions, 2)
}

func TestExtract_Errors(t *testing.T) {
	extractor, _ := newFixtureExtractor(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		req     models.ExtractRequest
		wantErr error
	}{
		{
			name:    "no output columns",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Labels: []string{"g"}},
			wantErr: apperrors.ErrInvalidRequest,
		},
		{
			name:    "missing output column",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Columns: []string{"x", "nope"}},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name:    "missing label column",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Columns: []string{"x"}, Labels: []string{"nope"}},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name:    "missing order-by column",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Columns: []string{"x"}, OrderBy: "nope"},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name:    "missing table",
			table:   "no_such_table",
			req:     models.ExtractRequest{Columns: []string{"x"}},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name:    "injected column",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Columns: []string{"x", "'; DROP TABLE users--"}},
			wantErr: apperrors.ErrInvalidIdentifier,
		},
		{
			name:    "injected label",
			table:   testhelpers.FixtureScenarioTable,
			req:     models.ExtractRequest{Columns: []string{"x"}, Labels: []string{"' OR '1'='1"}},
			wantErr: apperrors.ErrInvalidIdentifier,
		},
		{
			name:    "injected table",
			table:   "' OR '1'='1",
			req:     models.ExtractRequest{Columns: []string{"x"}},
			wantErr: apperrors.ErrInvalidIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractor.Extract(ctx, testExperiment, tt.table, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
		})
	}
}

func TestExtract_BindsLabelValues(t *testing.T) {
	factory := mockTable("T", "x", "g", "h")
	factory.executor.results = []*datasource.QueryExecutionResult{
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
		{Rows: [][]any{{"it's", nil}, {"b", int64(1)}}, RowCount: 2},
		{Rows: [][]any{{int64(1)}}, RowCount: 1},
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
	}

	extractor := NewSeriesExtractor(factory, zaptest.NewLogger(t))
	result, err := extractor.Extract(context.Background(), testExperiment, "T", models.ExtractRequest{
		Columns: []string{"x"},
		Labels:  []string{"g", "h"},
		OrderBy: "x",
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 2)

	q := factory.executor.queries
	require.Len(t, q, 5)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT DISTINCT "g" FROM "T") AS _distinct`, q[0])
	assert.Equal(t, `SELECT DISTINCT "g", "h" FROM "T" ORDER BY "g", "h"`, q[2])
	assert.Equal(t, `SELECT "x" FROM "T" WHERE "g" = $1 AND "h" IS NULL ORDER BY "x"`, q[3])
	assert.Equal(t, []any{"it's"}, factory.executor.params[3])
	assert.Equal(t, `SELECT "x" FROM "T" WHERE "g" = $1 AND "h" = $2 ORDER BY "x"`, q[4])
	assert.Equal(t, []any{"b", int64(1)}, factory.executor.params[4])
}

func TestExtract_QueryErrorAbortsWithoutRetry(t *testing.T) {
	factory := mockTable("T", "x", "g")
	factory.executor.results = []*datasource.QueryExecutionResult{
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
	}
	factory.executor.err = errors.New("database is locked")

	extractor := NewSeriesExtractor(factory, zaptest.NewLogger(t))
	_, err := extractor.Extract(context.Background(), testExperiment, "T", models.ExtractRequest{
		Columns: []string{"x"},
		Labels:  []string{"g"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrQuery), "expected ErrQuery, got %v", err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Len(t, factory.executor.queries, 2)
}

func TestExtract_DollarSignIdentifiers(t *testing.T) {
	extractor := newSQLiteExtractor(t,
		`CREATE TABLE "dollar" (x INTEGER, "cost$1" REAL, "g$1" TEXT)`,
		`INSERT INTO "dollar" VALUES (1, 1.5, 'a'), (2, 2.5, 'b'), (3, 3.5, 'a')`,
	)

	result, err := extractor.Extract(context.Background(), testExperiment, "dollar", models.ExtractRequest{
		Columns: []string{"x", "cost$1"},
		Labels:  []string{"g$1"},
		OrderBy: "x",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"g$1"}, result.Labels)
	assert.Empty(t, result.PrunedLabels)
	require.Len(t, result.Partitions, 2)

	a := result.Partitions[0]
	assert.Equal(t, "g$1=a", a.Key)
	assert.Equal(t, []any{int64(1), int64(3)}, a.Series["x"])
	assert.Equal(t, []any{1.5, 3.5}, a.Series["cost$1"])

	b := result.Partitions[1]
	assert.Equal(t, "g$1=b", b.Key)
	assert.Equal(t, []any{2.5}, b.Series["cost$1"])
}

func TestExtract_DatetimeLabelKeepsEveryRow(t *testing.T) {
	extractor := newSQLiteExtractor(t,
		`CREATE TABLE "daily" (x INTEGER, day DATETIME)`,
		`INSERT INTO "daily" VALUES (1, '2024-01-01 10:00:00'), (2, '2024-01-01 10:00:00'), (3, '2024-01-02 10:00:00')`,
	)

	result, err := extractor.Extract(context.Background(), testExperiment, "daily", models.ExtractRequest{
		Columns: []string{"x"},
		Labels:  []string{"day"},
		OrderBy: "x",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"day"}, result.Labels)
	require.Len(t, result.Partitions, 2)

	total := 0
	for _, p := range result.Partitions {
		total += p.RowCount
	}
	assert.Equal(t, 3, total)

	first := result.Partitions[0]
	assert.Equal(t, []models.LabelValue{{Column: "day", Value: "2024-01-01 10:00:00"}}, first.Labels)
	assert.Equal(t, []any{int64(1), int64(2)}, first.Series["x"])
	assert.Equal(t, []any{int64(3)}, result.Partitions[1].Series["x"])
}

func TestExtract_TextMatchedLabelSQL(t *testing.T) {
	day := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	factory := mockTable("T", "x", "day")
	factory.executor.textMatch = true
	factory.executor.results = []*datasource.QueryExecutionResult{
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
		{Rows: [][]any{{day, "2024-01-01 10:00:00"}, {nil, nil}}, RowCount: 2},
		{Rows: [][]any{{int64(1)}}, RowCount: 1},
		{Rows: [][]any{{int64(2)}}, RowCount: 1},
	}

	extractor := NewSeriesExtractor(factory, zaptest.NewLogger(t))
	result, err := extractor.Extract(context.Background(), testExperiment, "T", models.ExtractRequest{
		Columns: []string{"x"},
		Labels:  []string{"day"},
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 2)

	q := factory.executor.queries
	require.Len(t, q, 4)
	assert.Equal(t, `SELECT DISTINCT "day", CAST("day" AS TEXT) FROM "T" ORDER BY "day"`, q[1])
	assert.Equal(t, `SELECT "x" FROM "T" WHERE CAST("day" AS TEXT) = $1`, q[2])
	assert.Equal(t, []any{"2024-01-01 10:00:00"}, factory.executor.params[2])
	assert.Equal(t, `SELECT "x" FROM "T" WHERE "day" IS NULL`, q[3])
	assert.Equal(t, "day=2024-01-01 10:00:00", result.Partitions[0].Key)
}
