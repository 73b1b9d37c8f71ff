package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/models"
	sqlutil "github.com/ekaya-inc/oml2view/pkg/sql"
)

// SeriesExtractor partitions a table by its label columns and returns the
// requested columns as ordered series per partition.
type SeriesExtractor interface {
	// Extract runs the extraction. Label columns with fewer than two distinct
	// values (NULL counting as a value) are pruned. With no active labels the
	// result holds exactly one partition with key "" and req.Filter is not
	// applied.
	//
	// Errors wrap apperrors.ErrInvalidRequest (no output columns, bad filter),
	// apperrors.ErrInvalidIdentifier, apperrors.ErrNotFound (unknown table or
	// column) or apperrors.ErrQuery (the store rejected a statement).
	Extract(ctx context.Context, experiment, table string, req models.ExtractRequest) (*models.SeriesResult, error)
}

type seriesExtractor struct {
	factory datasource.DatasourceAdapterFactory
	logger  *zap.Logger
}

// NewSeriesExtractor creates a series extractor.
func NewSeriesExtractor(factory datasource.DatasourceAdapterFactory, logger *zap.Logger) SeriesExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &seriesExtractor{
		factory: factory,
		logger:  logger.Named("series-extractor"),
	}
}

func (s *seriesExtractor) Extract(ctx context.Context, experiment, table string, req models.ExtractRequest) (*models.SeriesResult, error) {
	columns := dedupe(req.Columns)
	labels := dedupe(req.Labels)

	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one output column is required: %w", apperrors.ErrInvalidRequest)
	}
	if err := sqlutil.ValidateIdentifiers("output", columns); err != nil {
		return nil, err
	}
	if err := sqlutil.ValidateIdentifiers("label", labels); err != nil {
		return nil, err
	}
	if req.OrderBy != "" {
		if err := sqlutil.ValidateIdentifier("order-by", req.OrderBy); err != nil {
			return nil, err
		}
	}

	var filter *PartitionFilter
	if strings.TrimSpace(req.Filter) != "" {
		var err error
		if filter, err = NewPartitionFilter(req.Filter); err != nil {
			return nil, err
		}
	}

	catalog, err := loadTableCatalog(ctx, s.factory, experiment, table)
	if err != nil {
		return nil, err
	}
	if err := catalog.requireColumns("output", columns); err != nil {
		return nil, err
	}
	if err := catalog.requireColumns("label", labels); err != nil {
		return nil, err
	}
	if req.OrderBy != "" {
		if err := catalog.requireColumns("order-by", []string{req.OrderBy}); err != nil {
			return nil, err
		}
	}

	executor, err := s.factory.NewQueryExecutor(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment %q: %w", experiment, err)
	}
	defer executor.Close()

	q := &extraction{
		executor: executor,
		logger:   s.logger,
		table:    executor.QuoteIdentifier(table),
		columns:  columns,
		orderBy:  req.OrderBy,
	}

	active, pruned, err := q.pruneLabels(ctx, labels)
	if err != nil {
		return nil, err
	}

	result := &models.SeriesResult{
		Experiment:   experiment,
		Table:        table,
		Columns:      columns,
		Labels:       active,
		PrunedLabels: pruned,
		Partitions:   make([]models.Partition, 0),
	}

	// The filter selects among partitions; the unfiltered partition is
	// always returned.
	if len(active) == 0 {
		p, err := q.project(ctx, labelTuple{})
		if err != nil {
			return nil, err
		}
		result.Partitions = append(result.Partitions, *p)
		return result, nil
	}

	tuples, err := q.distinctTuples(ctx, active)
	if err != nil {
		return nil, err
	}

	for _, tuple := range tuples {
		if filter != nil {
			keep, err := filter.Match(tuple.values)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		p, err := q.project(ctx, tuple)
		if err != nil {
			return nil, err
		}
		result.Partitions = append(result.Partitions, *p)
	}

	s.logger.Debug("Extracted series",
		zap.String("experiment", experiment),
		zap.String("table", table),
		zap.Strings("labels", active),
		zap.Strings("pruned_labels", pruned),
		zap.Int("partitions", len(result.Partitions)))

	return result, nil
}

// extraction holds the per-call state of one Extract.
type extraction struct {
	executor datasource.QueryExecutor
	logger   *zap.Logger
	table    string // quoted
	columns  []string
	orderBy  string
}

func (q *extraction) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = q.executor.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// pruneLabels counts the distinct values of every candidate, then keeps
// those with at least two, in caller order.
func (q *extraction) pruneLabels(ctx context.Context, labels []string) (active, pruned []string, err error) {
	counts := make([]int64, len(labels))
	for i, label := range labels {
		query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s) AS _distinct",
			q.executor.QuoteIdentifier(label), q.table)

		result, err := runQuery(ctx, q.logger, q.executor, query, nil, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("count distinct %q: %w", label, err)
		}
		if result.RowCount != 1 || len(result.Rows[0]) != 1 {
			return nil, nil, fmt.Errorf("count distinct %q returned %d rows: %w", label, result.RowCount, apperrors.ErrQuery)
		}
		n, ok := toInt64(result.Rows[0][0])
		if !ok {
			return nil, nil, fmt.Errorf("count distinct %q returned %T: %w", label, result.Rows[0][0], apperrors.ErrQuery)
		}
		counts[i] = n
	}

	active = make([]string, 0, len(labels))
	pruned = make([]string, 0)
	for i, label := range labels {
		if counts[i] >= 2 {
			active = append(active, label)
		} else {
			pruned = append(pruned, label)
		}
	}
	return active, pruned, nil
}

// labelTuple is one distinct combination of label values. byText marks
// values that match through the executor's TextMatchExpr.
type labelTuple struct {
	values []models.LabelValue
	byText []bool
}

// distinctTuples enumerates the distinct value combinations of the labels.
// Where the executor has a text form for a label, it is read alongside so a
// value the driver decoded into time.Time can still be matched exactly.
func (q *extraction) distinctTuples(ctx context.Context, labels []string) ([]labelTuple, error) {
	cols := q.quoteAll(labels)

	selectList := cols
	textAt := make([]int, len(labels))
	next := len(labels)
	for i, label := range labels {
		textAt[i] = -1
		if expr := q.executor.TextMatchExpr(q.executor.QuoteIdentifier(label)); expr != "" {
			selectList += ", " + expr
			textAt[i] = next
			next++
		}
	}
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s", selectList, q.table, cols)

	result, err := runQuery(ctx, q.logger, q.executor, query, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}

	tuples := make([]labelTuple, 0, result.RowCount)
	for _, row := range result.Rows {
		tuple := labelTuple{
			values: make([]models.LabelValue, len(labels)),
			byText: make([]bool, len(labels)),
		}
		for i, label := range labels {
			value := row[i]
			if _, isTime := value.(time.Time); isTime && textAt[i] >= 0 {
				if text, ok := row[textAt[i]].(string); ok {
					value = text
					tuple.byText[i] = true
				}
			}
			tuple.values[i] = models.LabelValue{Column: label, Value: value}
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

// project selects the output columns for the rows matching the tuple. NULL
// label values match with IS NULL so no row is lost.
func (q *extraction) project(ctx context.Context, tuple labelTuple) (*models.Partition, error) {
	labels := tuple.values

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(q.quoteAll(q.columns))
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)

	params := make([]any, 0, len(labels))
	for i, l := range labels {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		column := q.executor.QuoteIdentifier(l.Column)
		if tuple.byText[i] {
			column = q.executor.TextMatchExpr(column)
		}
		sb.WriteString(column)
		if l.Value == nil {
			sb.WriteString(" IS NULL")
			continue
		}
		params = append(params, l.Value)
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(params)))
	}

	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.executor.QuoteIdentifier(q.orderBy))
	}

	key := models.PartitionKey(labels)
	result, err := runQuery(ctx, q.logger, q.executor, sb.String(), params, 0)
	if err != nil {
		return nil, fmt.Errorf("project partition %q: %w", key, err)
	}

	series := make(map[string][]any, len(q.columns))
	for i, col := range q.columns {
		values := make([]any, 0, result.RowCount)
		for _, row := range result.Rows {
			values = append(values, row[i])
		}
		series[col] = values
	}

	if labels == nil {
		labels = []models.LabelValue{}
	}
	return &models.Partition{
		Key:      key,
		Labels:   labels,
		RowCount: result.RowCount,
		Series:   series,
	}, nil
}

// dedupe drops repeated names, keeping first occurrences in order.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
