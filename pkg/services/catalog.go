package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
	"github.com/ekaya-inc/oml2view/pkg/models"
)

// CatalogService lists what a store holds: experiments, their measurement
// tables, and the store-internal sender and metadata tables.
type CatalogService interface {
	// ListExperiments returns the experiment names, sorted.
	ListExperiments(ctx context.Context) ([]string, error)

	// ListTables returns the measurement tables of an experiment, sorted,
	// without _senders and _experiment_metadata.
	ListTables(ctx context.Context, experiment string) ([]string, error)

	// Senders returns the rows of _senders ordered by id.
	Senders(ctx context.Context, experiment string) ([]models.Sender, error)

	// Metadata returns _experiment_metadata as a key to value map.
	Metadata(ctx context.Context, experiment string) (map[string]string, error)
}

type catalogService struct {
	factory datasource.DatasourceAdapterFactory
	logger  *zap.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(factory datasource.DatasourceAdapterFactory, logger *zap.Logger) CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		factory: factory,
		logger:  logger.Named("catalog"),
	}
}

func (s *catalogService) ListExperiments(ctx context.Context) ([]string, error) {
	lister, err := s.factory.NewExperimentLister(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment lister: %w", err)
	}
	defer closeQuietly(lister)

	experiments, err := lister.ListExperiments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

func (s *catalogService) ListTables(ctx context.Context, experiment string) ([]string, error) {
	discoverer, err := s.factory.NewSchemaDiscoverer(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment %q: %w", experiment, err)
	}
	defer discoverer.Close()

	tables, err := discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w: %w", apperrors.ErrQuery, err)
	}

	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if models.IsInternalTable(t.TableName) {
			continue
		}
		names = append(names, t.TableName)
	}
	sort.Strings(names)

	return names, nil
}

func (s *catalogService) Senders(ctx context.Context, experiment string) ([]models.Sender, error) {
	result, err := s.readInternalTable(ctx, experiment, models.TableSenders, "name", "id")
	if err != nil {
		return nil, err
	}

	senders := make([]models.Sender, 0, result.RowCount)
	for _, row := range result.Rows {
		id, ok := toInt64(row[1])
		if !ok {
			s.logger.Warn("Skipping sender with non-integer id",
				zap.String("experiment", experiment),
				zap.Any("id", row[1]))
			continue
		}
		senders = append(senders, models.Sender{Name: models.FormatValue(row[0]), ID: id})
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].ID < senders[j].ID })

	return senders, nil
}

func (s *catalogService) Metadata(ctx context.Context, experiment string) (map[string]string, error) {
	result, err := s.readInternalTable(ctx, experiment, models.TableExperimentMetadata, "key", "value")
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string, result.RowCount)
	for _, row := range result.Rows {
		if row[0] == nil {
			continue
		}
		value := ""
		if row[1] != nil {
			value = models.FormatValue(row[1])
		}
		metadata[models.FormatValue(row[0])] = value
	}
	return metadata, nil
}

// readInternalTable selects two columns of a store-internal table. A missing
// table is apperrors.ErrNotFound.
func (s *catalogService) readInternalTable(ctx context.Context, experiment, table, col1, col2 string) (*datasource.QueryExecutionResult, error) {
	catalog, err := loadTableCatalog(ctx, s.factory, experiment, table)
	if err != nil {
		return nil, err
	}
	if err := catalog.requireColumns(table, []string{col1, col2}); err != nil {
		return nil, err
	}

	executor, err := s.factory.NewQueryExecutor(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment %q: %w", experiment, err)
	}
	defer executor.Close()

	query := fmt.Sprintf("SELECT %s, %s FROM %s",
		executor.QuoteIdentifier(col1), executor.QuoteIdentifier(col2), executor.QuoteIdentifier(table))

	result, err := runQuery(ctx, s.logger, executor, query, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return result, nil
}
