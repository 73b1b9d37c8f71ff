package datasource

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

// DatasourceAdapterFactory creates adapters for the configured backend.
// It binds a backend type and its connection settings so callers only name
// the experiment they want to read.
type DatasourceAdapterFactory interface {
	// NewConnectionTester creates a connection tester for an experiment.
	NewConnectionTester(ctx context.Context, experiment string) (ConnectionTester, error)

	// NewSchemaDiscoverer creates a schema discoverer for an experiment.
	NewSchemaDiscoverer(ctx context.Context, experiment string) (SchemaDiscoverer, error)

	// NewQueryExecutor creates a query executor for an experiment.
	NewQueryExecutor(ctx context.Context, experiment string) (QueryExecutor, error)

	// NewExperimentLister creates a lister for the backend's experiments.
	NewExperimentLister(ctx context.Context) (ExperimentLister, error)

	// Type returns the backend type the factory creates adapters for.
	Type() string
}

type registryFactory struct {
	dsType  string
	config  map[string]any
	connMgr *ConnectionManager
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
// Returns an error wrapping apperrors.ErrUnsupportedType if no adapter is
// compiled in for dsType.
func NewDatasourceAdapterFactory(dsType string, config map[string]any, connMgr *ConnectionManager) (DatasourceAdapterFactory, error) {
	if !IsRegistered(dsType) {
		return nil, fmt.Errorf("%s (not compiled in): %w", dsType, apperrors.ErrUnsupportedType)
	}
	return &registryFactory{
		dsType:  dsType,
		config:  config,
		connMgr: connMgr,
	}, nil
}

func (f *registryFactory) NewConnectionTester(ctx context.Context, experiment string) (ConnectionTester, error) {
	factory := GetFactory(f.dsType)
	if factory == nil {
		return nil, fmt.Errorf("connection testing not supported for type %s: %w", f.dsType, apperrors.ErrUnsupportedType)
	}
	return factory(ctx, f.config, f.connMgr, experiment)
}

func (f *registryFactory) NewSchemaDiscoverer(ctx context.Context, experiment string) (SchemaDiscoverer, error) {
	factory := GetSchemaDiscovererFactory(f.dsType)
	if factory == nil {
		return nil, fmt.Errorf("schema discovery not supported for type %s: %w", f.dsType, apperrors.ErrUnsupportedType)
	}
	return factory(ctx, f.config, f.connMgr, experiment)
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, experiment string) (QueryExecutor, error) {
	factory := GetQueryExecutorFactory(f.dsType)
	if factory == nil {
		return nil, fmt.Errorf("query execution not supported for type %s: %w", f.dsType, apperrors.ErrUnsupportedType)
	}
	return factory(ctx, f.config, f.connMgr, experiment)
}

func (f *registryFactory) NewExperimentLister(ctx context.Context) (ExperimentLister, error) {
	factory := GetExperimentListerFactory(f.dsType)
	if factory == nil {
		return nil, fmt.Errorf("experiment listing not supported for type %s: %w", f.dsType, apperrors.ErrUnsupportedType)
	}
	return factory(ctx, f.config, f.connMgr)
}

func (f *registryFactory) Type() string {
	return f.dsType
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
