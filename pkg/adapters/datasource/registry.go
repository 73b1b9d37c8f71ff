package datasource

import (
	"context"
	"sort"
	"sync"
)

// DatasourceAdapterInfo describes a registered measurement store backend.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "sqlite", "postgres", "mssql"
	DisplayName string `json:"display_name"` // "SQLite", "PostgreSQL"
	Description string `json:"description"`  // "OML2 SQLite experiment files"
}

// AdapterFactory builds an adapter bound to one experiment database.
type AdapterFactory[T any] func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, experiment string) (T, error)

// DatasourceAdapterRegistration contains info + factories for creating adapters.
// Factory functions accept the connection manager and the experiment name; the
// manager pools one connection per experiment.
type DatasourceAdapterRegistration struct {
	Info                    DatasourceAdapterInfo
	Factory                 AdapterFactory[ConnectionTester]
	SchemaDiscovererFactory AdapterFactory[SchemaDiscoverer]
	QueryExecutorFactory    AdapterFactory[QueryExecutor]
	ExperimentListerFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager) (ExperimentLister, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

func lookup(dsType string) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// GetFactory returns the connection tester factory for a datasource type.
// Returns nil if type is not registered.
func GetFactory(dsType string) AdapterFactory[ConnectionTester] {
	if reg, ok := lookup(dsType); ok {
		return reg.Factory
	}
	return nil
}

// GetSchemaDiscovererFactory returns the schema discoverer factory for a datasource type.
// Returns nil if type is not registered.
func GetSchemaDiscovererFactory(dsType string) AdapterFactory[SchemaDiscoverer] {
	if reg, ok := lookup(dsType); ok {
		return reg.SchemaDiscovererFactory
	}
	return nil
}

// GetQueryExecutorFactory returns the query executor factory for a datasource type.
// Returns nil if type is not registered.
func GetQueryExecutorFactory(dsType string) AdapterFactory[QueryExecutor] {
	if reg, ok := lookup(dsType); ok {
		return reg.QueryExecutorFactory
	}
	return nil
}

// GetExperimentListerFactory returns the experiment lister factory for a datasource type.
// Returns nil if type is not registered.
func GetExperimentListerFactory(dsType string) func(ctx context.Context, config map[string]any, connMgr *ConnectionManager) (ExperimentLister, error) {
	if reg, ok := lookup(dsType); ok {
		return reg.ExperimentListerFactory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	_, ok := lookup(dsType)
	return ok
}
