//go:build postgres || all_adapters

package postgres

import (
	"context"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        dbType,
			DisplayName: "PostgreSQL",
			Description: "OML2 psql backend: one database per experiment",
		},
		Factory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, experiment string) (datasource.ConnectionTester, error) {
			cfg, err := fromMapFor(config, experiment)
			if err != nil {
				return nil, err
			}
			a, err := NewAdapter(ctx, cfg, connMgr)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		SchemaDiscovererFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, experiment string) (datasource.SchemaDiscoverer, error) {
			cfg, err := fromMapFor(config, experiment)
			if err != nil {
				return nil, err
			}
			d, err := NewSchemaDiscoverer(ctx, cfg, connMgr)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		QueryExecutorFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, experiment string) (datasource.QueryExecutor, error) {
			cfg, err := fromMapFor(config, experiment)
			if err != nil {
				return nil, err
			}
			e, err := NewQueryExecutor(ctx, cfg, connMgr)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
		ExperimentListerFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager) (datasource.ExperimentLister, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			l, err := NewExperimentLister(ctx, cfg, connMgr)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
	})
}

func fromMapFor(config map[string]any, experiment string) (*Config, error) {
	cfg, err := FromMap(config)
	if err != nil {
		return nil, err
	}
	cfg.Experiment = experiment
	return cfg, nil
}
