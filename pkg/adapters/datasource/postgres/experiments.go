//go:build postgres || all_adapters

package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// ExperimentLister lists the experiment databases of the server by
// connecting to the maintenance database.
type ExperimentLister struct {
	*Adapter
}

// NewExperimentLister creates a lister connected to cfg.Database.
func NewExperimentLister(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*ExperimentLister, error) {
	adapter, err := newAdapter(ctx, cfg, cfg.Database, connMgr)
	if err != nil {
		return nil, err
	}
	return &ExperimentLister{Adapter: adapter}, nil
}

// ListExperiments returns every non-template database except the maintenance
// database, sorted by name. Names the service could not address are skipped.
func (l *ExperimentLister) ListExperiments(ctx context.Context) ([]string, error) {
	l.conn.Lock()
	defer l.conn.Unlock()

	const query = `
		SELECT datname::text
		FROM pg_database
		WHERE NOT datistemplate
		  AND datallowconn
		  AND datname <> $1
		ORDER BY datname
	`

	rows, err := l.pool.Query(ctx, query, l.database)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	defer rows.Close()

	experiments := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		if datasource.ValidateExperimentName(name) != nil {
			continue
		}
		experiments = append(experiments, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate databases: %w", err)
	}

	return experiments, nil
}

// Ensure ExperimentLister implements datasource.ExperimentLister at compile time.
var _ datasource.ExperimentLister = (*ExperimentLister)(nil)
