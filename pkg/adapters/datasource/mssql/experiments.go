//go:build mssql || all_adapters

package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// ExperimentLister lists the user databases of the server.
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

// ListExperiments returns the online user databases, sorted by name.
// The four system databases have ids 1 through 4.
func (l *ExperimentLister) ListExperiments(ctx context.Context) ([]string, error) {
	l.conn.Lock()
	defer l.conn.Unlock()

	const query = `
		SELECT name
		FROM sys.databases
		WHERE database_id > 4
		  AND state_desc = 'ONLINE'
		  AND name <> @p1
		ORDER BY name`

	rows, err := l.db.QueryContext(ctx, query, named(1, l.database))
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
