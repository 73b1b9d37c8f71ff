package sqlite

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// SchemaDiscoverer reads the sqlite_master catalog of an experiment file.
type SchemaDiscoverer struct {
	*Adapter
}

// NewSchemaDiscoverer creates a SQLite schema discoverer.
func NewSchemaDiscoverer(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*SchemaDiscoverer, error) {
	adapter, err := NewAdapter(ctx, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &SchemaDiscoverer{Adapter: adapter}, nil
}

// DiscoverTables returns every user table of the experiment.
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	d.conn.Lock()
	defer d.conn.Unlock()

	const query = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t.SchemaName = "main"
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns the declared columns of tableName in ordinal order.
// The table name is bound as a parameter of the pragma table function.
func (d *SchemaDiscoverer) DiscoverColumns(ctx context.Context, tableName string) ([]datasource.ColumnMetadata, error) {
	d.conn.Lock()
	defer d.conn.Unlock()

	const query = `
		SELECT name, type, "notnull", cid
		FROM pragma_table_info(?1)
		ORDER BY cid`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		var notNull int
		if err := rows.Scan(&c.ColumnName, &c.DataType, &notNull, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.IsNullable = notNull == 0
		c.OrdinalPosition++ // cid is zero-based
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// Ensure SchemaDiscoverer implements datasource.SchemaDiscoverer at compile time.
var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
