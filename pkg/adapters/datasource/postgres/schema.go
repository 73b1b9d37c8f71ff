//go:build postgres || all_adapters

package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// measurementSchema is where the OML2 psql backend creates its tables.
const measurementSchema = "public"

// SchemaDiscoverer provides PostgreSQL schema discovery for one experiment database.
type SchemaDiscoverer struct {
	*Adapter
}

// NewSchemaDiscoverer creates a PostgreSQL schema discoverer using the connection manager.
// If connMgr is nil, creates an unmanaged pool (for tests or direct instantiation).
func NewSchemaDiscoverer(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*SchemaDiscoverer, error) {
	adapter, err := NewAdapter(ctx, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &SchemaDiscoverer{Adapter: adapter}, nil
}

// DiscoverTables returns the base tables of the public schema, ordered by name.
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	d.conn.Lock()
	defer d.conn.Unlock()

	const query = `
		SELECT table_schema::text, table_name::text
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema = $1
		ORDER BY table_name
	`

	rows, err := d.pool.Query(ctx, query, measurementSchema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.SchemaName, &t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns the columns of tableName in ordinal order.
func (d *SchemaDiscoverer) DiscoverColumns(ctx context.Context, tableName string) ([]datasource.ColumnMetadata, error) {
	d.conn.Lock()
	defer d.conn.Unlock()

	const query = `
		SELECT column_name::text, data_type::text, is_nullable = 'YES', ordinal_position::int
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := d.pool.Query(ctx, query, measurementSchema, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		var position int32
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.OrdinalPosition = int(position)
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// Ensure SchemaDiscoverer implements datasource.SchemaDiscoverer at compile time.
var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
