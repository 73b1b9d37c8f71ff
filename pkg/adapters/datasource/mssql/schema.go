//go:build mssql || all_adapters

package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
)

// defaultSchema is where user tables are created unless a schema is named.
const defaultSchema = "dbo"

// SchemaDiscoverer provides SQL Server schema discovery.
type SchemaDiscoverer struct {
	*Adapter
}

// NewSchemaDiscoverer creates a SQL Server schema discoverer.
func NewSchemaDiscoverer(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*SchemaDiscoverer, error) {
	adapter, err := NewAdapter(ctx, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &SchemaDiscoverer{Adapter: adapter}, nil
}

// DiscoverTables returns the user tables of the dbo schema, ordered by name.
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	d.conn.Lock()
	defer d.conn.Unlock()

	const query = `
		SELECT s.name, t.name
		FROM sys.tables t
		INNER JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE t.is_ms_shipped = 0
		  AND s.name = @p1
		ORDER BY t.name`

	rows, err := d.db.QueryContext(ctx, query, named(1, defaultSchema))
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
		SELECT c.name, ty.name, c.is_nullable, c.column_id
		FROM sys.columns c
		INNER JOIN sys.tables t ON c.object_id = t.object_id
		INNER JOIN sys.schemas s ON t.schema_id = s.schema_id
		INNER JOIN sys.types ty ON c.user_type_id = ty.user_type_id
		WHERE s.name = @p1
		  AND t.name = @p2
		ORDER BY c.column_id`

	rows, err := d.db.QueryContext(ctx, query, named(1, defaultSchema), named(2, tableName))
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		var typeName string
		if err := rows.Scan(&c.ColumnName, &typeName, &c.IsNullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.DataType = mapSQLServerType(typeName)
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// Ensure SchemaDiscoverer implements datasource.SchemaDiscoverer at compile time.
var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
