package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

const (
	driverName = "sqlserver"
	dbType     = "mssql"
)

// Adapter provides SQL Server connectivity for one experiment database.
type Adapter struct {
	config   *Config
	database string
	conn     *datasource.ManagedConnection
	db       *sql.DB
	ownedDB  bool // true if we created the DB (for tests or TestConnection case)
}

// NewAdapter connects to the configured experiment's database.
// If connMgr is nil, opens an unmanaged handle that Close releases.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*Adapter, error) {
	if err := datasource.ValidateExperimentName(cfg.Experiment); err != nil {
		return nil, err
	}
	return newAdapter(ctx, cfg, cfg.Experiment, connMgr)
}

func newAdapter(ctx context.Context, cfg *Config, database string, connMgr *datasource.ConnectionManager) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	connStr := buildConnectionString(cfg, database)
	create := datasource.SQLPoolFactory(driverName, dbType, 0)

	if connMgr == nil {
		// Fallback for direct instantiation (tests, TestConnection)
		connector, err := create(ctx, connStr, datasource.ConnectionManagerConfig{
			TTLMinutes:   datasource.DefaultConnectionTTLMinutes,
			PoolMaxConns: datasource.DefaultPoolMaxConns,
			PoolMinConns: datasource.DefaultPoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("create connection: %w", err)
		}

		// Test the connection immediately
		if err := connector.Ping(ctx); err != nil {
			connector.Close()
			return nil, classifyOpenError(database, err)
		}

		db, err := datasource.GetSQLDB(connector)
		if err != nil {
			return nil, fmt.Errorf("failed to extract mssql db: %w", err)
		}

		return &Adapter{
			config:   cfg,
			database: database,
			conn:     datasource.NewUnmanagedConnection(connector),
			db:       db,
			ownedDB:  true,
		}, nil
	}

	conn, err := connMgr.GetOrCreateConnection(ctx, dbType, database, connStr, create)
	if err != nil {
		return nil, classifyOpenError(database, err)
	}

	db, err := datasource.GetSQLDB(conn.Conn())
	if err != nil {
		return nil, fmt.Errorf("failed to extract mssql db: %w", err)
	}

	return &Adapter{
		config:   cfg,
		database: database,
		conn:     conn,
		db:       db,
		ownedDB:  false,
	}, nil
}

// classifyOpenError maps SQL Server's login failure for a missing database
// (error 4060) to apperrors.ErrNotFound.
func classifyOpenError(database string, err error) error {
	if strings.Contains(err.Error(), "Cannot open database") {
		return fmt.Errorf("experiment %q: %w", database, apperrors.ErrNotFound)
	}
	return fmt.Errorf("connection test failed: %w", err)
}

// TestConnection verifies the database is reachable and is the expected one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	a.conn.Lock()
	defer a.conn.Unlock()

	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	if !strings.EqualFold(currentDB, a.database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.database, currentDB)
	}

	return nil
}

// Close releases the adapter (but NOT the DB if managed).
func (a *Adapter) Close() error {
	if a.ownedDB && a.db != nil {
		return a.db.Close()
	}
	// If using connection manager, don't close the DB - it's managed by TTL
	return nil
}

// Ensure Adapter implements ConnectionTester at compile time.
var _ datasource.ConnectionTester = (*Adapter)(nil)
