package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

const dbType = "postgres"

// Adapter provides connectivity to one database on an OML2 PostgreSQL server.
type Adapter struct {
	config    *Config
	database  string
	conn      *datasource.ManagedConnection
	pool      *pgxpool.Pool
	ownedPool bool // true if we created the pool (tests or direct instantiation)
}

// NewAdapter connects to the configured experiment's database.
// If connMgr is nil, creates an unmanaged pool that Close releases.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*Adapter, error) {
	if err := datasource.ValidateExperimentName(cfg.Experiment); err != nil {
		return nil, err
	}
	return newAdapter(ctx, cfg, cfg.Experiment, connMgr)
}

func newAdapter(ctx context.Context, cfg *Config, database string, connMgr *datasource.ConnectionManager) (*Adapter, error) {
	connStr := buildConnectionString(cfg, database)

	if connMgr == nil {
		// Fallback for direct instantiation (tests, TestConnection)
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		return &Adapter{
			config:    cfg,
			database:  database,
			conn:      datasource.NewUnmanagedConnection(datasource.WrapPostgresPool(pool)),
			pool:      pool,
			ownedPool: true,
		}, nil
	}

	// Use connection manager for reusable pool
	conn, err := connMgr.GetOrCreateConnection(ctx, dbType, database, connStr, datasource.CreatePostgresPool)
	if err != nil {
		if isUndefinedDatabase(err) {
			return nil, fmt.Errorf("experiment %q: %w", database, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	// Extract underlying PostgreSQL pool from connector
	pool, err := datasource.GetPostgresPool(conn.Conn())
	if err != nil {
		return nil, fmt.Errorf("failed to extract postgres pool: %w", err)
	}

	return &Adapter{
		config:    cfg,
		database:  database,
		conn:      conn,
		pool:      pool,
		ownedPool: false,
	}, nil
}

// isUndefinedDatabase reports whether err is PostgreSQL's "database does not
// exist". The connection manager only passes the sanitized message through.
func isUndefinedDatabase(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 3D000")
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Correct database name (a missing experiment must not fall back to another database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	a.conn.Lock()
	defer a.conn.Unlock()

	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	if !strings.EqualFold(currentDB, a.database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.database, currentDB)
	}

	return nil
}

// Close releases the adapter (but NOT the pool if managed).
func (a *Adapter) Close() error {
	if a.ownedPool && a.pool != nil {
		a.pool.Close()
	}
	// If using connection manager, don't close the pool - it's managed by TTL
	return nil
}

// Ensure Adapter implements ConnectionTester at compile time.
var _ datasource.ConnectionTester = (*Adapter)(nil)
