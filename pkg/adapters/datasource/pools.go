package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector is the handle a ManagedConnection owns: a pgx pool for
// PostgreSQL or a database/sql handle for SQLite and SQL Server.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error
	// GetType names the backend for logs and ConnectionStats.
	GetType() string
}

type pgxPoolConn struct {
	pool *pgxpool.Pool
}

func (c *pgxPoolConn) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c *pgxPoolConn) GetType() string                { return "postgres" }

func (c *pgxPoolConn) Close() error {
	c.pool.Close()
	return nil
}

type sqlDBConn struct {
	db     *sql.DB
	dbType string
}

func (c *sqlDBConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *sqlDBConn) Close() error                   { return c.db.Close() }
func (c *sqlDBConn) GetType() string                { return c.dbType }

// WrapPostgresPool adapts an existing pool, e.g. one owned by a test.
func WrapPostgresPool(pool *pgxpool.Pool) PoolConnector {
	return &pgxPoolConn{pool: pool}
}

// CreatePostgresPool is the PoolFactory for PostgreSQL experiments. Pool
// sizing and idle time follow the connection manager's settings.
func CreatePostgresPool(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = cfg.PoolMaxConns
	poolConfig.MinConns = cfg.PoolMinConns
	poolConfig.MaxConnIdleTime = time.Duration(cfg.TTLMinutes) * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return &pgxPoolConn{pool: pool}, nil
}

// SQLPoolFactory returns a PoolFactory opening a database/sql handle with the
// named driver, which the adapter package must have registered.
// maxOpen > 0 overrides the manager's pool size; SQLite passes 1.
func SQLPoolFactory(driverName, dbType string, maxOpen int) PoolFactory {
	return func(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
		db, err := sql.Open(driverName, connString)
		if err != nil {
			return nil, err
		}

		open := int(cfg.PoolMaxConns)
		if maxOpen > 0 {
			open = maxOpen
		}
		db.SetMaxOpenConns(open)
		db.SetMaxIdleConns(min(int(cfg.PoolMinConns), open))
		db.SetConnMaxIdleTime(time.Duration(cfg.TTLMinutes) * time.Minute)

		return &sqlDBConn{db: db, dbType: dbType}, nil
	}
}

// GetPostgresPool returns the pgx pool behind a connector.
func GetPostgresPool(conn PoolConnector) (*pgxpool.Pool, error) {
	c, ok := conn.(*pgxPoolConn)
	if !ok {
		return nil, fmt.Errorf("%s connector is not a PostgreSQL pool", conn.GetType())
	}
	return c.pool, nil
}

// GetSQLDB returns the database/sql handle behind a connector.
func GetSQLDB(conn PoolConnector) (*sql.DB, error) {
	c, ok := conn.(*sqlDBConn)
	if !ok {
		return nil, fmt.Errorf("%s connector is not a database/sql handle", conn.GetType())
	}
	return c.db, nil
}
