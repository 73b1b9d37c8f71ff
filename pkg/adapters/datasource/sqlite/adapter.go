package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

const (
	driverName = "sqlite"
	dbType     = "sqlite"
)

// Adapter provides connectivity to one OML2 SQLite experiment file.
type Adapter struct {
	config  *Config
	conn    *datasource.ManagedConnection
	db      *sql.DB
	ownedDB bool // true if we opened the DB (tests or direct instantiation)
}

// NewAdapter opens the experiment file through the connection manager.
// If connMgr is nil, opens an unmanaged handle that Close releases.
// Returns an error wrapping apperrors.ErrNotFound when the file does not exist;
// SQLite would otherwise create an empty database.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager) (*Adapter, error) {
	if err := datasource.ValidateExperimentName(cfg.Experiment); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("experiment %q: %w", cfg.Experiment, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("stat experiment %q: %w", cfg.Experiment, err)
	}

	connStr := buildConnectionString(cfg)
	// One connection per file: SQLite serializes writers anyway and the OML
	// server may hold the write lock.
	create := datasource.SQLPoolFactory(driverName, dbType, 1)

	var conn *datasource.ManagedConnection
	owned := connMgr == nil

	if owned {
		connector, err := create(ctx, connStr, datasource.ConnectionManagerConfig{TTLMinutes: datasource.DefaultConnectionTTLMinutes})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		conn = datasource.NewUnmanagedConnection(connector)
	} else {
		var err error
		conn, err = connMgr.GetOrCreateConnection(ctx, dbType, cfg.Experiment, connStr, create)
		if err != nil {
			return nil, fmt.Errorf("failed to get pooled connection: %w", err)
		}
	}

	db, err := datasource.GetSQLDB(conn.Conn())
	if err != nil {
		return nil, fmt.Errorf("failed to extract sqlite db: %w", err)
	}

	return &Adapter{
		config:  cfg,
		conn:    conn,
		db:      db,
		ownedDB: owned,
	}, nil
}

// TestConnection verifies the experiment file is a readable SQLite database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	a.conn.Lock()
	defer a.conn.Unlock()

	var count int
	if err := a.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&count); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the adapter (but NOT the DB if managed).
func (a *Adapter) Close() error {
	if a.ownedDB && a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ensure Adapter implements ConnectionTester at compile time.
var _ datasource.ConnectionTester = (*Adapter)(nil)
