package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestImage is the image used for PostgreSQL backend tests. The OML2
// server's psql backend creates one database per experiment on such a server.
const PostgresTestImage = "postgres:16-alpine"

const (
	testUser     = "oml"
	testPassword = "test_password"
)

// TestDB holds a shared PostgreSQL container and a pool on its maintenance database.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
	User      string
	Password  string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		// The entrypoint restarts the server once after initdb
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid container port %q: %w", mapped.Port(), err)
	}

	connStr := connString(host, port, "postgres")

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port,
		User:      testUser,
		Password:  testPassword,
	}, nil
}

func connString(host string, port int, database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", testUser, testPassword, host, port, database)
}

// AdapterConfig returns the config map the postgres adapter expects for this container.
func (db *TestDB) AdapterConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     db.User,
		"password": db.Password,
		"database": "postgres",
		"ssl_mode": "disable",
	}
}

// CreateExperiment (re)creates a database named experiment on the shared
// server and runs statements in it.
func (db *TestDB) CreateExperiment(t *testing.T, experiment string, statements ...string) {
	t.Helper()
	ctx := context.Background()

	name := pgx.Identifier{experiment}.Sanitize()
	if _, err := db.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)"); err != nil {
		t.Fatalf("failed to drop database %s: %v", experiment, err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("failed to create database %s: %v", experiment, err)
	}

	conn, err := pgx.Connect(ctx, connString(db.Host, db.Port, experiment))
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", experiment, err)
	}
	defer conn.Close(ctx)

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to run fixture statement %q: %v", stmt, err)
		}
	}
}
