package testhelpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite" // SQLite driver
)

// CreateSQLiteExperiment writes <dir>/<experiment>.sq3 and runs statements
// against it. Returns the file path.
func CreateSQLiteExperiment(t *testing.T, dir, experiment string, statements ...string) string {
	t.Helper()

	path := filepath.Join(dir, experiment+".sq3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to run fixture statement %q: %v", stmt, err)
		}
	}

	return path
}

// NewOMLDataDir creates a temporary data directory holding one fixture
// experiment built by OMLFixture. Returns the directory.
func NewOMLDataDir(t *testing.T, experiment string) string {
	t.Helper()

	dir := t.TempDir()
	CreateSQLiteExperiment(t, dir, experiment, OMLFixture(DialectSQLite)...)
	return dir
}
