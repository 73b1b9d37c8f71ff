package sqlite

import (
	"fmt"
	"path/filepath"
)

// FileExtension is the suffix the OML2 server gives experiment databases.
const FileExtension = ".sq3"

// Config contains SQLite-specific connection options.
type Config struct {
	DataDir     string // Directory holding <experiment>.sq3 files
	Experiment  string
	BusyTimeout int // Milliseconds to wait on a lock held by the collection server
}

// DefaultBusyTimeout returns the default busy timeout in milliseconds.
func DefaultBusyTimeout() int {
	return 5000
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		BusyTimeout: DefaultBusyTimeout(),
	}

	if dir, ok := config["data_dir"].(string); ok && dir != "" {
		cfg.DataDir = dir
	} else {
		return nil, fmt.Errorf("data_dir is required")
	}

	if timeout, ok := config["busy_timeout"].(float64); ok { // JSON numbers are float64
		cfg.BusyTimeout = int(timeout)
	} else if timeout, ok := config["busy_timeout"].(int); ok {
		cfg.BusyTimeout = timeout
	}

	return cfg, nil
}

// Path returns the database file for the configured experiment.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, c.Experiment+FileExtension)
}

// buildConnectionString builds a modernc.org/sqlite DSN. The connection is
// made query-only since the collection server owns the file.
func buildConnectionString(cfg *Config) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=query_only(1)", cfg.Path(), cfg.BusyTimeout)
}
