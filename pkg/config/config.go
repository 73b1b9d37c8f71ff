package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported measurement store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMSSQL    = "mssql"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for oml2view.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Measurement store the experiments are read from
	Store StoreConfig `yaml:"store"`

	// Datasource connection management configuration
	Datasource DatasourceConfig `yaml:"datasource"`

	// Schema inspection settings
	Inspector InspectorConfig `yaml:"inspector"`

	// ViewsFile is an optional YAML file of saved per-table series requests.
	ViewsFile string `yaml:"views_file" env:"OML_VIEWS_FILE" env-default:""`

	// MCP server configuration
	MCP MCPConfig `yaml:"mcp"`
}

// StoreConfig selects the backend and holds per-backend connection settings.
// Only the section matching Backend is used.
type StoreConfig struct {
	Backend  string         `yaml:"backend" env:"OML_BACKEND" env-default:"sqlite"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	MSSQL    MSSQLConfig    `yaml:"mssql"`
}

// SQLiteConfig points at the OML2 server's data directory.
type SQLiteConfig struct {
	DataDir     string `yaml:"data_dir" env:"OML_SQLITE_DIR" env-default:"."`
	BusyTimeout int    `yaml:"busy_timeout_ms" env:"OML_SQLITE_BUSY_TIMEOUT_MS" env-default:"5000"`
}

// PostgresConfig holds the server the OML2 psql backend writes to. Each
// experiment is its own database; Database is only used to list them.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"oml"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// MSSQLConfig holds a SQL Server instance with one database per experiment.
type MSSQLConfig struct {
	Host                   string `yaml:"host" env:"MSSQL_HOST" env-default:"localhost"`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	User                   string `yaml:"user" env:"MSSQL_USER" env-default:"sa"`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Database               string `yaml:"database" env:"MSSQL_DATABASE" env-default:"master"`
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERTIFICATE" env-default:"false"`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle experiment connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// MaxConnections limits how many experiments are held open at once.
	MaxConnections int `yaml:"max_connections" env:"DATASOURCE_MAX_CONNECTIONS" env-default:"32"`
	// PoolMaxConns is the maximum number of connections per server-backed experiment pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"4"`
	// PoolMinConns is the minimum number of connections per server-backed experiment pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// InspectorConfig controls schema inspection.
type InspectorConfig struct {
	// SampleRows is how many rows are read to find each column's first non-null value.
	SampleRows int `yaml:"sample_rows" env:"OML_SAMPLE_ROWS" env-default:"1"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml in the working directory with
// environment variable overrides. A missing config.yaml is not an error: the
// defaults and environment alone are used.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load for an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate TLS configuration
	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendMSSQL:
	default:
		return fmt.Errorf("unknown store backend %q (must be sqlite, postgres or mssql)", c.Store.Backend)
	}

	if c.Inspector.SampleRows < 1 {
		return fmt.Errorf("inspector.sample_rows must be at least 1, got %d", c.Inspector.SampleRows)
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// AdapterConfig returns the generic config map the selected backend's
// datasource adapter is built from.
func (s *StoreConfig) AdapterConfig() map[string]any {
	switch s.Backend {
	case BackendPostgres:
		return map[string]any{
			"host":     s.Postgres.Host,
			"port":     s.Postgres.Port,
			"user":     s.Postgres.User,
			"password": s.Postgres.Password,
			"database": s.Postgres.Database,
			"ssl_mode": s.Postgres.SSLMode,
		}
	case BackendMSSQL:
		return map[string]any{
			"host":                     s.MSSQL.Host,
			"port":                     s.MSSQL.Port,
			"user":                     s.MSSQL.User,
			"password":                 s.MSSQL.Password,
			"database":                 s.MSSQL.Database,
			"encrypt":                  s.MSSQL.Encrypt,
			"trust_server_certificate": s.MSSQL.TrustServerCertificate,
		}
	default:
		return map[string]any{
			"data_dir":     s.SQLite.DataDir,
			"busy_timeout": s.SQLite.BusyTimeout,
		}
	}
}
