package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/oml2view/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
// The OML2 psql backend creates one database per experiment; Database is the
// maintenance database experiments are listed from.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	Experiment string
	SSLMode    string // "disable", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// DefaultDatabase returns the default maintenance database.
func DefaultDatabase() string {
	return "postgres"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort(),
		SSLMode:  DefaultSSLMode(),
		Database: DefaultDatabase(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}

// buildConnectionString builds a PostgreSQL URL for database with proper escaping.
// IMPORTANT: All user-provided fields must be URL-escaped to handle special characters
// in passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
// When running in Docker, localhost is resolved to host.docker.internal.
func buildConnectionString(cfg *Config, database string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.PathEscape(database),
		url.QueryEscape(sslMode),
	)
}
