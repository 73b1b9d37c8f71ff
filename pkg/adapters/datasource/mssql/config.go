package mssql

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/oml2view/pkg/config"
)

// Config contains SQL Server-specific connection options. Each experiment is
// its own database; Database is the one experiments are listed from.
type Config struct {
	Host       string
	Port       int
	Database   string
	Experiment string

	// SQL Authentication
	Username string
	Password string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// DefaultDatabase returns the database experiments are listed from.
func DefaultDatabase() string {
	return "master"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Database:          DefaultDatabase(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
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

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	}

	if username, ok := config["username"].(string); ok && username != "" {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok && user != "" {
		cfg.Username = user
	} else {
		return nil, fmt.Errorf("username is required for SQL authentication")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if encrypt, ok := config["encrypt"].(bool); ok {
		cfg.Encrypt = encrypt
	} else if encryptStr, ok := config["encrypt"].(string); ok {
		// Support string values: "true", "false", "strict"
		cfg.Encrypt = encryptStr == "true" || encryptStr == "strict"
	}

	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	if timeout, ok := config["connection_timeout"].(float64); ok {
		cfg.ConnectionTimeout = int(timeout)
	} else if timeout, ok := config["connection_timeout"].(int); ok {
		cfg.ConnectionTimeout = timeout
	}

	return cfg, nil
}

// Validate checks the fields needed to open a connection.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	return nil
}

// buildConnectionString builds a sqlserver:// URL for database using SQL authentication.
func buildConnectionString(cfg *Config, database string) string {
	query := url.Values{}
	query.Add("database", database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		cfg.Port,
		query.Encode(),
	)
}
