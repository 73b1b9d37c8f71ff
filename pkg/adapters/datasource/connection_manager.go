package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/logging"
	"github.com/ekaya-inc/oml2view/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxConnections       = 32
	DefaultPoolMaxConns         = 4
	DefaultPoolMinConns         = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes     int
	MaxConnections int
	PoolMaxConns   int32
	PoolMinConns   int32
}

// PoolFactory opens a new pool for a connection string.
type PoolFactory func(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error)

// ConnectionManager keeps one pooled connection per experiment database
// with TTL-based expiry and automatic cleanup.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*ManagedConnection // key: "{dsType}:{experiment}"
	cfg          ConnectionManagerConfig
	ttl          time.Duration
	retryConfig  *retry.Config
	stopped      bool
	stopChan     chan struct{}
	logger       *zap.Logger
	cleanupEvery time.Duration
}

// ManagedConnection is a pooled connection shared by every adapter reading
// the same experiment. Queries on it are serialized with Lock/Unlock.
type ManagedConnection struct {
	conn     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex // guards lastUsed
	execMu   sync.Mutex // held for the duration of one query
}

// NewUnmanagedConnection wraps a connector that is not tracked by a manager.
// Used for direct instantiation in tests and one-shot tools.
func NewUnmanagedConnection(conn PoolConnector) *ManagedConnection {
	return &ManagedConnection{conn: conn, lastUsed: time.Now()}
}

// Conn returns the underlying connector.
func (c *ManagedConnection) Conn() PoolConnector {
	return c.conn
}

// Lock acquires exclusive use of the connection for one query.
func (c *ManagedConnection) Lock() {
	c.execMu.Lock()
}

// Unlock releases the connection and records the time of use.
func (c *ManagedConnection) Unlock() {
	c.touch()
	c.execMu.Unlock()
}

func (c *ManagedConnection) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *ManagedConnection) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastUsed)
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	return newConnectionManager(cfg, logger, DefaultCleanupInterval)
}

func newConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger, cleanupEvery time.Duration) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		connections:  make(map[string]*ManagedConnection),
		cfg:          cfg,
		ttl:          time.Duration(cfg.TTLMinutes) * time.Minute,
		retryConfig:  retry.DefaultConfig(),
		stopChan:     make(chan struct{}),
		logger:       logger,
		cleanupEvery: cleanupEvery,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// Config returns the effective configuration after defaults were applied.
func (m *ConnectionManager) Config() ConnectionManagerConfig {
	return m.cfg
}

func connectionKey(dsType, experiment string) string {
	return dsType + ":" + experiment
}

// GetOrCreateConnection returns the managed connection for an experiment,
// opening it with create when none exists or the existing one fails its
// health check. Opening is retried for transient errors; queries are not.
func (m *ConnectionManager) GetOrCreateConnection(
	ctx context.Context,
	dsType string,
	experiment string,
	connString string,
	create PoolFactory,
) (*ManagedConnection, error) {
	key := connectionKey(dsType, experiment)

	// Try existing connection with read lock (fast path)
	m.mu.RLock()
	managed, exists := m.connections[key]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, m.retryConfig, func() error {
			return managed.conn.Ping(healthCtx)
		})
		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			m.removeConnection(key)
			return m.createConnection(ctx, key, connString, create)
		}

		managed.touch()
		return managed, nil
	}

	return m.createConnection(ctx, key, connString, create)
}

// createConnection opens a new pool with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createConnection(
	ctx context.Context,
	key string,
	connString string,
	create PoolFactory,
) (*ManagedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.touch()
		return managed, nil
	}

	if len(m.connections) >= m.cfg.MaxConnections {
		if !m.evictOldestIdle() {
			m.logger.Warn("reached max connections limit",
				zap.Int("current", len(m.connections)),
				zap.Int("max", m.cfg.MaxConnections),
			)
			return nil, fmt.Errorf("maximum connections limit reached (%d)", m.cfg.MaxConnections)
		}
	}

	conn, err := retry.DoWithResult(ctx, m.retryConfig, func() (PoolConnector, error) {
		c, err := create(ctx, connString, m.cfg)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		m.logger.Error("failed to open connection after retries",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to open connection for %s: %s", key, logging.SanitizeError(err))
	}

	managed := NewUnmanagedConnection(conn)
	m.connections[key] = managed

	m.logger.Info("opened experiment connection",
		zap.String("key", key),
		zap.String("type", conn.GetType()),
		zap.Int("totalConnections", len(m.connections)),
	)

	return managed, nil
}

// evictOldestIdle closes the least recently used connection that is not
// running a query. Caller must hold m.mu write lock.
func (m *ConnectionManager) evictOldestIdle() bool {
	now := time.Now()
	var oldestKey string
	var oldestIdle time.Duration = -1

	for key, managed := range m.connections {
		if idle := managed.idleSince(now); idle > oldestIdle {
			oldestKey, oldestIdle = key, idle
		}
	}
	if oldestKey == "" {
		return false
	}

	managed := m.connections[oldestKey]
	if !managed.execMu.TryLock() {
		return false
	}
	defer managed.execMu.Unlock()

	_ = managed.conn.Close()
	delete(m.connections, oldestKey)
	m.logger.Debug("evicted idle connection",
		zap.String("key", oldestKey),
		zap.Duration("idleTime", oldestIdle),
	)
	return true
}

// removeConnection removes a connection from the manager and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if managed.conn != nil {
			_ = managed.conn.Close()
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection",
			zap.String("key", key),
		)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(m.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Connections that are running a query are skipped until the next pass.
// Uses lock ordering: manager lock → connection lock to prevent deadlocks.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	expired := 0

	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		idleTime := managed.idleSince(now)
		if idleTime <= m.ttl {
			continue
		}
		if !managed.execMu.TryLock() {
			continue
		}
		_ = managed.conn.Close()
		managed.execMu.Unlock()
		delete(m.connections, key)
		expired++

		m.logger.Debug("closed expired connection",
			zap.String("key", key),
			zap.Duration("idleTime", idleTime),
			zap.Duration("ttl", m.ttl),
		)
	}

	if expired > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", expired),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.conn != nil {
			_ = managed.conn.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxConnections:    m.cfg.MaxConnections,
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		if managed == nil {
			continue
		}
		stats.ConnectionsByType[managed.conn.GetType()]++
		if idleSeconds := int(managed.idleSince(now).Seconds()); idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	MaxConnections    int            `json:"max_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
