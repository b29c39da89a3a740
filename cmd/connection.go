package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Static errors for connection handling
var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrNotConnected  = errors.New("not connected to database")
)

// ConnectionManager owns the database session for one transfer. The backend
// variant is fixed at construction from the driver discriminator; callers
// never re-dispatch on it afterwards.
type ConnectionManager struct {
	config DatabaseConfig
	logger *slog.Logger
	db     *sql.DB
}

// NewConnectionManager creates a connection manager for the configured backend
func NewConnectionManager(config DatabaseConfig, logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		config: config,
		logger: logger,
	}
}

// driverName maps the configured driver discriminator to the registered
// database/sql driver name
func (m *ConnectionManager) driverName() (string, error) {
	switch m.config.Driver {
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDriver, m.config.Driver)
	}
}

// dsn builds the driver-specific connection string
func (m *ConnectionManager) dsn() (string, error) {
	switch m.config.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			m.config.Host, m.config.Port, m.config.User,
			m.config.Password, m.config.Name, m.config.SSLMode), nil
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = m.config.User
		cfg.Passwd = m.config.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
		cfg.DBName = m.config.Name
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case "sqlite":
		return m.config.Path, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDriver, m.config.Driver)
	}
}

// Connect opens the database session and verifies it with a ping
func (m *ConnectionManager) Connect(ctx context.Context) error {
	driver, err := m.driverName()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	dsn, err := m.dsn()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	m.logger.Debug(fmt.Sprintf("Opening %s connection", m.config.Driver))
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("%w: failed to open database: %w", ErrConnection, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: failed to ping database: %w", ErrConnection, err)
	}

	m.db = db
	m.logger.Info(fmt.Sprintf("✅ Connected to %s database", m.config.Driver))
	return nil
}

// Close releases the database session. Safe to call when not connected.
func (m *ConnectionManager) Close() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// DB returns the underlying database handle
func (m *ConnectionManager) DB() (*sql.DB, error) {
	if m.db == nil {
		return nil, ErrNotConnected
	}
	return m.db, nil
}

// SetDB injects an existing database handle. Used by tests to substitute a
// mock connection.
func (m *ConnectionManager) SetDB(db *sql.DB) {
	m.db = db
}

// Info returns connection metadata without exposing credentials
func (m *ConnectionManager) Info() map[string]string {
	info := map[string]string{
		"driver": m.config.Driver,
	}
	switch m.config.Driver {
	case "sqlite":
		info["path"] = m.config.Path
	default:
		info["host"] = m.config.Host
		info["port"] = fmt.Sprintf("%d", m.config.Port)
		info["database"] = m.config.Name
		info["user"] = m.config.User
	}
	if m.db != nil {
		info["connected"] = "true"
	} else {
		info["connected"] = "false"
	}
	return info
}
