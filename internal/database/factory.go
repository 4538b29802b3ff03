package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectionFactory creates database connections for the SQL backends
type ConnectionFactory struct {
	logger *logrus.Logger
}

// NewConnectionFactory creates a new connection factory
func NewConnectionFactory(logger *logrus.Logger) *ConnectionFactory {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectionFactory{
		logger: logger,
	}
}

// CreateSQLiteConnection creates a SQLite database connection
func (f *ConnectionFactory) CreateSQLiteConnection(ctx context.Context, config *Config) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Convert to absolute path
	absPath, err := filepath.Abs(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := f.buildSQLiteDSN(absPath, config)

	f.logger.WithFields(logrus.Fields{
		"driver": "sqlite",
		"path":   absPath,
		"dsn":    dsn,
	}).Info("Creating SQLite connection")

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	f.configureConnectionPool(db, config)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	f.applySQLiteSettings(ctx, db, config)

	f.logger.WithField("path", absPath).Info("SQLite connection established")
	return db, nil
}

// buildSQLiteDSN builds a SQLite DSN with options
func (f *ConnectionFactory) buildSQLiteDSN(path string, config *Config) string {
	var options []string

	// WAL mode
	if config.Database.WALMode {
		options = append(options, "_journal_mode=WAL")
	}

	// Synchronous mode
	if config.Database.Synchronous != "" {
		options = append(options, fmt.Sprintf("_synchronous=%s", config.Database.Synchronous))
	}

	// Foreign keys
	if config.Database.ForeignKeys {
		options = append(options, "_foreign_keys=on")
	}

	// Busy timeout
	if config.Database.BusyTimeout > 0 {
		options = append(options, fmt.Sprintf("_busy_timeout=%d", config.Database.BusyTimeout))
	}

	// Immediate transactions take the write lock on BEGIN
	options = append(options, "_txlock=immediate")

	return fmt.Sprintf("%s?%s", path, strings.Join(options, "&"))
}

// applySQLiteSettings applies SQLite-specific settings; failures are logged and ignored
func (f *ConnectionFactory) applySQLiteSettings(ctx context.Context, db *sql.DB, config *Config) {
	settings := []string{}

	if config.Database.CacheSize != 0 {
		settings = append(settings, fmt.Sprintf("PRAGMA cache_size = %d", config.Database.CacheSize))
	}

	// Temp store (memory for temporary tables)
	settings = append(settings, "PRAGMA temp_store = MEMORY")

	for _, setting := range settings {
		if _, err := db.ExecContext(ctx, setting); err != nil {
			f.logger.WithError(err).WithField("setting", setting).Warn("Failed to apply SQLite setting")
		} else {
			f.logger.WithField("setting", setting).Debug("Applied SQLite setting")
		}
	}
}

// CreatePostgresConnection opens a PostgreSQL connection through gorm
func (f *ConnectionFactory) CreatePostgresConnection(ctx context.Context, config *Config) (*gorm.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := logger.Warn
	if config.Query.EnableQueryLogging {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  config.Database.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get PostgreSQL handle: %w", err)
	}
	f.configureConnectionPool(sqlDB, config)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	f.logger.Info("PostgreSQL connection established")
	return db, nil
}

// configureConnectionPool configures the database connection pool
func (f *ConnectionFactory) configureConnectionPool(db *sql.DB, config *Config) {
	db.SetMaxOpenConns(config.Pool.MaxOpenConns)
	db.SetMaxIdleConns(config.Pool.MaxIdleConns)
	db.SetConnMaxLifetime(config.Pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.Pool.ConnMaxIdleTime)

	f.logger.WithFields(logrus.Fields{
		"max_open_conns":     config.Pool.MaxOpenConns,
		"max_idle_conns":     config.Pool.MaxIdleConns,
		"conn_max_lifetime":  config.Pool.ConnMaxLifetime,
		"conn_max_idle_time": config.Pool.ConnMaxIdleTime,
	}).Debug("Configured connection pool")
}

// HealthStatus represents the health status of a database connection
type HealthStatus struct {
	Healthy      bool              `json:"healthy"`
	Message      string            `json:"message"`
	ResponseTime time.Duration     `json:"response_time"`
	CheckedAt    time.Time         `json:"checked_at"`
	Details      map[string]string `json:"details,omitempty"`
}

// HealthChecker provides health checking capabilities for database connections
type HealthChecker struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthChecker{
		db:     db,
		logger: logger,
	}
}

// CheckHealth pings the database and runs a trivial query
func (h *HealthChecker) CheckHealth(ctx context.Context) error {
	start := time.Now()
	defer func() {
		h.logger.WithField("duration", time.Since(start)).Debug("Health check completed")
	}()

	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("test query returned unexpected result: %d", result)
	}

	return nil
}

// GetHealthStatus returns detailed health status
func (h *HealthChecker) GetHealthStatus(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		CheckedAt: start,
		Details:   make(map[string]string),
	}

	err := h.CheckHealth(ctx)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Healthy = false
		status.Message = err.Error()
		return status
	}

	status.Healthy = true
	status.Message = "Database is healthy"

	stats := h.db.Stats()
	status.Details["open_connections"] = fmt.Sprintf("%d", stats.OpenConnections)
	status.Details["in_use"] = fmt.Sprintf("%d", stats.InUse)
	status.Details["idle"] = fmt.Sprintf("%d", stats.Idle)
	status.Details["wait_count"] = fmt.Sprintf("%d", stats.WaitCount)

	return status
}
