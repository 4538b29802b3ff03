package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ConnectionManager owns the SQL connection of the sqlite or postgres backend
type ConnectionManager struct {
	config *Config
	logger *logrus.Logger
	db     *sql.DB
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(config *Config, logger *logrus.Logger) *ConnectionManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectionManager{
		config: config,
		logger: logger,
	}
}

// Connect establishes the database connection and runs migrations where they apply
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if cm.db != nil {
		return fmt.Errorf("database connection already established")
	}

	switch {
	case cm.config.IsSQLite():
		db, err := InitializeDatabase(ctx, cm.config, cm.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		cm.db = db
	case cm.config.IsPostgreSQL():
		gormDB, err := NewConnectionFactory(cm.logger).CreatePostgresConnection(ctx, cm.config)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db, err := gormDB.DB()
		if err != nil {
			return fmt.Errorf("failed to get database handle: %w", err)
		}
		cm.db = db
	default:
		return fmt.Errorf("backend %q has no SQL connection", cm.config.Backend)
	}

	cm.logger.WithField("backend", cm.config.NormalizedBackend()).Info("Database connection established")
	return nil
}

// GetDB returns the database connection
func (cm *ConnectionManager) GetDB() *sql.DB {
	return cm.db
}

// Close closes the database connection
func (cm *ConnectionManager) Close() error {
	if cm.db == nil {
		return nil
	}

	err := cm.db.Close()
	cm.db = nil

	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	cm.logger.Info("Database connection closed")
	return nil
}

// Ping tests the database connection
func (cm *ConnectionManager) Ping(ctx context.Context) error {
	if cm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	if err := cm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// GetMigrationManager returns a migration manager for a sqlite connection
func (cm *ConnectionManager) GetMigrationManager() *MigrationManager {
	if cm.db == nil || !cm.config.IsSQLite() {
		return nil
	}

	return NewMigrationManager(cm.db, cm.config.Migration.Path, cm.logger).
		WithBackup(cm.config.Migration.BackupBeforeMigration)
}

// HealthCheck reports the connection health
func (cm *ConnectionManager) HealthCheck(ctx context.Context) *HealthStatus {
	if cm.db == nil {
		return &HealthStatus{Healthy: false, Message: "database connection not established"}
	}
	return NewHealthChecker(cm.db, cm.logger).GetHealthStatus(ctx)
}
