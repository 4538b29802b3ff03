package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
)

func main() {
	var (
		dbPath         = flag.String("db", "./data/repaart.db", "Database file path")
		migrationsPath = flag.String("migrations", "./migrations/sqlite", "Migrations directory path")
		action         = flag.String("action", "up", "Migration action: up, down, status, validate")
		backup         = flag.Bool("backup", true, "Back up the database file before migrating up")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// Setup logger
	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Get absolute paths
	absDBPath, err := filepath.Abs(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to get absolute database path")
	}

	absMigrationsPath, err := filepath.Abs(*migrationsPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to get absolute migrations path")
	}

	logger.WithFields(logrus.Fields{
		"db_path":         absDBPath,
		"migrations_path": absMigrationsPath,
		"action":          *action,
	}).Info("Starting migration tool")

	if err := os.MkdirAll(filepath.Dir(absDBPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}

	// Migrations run explicitly below, not on connect
	config := database.DefaultConfig()
	config.Backend = database.BackendSQLite
	config.Database.Path = absDBPath
	config.Migration.Path = absMigrationsPath
	config.Migration.Enabled = false
	config.Migration.BackupBeforeMigration = *backup

	connectionManager := database.NewConnectionManager(config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Handle different actions
	switch *action {
	case "up":
		err = withMigrations(ctx, connectionManager, func(m *database.MigrationManager) error {
			return m.RunMigrations()
		})
	case "down":
		err = withMigrations(ctx, connectionManager, func(m *database.MigrationManager) error {
			return m.RollbackMigration()
		})
	case "status":
		err = withMigrations(ctx, connectionManager, showMigrationStatus)
	case "validate":
		err = withMigrations(ctx, connectionManager, func(m *database.MigrationManager) error {
			if err := m.ValidateSchema(); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}
			fmt.Println("Schema validation passed successfully")
			return nil
		})
	default:
		logger.WithField("action", *action).Fatal("Unknown action. Use: up, down, status, validate")
	}
	if err != nil {
		logger.WithError(err).WithField("action", *action).Fatal("Migration failed")
	}

	logger.Info("Migration tool completed successfully")
}

func withMigrations(ctx context.Context, cm *database.ConnectionManager, fn func(*database.MigrationManager) error) error {
	if err := cm.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer cm.Close()

	return fn(cm.GetMigrationManager())
}

func showMigrationStatus(m *database.MigrationManager) error {
	status, err := m.GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Printf("Migration Status:\n")
	fmt.Printf("  Version: %d\n", status.Version)
	fmt.Printf("  Applied: %t\n", status.Applied)
	fmt.Printf("  Dirty: %t\n", status.Dirty)
	fmt.Printf("  Timestamp: %s\n", status.Timestamp.Format("2006-01-02 15:04:05"))

	return nil
}
