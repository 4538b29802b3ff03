package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
)

// loadStoreConfig builds the persistence configuration from the environment
func loadStoreConfig(v *viper.Viper) *database.Config {
	store := database.DefaultConfig()

	store.Backend = v.GetString("STORE_BACKEND")
	store.Database.Path = v.GetString("DB_PATH")
	store.Database.DSN = v.GetString("DATABASE_URL")
	store.Migration.Path = v.GetString("DB_MIGRATIONS_PATH")
	store.Migration.Enabled = v.GetBool("DB_AUTO_MIGRATE")
	store.Migration.BackupBeforeMigration = v.GetBool("DB_BACKUP_ENABLED")
	store.Pool.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	store.Pool.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	store.Query.Timeout = v.GetDuration("DB_QUERY_TIMEOUT")
	store.Query.EnableQueryLogging = v.GetBool("DB_QUERY_LOGGING")
	store.LocalPath = v.GetString("LOCAL_STORE_PATH")
	store.Firestore.ProjectID = v.GetString("FIRESTORE_PROJECT_ID")
	store.DynamoDB.Table = v.GetString("DYNAMODB_TABLE")
	store.DynamoDB.Region = v.GetString("AWS_REGION")
	store.DynamoDB.Endpoint = v.GetString("DYNAMODB_ENDPOINT")

	// Postgres keeps a real pool
	if store.IsPostgreSQL() && store.Pool.MaxOpenConns == 1 {
		store.Pool.MaxOpenConns = 25
		store.Pool.MaxIdleConns = 5
	}

	return store
}

// EnsureStoreDirectories creates the directories the file based backends write to
func EnsureStoreDirectories(store *database.Config) error {
	switch store.NormalizedBackend() {
	case database.BackendSQLite:
		dbDir := filepath.Dir(store.Database.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		if store.Migration.Enabled {
			if _, err := os.Stat(store.Migration.Path); os.IsNotExist(err) {
				return fmt.Errorf("migrations directory does not exist: %s", store.Migration.Path)
			}
		}
	case database.BackendLocal:
		if err := os.MkdirAll(store.LocalPath, 0755); err != nil {
			return fmt.Errorf("failed to create local store directory: %w", err)
		}
	}
	return nil
}
