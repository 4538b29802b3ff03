package database

import (
	"errors"
	"strings"
	"time"
)

// Supported backends
const (
	BackendMemory    = "memory"
	BackendLocal     = "local"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendDynamoDB  = "dynamodb"
)

// Config represents persistence configuration
type Config struct {
	// Backend selects the document store implementation
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Database configuration for the sqlite and postgres backends
	Database DatabaseConfig `json:"database" yaml:"database" mapstructure:"database"`

	// Connection pool configuration
	Pool PoolConfig `json:"pool" yaml:"pool" mapstructure:"pool"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query" mapstructure:"query"`

	// Migration configuration
	Migration MigrationConfig `json:"migration" yaml:"migration" mapstructure:"migration"`

	// LocalPath is the directory of the local file backend
	LocalPath string `json:"local_path" yaml:"local_path" mapstructure:"local_path"`

	// Firestore configuration
	Firestore FirestoreConfig `json:"firestore" yaml:"firestore" mapstructure:"firestore"`

	// DynamoDB configuration
	DynamoDB DynamoDBConfig `json:"dynamodb" yaml:"dynamodb" mapstructure:"dynamodb"`
}

// DatabaseConfig represents database-specific configuration
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// Path is the database file path (for SQLite)
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// WAL mode for SQLite
	WALMode bool `json:"wal_mode" yaml:"wal_mode" mapstructure:"wal_mode"`

	// Foreign key constraints
	ForeignKeys bool `json:"foreign_keys" yaml:"foreign_keys" mapstructure:"foreign_keys"`

	// Synchronous mode for SQLite
	Synchronous string `json:"synchronous" yaml:"synchronous" mapstructure:"synchronous"`

	// Cache size for SQLite (in KB)
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`

	// Busy timeout for SQLite (in milliseconds)
	BusyTimeout int `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// PoolConfig represents connection pool configuration
type PoolConfig struct {
	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum idle time of a connection
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// QueryConfig represents query-specific configuration
type QueryConfig struct {
	// Timeout is the default query timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// SlowQueryThreshold is the threshold for logging slow queries
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`

	// EnableQueryLogging enables query logging
	EnableQueryLogging bool `json:"enable_query_logging" yaml:"enable_query_logging" mapstructure:"enable_query_logging"`
}

// MigrationConfig represents migration configuration
type MigrationConfig struct {
	// Enabled enables automatic migrations
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Path is the migration files path
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// BackupBeforeMigration creates a backup before running migrations
	BackupBeforeMigration bool `json:"backup_before_migration" yaml:"backup_before_migration" mapstructure:"backup_before_migration"`
}

// FirestoreConfig holds the Firestore connection settings
type FirestoreConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id" mapstructure:"project_id"`
}

// DynamoDBConfig holds the DynamoDB connection settings
type DynamoDBConfig struct {
	Table    string `json:"table" yaml:"table" mapstructure:"table"`
	Region   string `json:"region" yaml:"region" mapstructure:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
}

// DefaultConfig returns a default persistence configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Database: DatabaseConfig{
			Path:        "data/repaart.db",
			WALMode:     true,
			ForeignKeys: true,
			Synchronous: "NORMAL",
			CacheSize:   -64000, // 64MB
			BusyTimeout: 30000,  // 30 seconds
		},
		Pool: PoolConfig{
			MaxOpenConns:    1, // SQLite works best with single connection
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: time.Minute * 15,
		},
		Query: QueryConfig{
			Timeout:            time.Second * 30,
			SlowQueryThreshold: time.Second * 2,
			EnableQueryLogging: false,
		},
		Migration: MigrationConfig{
			Enabled:               true,
			Path:                  "migrations/sqlite",
			BackupBeforeMigration: true,
		},
		LocalPath: "data/documents",
		DynamoDB: DynamoDBConfig{
			Table:  "billing_documents",
			Region: "eu-west-1",
		},
	}
}

// Validate validates the persistence configuration
func (c *Config) Validate() error {
	switch c.NormalizedBackend() {
	case BackendMemory:
		return nil
	case BackendLocal:
		if c.LocalPath == "" {
			return errors.New("local path is required for the local backend")
		}
		return nil
	case BackendSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for SQLite")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return errors.New("database DSN is required for PostgreSQL")
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return errors.New("project ID is required for Firestore")
		}
		return nil
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return errors.New("table name is required for DynamoDB")
		}
		return nil
	default:
		return errors.New("unsupported backend: " + c.Backend)
	}

	if c.Pool.MaxOpenConns <= 0 {
		return errors.New("max open connections must be greater than 0")
	}

	if c.Pool.MaxIdleConns < 0 {
		return errors.New("max idle connections cannot be negative")
	}

	if c.Pool.MaxIdleConns > c.Pool.MaxOpenConns {
		return errors.New("max idle connections cannot exceed max open connections")
	}

	if c.Query.Timeout <= 0 {
		return errors.New("query timeout must be greater than 0")
	}

	if c.Migration.Enabled && c.Migration.Path == "" {
		return errors.New("migration path is required")
	}

	return nil
}

// NormalizedBackend returns the lower-cased backend name, with postgresql folded into postgres
func (c *Config) NormalizedBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "postgresql" {
		return BackendPostgres
	}
	return backend
}

// GetDSN returns the appropriate DSN for the database backend
func (c *Config) GetDSN() string {
	if c.IsSQLite() {
		return c.Database.Path
	}
	return c.Database.DSN
}

// IsSQLite returns true if the backend is SQLite
func (c *Config) IsSQLite() bool {
	return c.NormalizedBackend() == BackendSQLite
}

// IsPostgreSQL returns true if the backend is PostgreSQL
func (c *Config) IsPostgreSQL() bool {
	return c.NormalizedBackend() == BackendPostgres
}
