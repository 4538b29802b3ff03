package storage

import (
	"fmt"
	"strings"
)

// StoreType represents the type of document store implementation
type StoreType string

const (
	StoreTypeMemory    StoreType = "memory"
	StoreTypeLocal     StoreType = "local"
	StoreTypeSQLite    StoreType = "sqlite"
	StoreTypePostgres  StoreType = "postgres"
	StoreTypeFirestore StoreType = "firestore"
	StoreTypeDynamoDB  StoreType = "dynamodb"
)

// Factory creates the file-less DocumentStore backends of this package.
// Database and cloud backends are built by the repositories and cloud adapters.
type Factory struct {
	retryConfig *RetryConfig
}

// NewFactory creates a new storage factory
func NewFactory(retryConfig *RetryConfig) *Factory {
	return &Factory{
		retryConfig: retryConfig,
	}
}

// Create creates a DocumentStore instance based on the provided configuration
func (f *Factory) Create(config *StoreConfig) (DocumentStore, error) {
	if config == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	var store DocumentStore
	var err error

	switch StoreType(strings.ToLower(config.Type)) {
	case StoreTypeMemory, "":
		store = NewMemoryStore()
	case StoreTypeLocal:
		store, err = f.createLocalStore(config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", config.Type, err)
	}

	return f.Wrap(store), nil
}

// Wrap adds retry logic to a store if the factory has a retry configuration
func (f *Factory) Wrap(store DocumentStore) DocumentStore {
	if f.retryConfig == nil {
		return store
	}
	return NewRetryingStore(store, f.retryConfig)
}

// createLocalStore creates a local filesystem document store
func (f *Factory) createLocalStore(config *StoreConfig) (DocumentStore, error) {
	basePath := config.BasePath
	if basePath == "" {
		basePath = "./data" // Default path
	}
	return NewLocalStore(basePath)
}

// DefaultFactory returns a factory with default retry configuration
func DefaultFactory() *Factory {
	return NewFactory(DefaultRetryConfig())
}

// CreateFromConfig is a convenience function to create storage from config
func CreateFromConfig(config *StoreConfig) (DocumentStore, error) {
	return DefaultFactory().Create(config)
}

// MustCreate creates storage from config and panics on error (for testing)
func MustCreate(config *StoreConfig) DocumentStore {
	store, err := CreateFromConfig(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create storage: %v", err))
	}
	return store
}
