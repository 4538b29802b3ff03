package repositories

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/dynamostore"
	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/firestorestore"
	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories/postgres"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories/sqlite"
)

// RepositoryFactory opens the document store selected by configuration
type RepositoryFactory struct {
	logger *logrus.Logger
	retry  *storage.RetryConfig
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(retry *storage.RetryConfig, logger *logrus.Logger) *RepositoryFactory {
	if logger == nil {
		logger = logrus.New()
	}
	if retry == nil {
		retry = storage.DefaultRetryConfig()
	}
	return &RepositoryFactory{logger: logger, retry: retry}
}

// CreateRepositoryManager opens the configured store and wraps it in a manager
func (f *RepositoryFactory) CreateRepositoryManager(ctx context.Context, config *database.Config) (*RepositoryManager, error) {
	store, err := f.OpenStore(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewRepositoryManager(store, config.NormalizedBackend(), f.retry, f.logger), nil
}

// OpenStore opens the document store of config.Backend. Single reads and
// writes are retried on transient failures.
func (f *RepositoryFactory) OpenStore(ctx context.Context, config *database.Config) (storage.DocumentStore, error) {
	if config == nil {
		config = database.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	backend := config.NormalizedBackend()
	store, err := f.open(ctx, backend, config)
	if err != nil {
		f.logger.WithError(err).WithField("backend", backend).Error("Failed to open document store")
		return nil, ConnectionError(err)
	}

	f.logger.WithField("backend", backend).Info("Document store opened")
	return storage.NewRetryingStore(store, f.retry), nil
}

func (f *RepositoryFactory) open(ctx context.Context, backend string, config *database.Config) (storage.DocumentStore, error) {
	switch backend {
	case database.BackendMemory:
		return storage.NewMemoryStore(), nil

	case database.BackendLocal:
		return storage.NewLocalStore(config.LocalPath)

	case database.BackendSQLite:
		return sqlite.Open(ctx, config, f.logger)

	case database.BackendPostgres:
		return postgres.Open(ctx, config, f.logger)

	case database.BackendFirestore:
		return firestorestore.New(ctx, config.Firestore.ProjectID)

	case database.BackendDynamoDB:
		clientConfig := dynamostore.ClientConfigFromEnv()
		if config.DynamoDB.Region != "" {
			clientConfig.Region = config.DynamoDB.Region
		}
		if config.DynamoDB.Endpoint != "" {
			clientConfig.Endpoint = config.DynamoDB.Endpoint
		}
		if config.DynamoDB.Table != "" {
			clientConfig.TableName = config.DynamoDB.Table
		}
		client, err := dynamostore.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
		}
		return dynamostore.NewStore(client, clientConfig.TableName), nil
	}

	return nil, fmt.Errorf("%w: backend %q", ErrUnsupported, backend)
}
