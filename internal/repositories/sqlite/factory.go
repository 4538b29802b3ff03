package sqlite

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
)

// Open initializes the SQLite database described by config, runs its
// migrations and returns a document store that owns the connection
func Open(ctx context.Context, config *database.Config, logger *logrus.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := database.InitializeDatabase(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite document store: %w", err)
	}

	store := NewDocumentStore(db, logger)
	store.ownsDB = true
	if config.Query.SlowQueryThreshold > 0 {
		store.slowQueryThreshold = config.Query.SlowQueryThreshold
	}

	logger.WithField("path", config.Database.Path).Info("SQLite document store ready")
	return store, nil
}
