package sqlite

import (
	"context"
	"database/sql"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// withTx runs fn in a transaction; errors from fn are returned unchanged
func (s *DocumentStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.WithError(err).Error("Failed to begin transaction")
		return mapError("Begin", "", err)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			s.logger.WithError(rollbackErr).Error("Failed to rollback transaction after error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.WithError(err).Error("Failed to commit transaction")
		return mapError("Commit", "", err)
	}
	s.logger.Debug("Transaction committed successfully")
	return nil
}

// transaction is the storage.Tx view of an open SQLite transaction.
// Writes go straight to the transaction, so later reads see them.
type transaction struct {
	store *DocumentStore
	tx    *sql.Tx
}

func (t *transaction) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	return t.store.get(ctx, t.tx, collection, id)
}

func (t *transaction) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	return t.store.query(ctx, t.tx, collection, filters)
}

func (t *transaction) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	op := storage.WriteOp{
		Kind:       storage.WriteOpSet,
		Collection: collection,
		ID:         id,
		Doc:        doc,
		Merge:      storage.ApplySetOptions(opts...).Merge,
	}
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}
	return t.store.apply(ctx, t.tx, op)
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	op := storage.DeleteOp(collection, id)
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}
	return t.store.apply(ctx, t.tx, op)
}
