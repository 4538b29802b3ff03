package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
	"github.com/juan49ers-spec/Repaart-sub012/internal/database"
)

// documentRecord is one row of the documents table
type documentRecord struct {
	Collection string         `gorm:"primaryKey;type:varchar(128)"`
	ID         string         `gorm:"primaryKey;type:varchar(256)"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	Version    int64          `gorm:"not null;default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string {
	return "documents"
}

// DocumentStore implements storage.DocumentStore on PostgreSQL through gorm.
// Reads inside a transaction take row locks (SELECT ... FOR UPDATE), so
// concurrent read-modify-write cycles on the same document are serialized.
// Two transactions inserting the same new document collide on the primary
// key and the loser gets a retryable conflict.
type DocumentStore struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wraps an open gorm connection
func NewDocumentStore(db *gorm.DB, logger *logrus.Logger) *DocumentStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to PostgreSQL and creates the documents table if needed
func Open(ctx context.Context, config *database.Config, logger *logrus.Logger) (*DocumentStore, error) {
	db, err := database.NewConnectionFactory(logger).CreatePostgresConnection(ctx, config)
	if err != nil {
		return nil, err
	}

	store := NewDocumentStore(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// AutoMigrate creates or updates the documents table
func (s *DocumentStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&documentRecord{}); err != nil {
		return fmt.Errorf("failed to migrate documents table: %w", err)
	}
	s.logger.Info("PostgreSQL documents table ready")
	return nil
}

// Get implements storage.DocumentStore.Get
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	return s.get(s.db.WithContext(ctx), collection, id)
}

// Query implements storage.DocumentStore.Query
func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	return s.query(s.db.WithContext(ctx), collection, filters)
}

// Set implements storage.DocumentStore.Set
func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	op := storage.WriteOp{
		Kind:       storage.WriteOpSet,
		Collection: collection,
		ID:         id,
		Doc:        doc,
		Merge:      storage.ApplySetOptions(opts...).Merge,
	}
	return s.BatchWrite(ctx, []storage.WriteOp{op})
}

// Delete implements storage.DocumentStore.Delete
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	return s.BatchWrite(ctx, []storage.WriteOp{storage.DeleteOp(collection, id)})
}

// BatchWrite implements storage.DocumentStore.BatchWrite
func (s *DocumentStore) BatchWrite(ctx context.Context, ops []storage.WriteOp) error {
	if err := storage.ValidateBatch(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	return s.transaction(ctx, func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := s.apply(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunTransaction implements storage.DocumentStore.RunTransaction
func (s *DocumentStore) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		return fn(ctx, &transaction{store: s, tx: tx})
	})
}

// TransactionalUpdate implements storage.DocumentStore.TransactionalUpdate
func (s *DocumentStore) TransactionalUpdate(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	return storage.TransactionalUpdateVia(ctx, s, collection, id, fn)
}

// Close implements storage.DocumentStore.Close
func (s *DocumentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storage.NewStorageError("Close", "", err, false)
	}
	return sqlDB.Close()
}

// transaction runs fn in a gorm transaction. Errors returned by fn keep
// their identity; only commit failures are translated.
func (s *DocumentStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var bodyErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bodyErr = fn(tx)
		return bodyErr
	})
	if err == nil {
		return nil
	}
	if bodyErr != nil {
		return bodyErr
	}
	s.logger.WithError(err).Error("Failed to commit transaction")
	return mapError("Commit", "", err)
}

func (s *DocumentStore) get(db *gorm.DB, collection, id string) (*storage.Snapshot, error) {
	key := storage.DocKey(collection, id)
	if err := storage.ValidateKey(collection, id); err != nil {
		return nil, storage.NewStorageError("Get", key, err, false)
	}

	var rec documentRecord
	if err := db.Where("collection = ? AND id = ?", collection, id).Take(&rec).Error; err != nil {
		return nil, mapError("Get", key, err)
	}
	return rec.snapshot(), nil
}

func (s *DocumentStore) query(db *gorm.DB, collection string, filters []storage.Filter) ([]*storage.Snapshot, error) {
	q := db.Where("collection = ?", collection)
	for _, f := range filters {
		fragment, err := containmentFilter(f)
		if err != nil {
			return nil, storage.NewStorageError("Query", collection, storage.ErrInvalidData, false)
		}
		q = q.Where("data @> ?::jsonb", fragment)
	}

	var recs []documentRecord
	if err := q.Order("id").Find(&recs).Error; err != nil {
		return nil, mapError("Query", collection, err)
	}

	result := make([]*storage.Snapshot, 0, len(recs))
	for i := range recs {
		result = append(result, recs[i].snapshot())
	}
	return result, nil
}

// apply performs one write inside tx
func (s *DocumentStore) apply(tx *gorm.DB, op storage.WriteOp) error {
	key := storage.DocKey(op.Collection, op.ID)

	if op.Kind == storage.WriteOpDelete {
		err := tx.Where("collection = ? AND id = ?", op.Collection, op.ID).Delete(&documentRecord{}).Error
		if err != nil {
			return mapError("Delete", key, err)
		}
		return nil
	}

	data, err := storage.EncodeDocument(op.Doc)
	if err != nil {
		return storage.NewStorageError("Set", key, err, false)
	}

	if op.Merge {
		current, err := s.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), op.Collection, op.ID)
		switch {
		case err == nil:
			if data, err = storage.MergeDocuments(current.Data, data); err != nil {
				return storage.NewStorageError("Set", key, err, false)
			}
		case !storage.IsNotFound(err):
			return err
		}
	}

	now := s.now()
	rec := documentRecord{
		Collection: op.Collection,
		ID:         op.ID,
		Data:       datatypes.JSON(data),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"data":       gorm.Expr("excluded.data"),
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&rec).Error
	if err != nil {
		return mapError("Set", key, err)
	}
	return nil
}

func (r *documentRecord) snapshot() *storage.Snapshot {
	return &storage.Snapshot{
		Collection: r.Collection,
		ID:         r.ID,
		Data:       []byte(r.Data),
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}
}

// containmentFilter renders an equality filter as the jsonb fragment {"field": value}
func containmentFilter(f storage.Filter) (datatypes.JSON, error) {
	raw, err := json.Marshal(map[string]interface{}{f.Field: f.Value})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// sqlStater is implemented by pgconn.PgError
type sqlStater interface {
	SQLState() string
}

// mapError translates gorm and PostgreSQL errors into storage errors
func mapError(op, key string, err error) error {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.NewStorageError(op, key, storage.ErrDocumentNotFound, false)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.NewConflictError(op, key)
	case errors.Is(err, context.DeadlineExceeded):
		return storage.NewStorageError(op, key, storage.ErrTimeout, true)
	case errors.Is(err, context.Canceled):
		return err
	}

	var pgErr sqlStater
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "40001", "40P01", "23505", "55P03":
			// serialization failure, deadlock, unique violation, lock not available
			return storage.NewConflictError(op, key)
		case "08000", "08003", "08006", "57P01", "53300":
			return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, true)
		case "42501":
			return storage.NewStorageError(op, key, storage.ErrPermissionDenied, false)
		case "22P02", "23514":
			return storage.NewStorageError(op, key, storage.ErrInvalidData, false)
		}
	}

	return storage.NewStorageError(op, key, err, false)
}

// transaction is the storage.Tx view of a gorm transaction
type transaction struct {
	store *DocumentStore
	tx    *gorm.DB
}

func (t *transaction) locked() *gorm.DB {
	return t.tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *transaction) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	return t.store.get(t.locked(), collection, id)
}

func (t *transaction) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	return t.store.query(t.locked(), collection, filters)
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
	return t.store.apply(t.tx, op)
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	op := storage.DeleteOp(collection, id)
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}
	return t.store.apply(t.tx, op)
}
