package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// DocumentStore implements storage.DocumentStore on the SQLite documents table.
// Transactions are opened with BEGIN IMMEDIATE, so writers are serialized
// by SQLite and a busy database surfaces as a retryable conflict.
type DocumentStore struct {
	baseStore
	ownsDB bool
	now    func() time.Time
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wraps an open database whose schema has been migrated.
// The caller keeps ownership of db.
func NewDocumentStore(db *sql.DB, logger *logrus.Logger) *DocumentStore {
	return &DocumentStore{
		baseStore: newBaseStore(db, logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged as slow
func (s *DocumentStore) WithSlowQueryThreshold(d time.Duration) *DocumentStore {
	s.slowQueryThreshold = d
	return s
}

// Get implements storage.DocumentStore.Get
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	return s.get(ctx, s.db, collection, id)
}

// Query implements storage.DocumentStore.Query
func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	return s.query(ctx, s.db, collection, filters)
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

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			if err := s.apply(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunTransaction implements storage.DocumentStore.RunTransaction
func (s *DocumentStore) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &transaction{store: s, tx: tx})
	})
}

// TransactionalUpdate implements storage.DocumentStore.TransactionalUpdate
func (s *DocumentStore) TransactionalUpdate(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	return storage.TransactionalUpdateVia(ctx, s, collection, id, fn)
}

// Close releases the database when the store opened it itself
func (s *DocumentStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return storage.NewStorageError("Close", "", err, false)
	}
	return nil
}

// Count returns the number of documents in a collection
func (s *DocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	row := s.executeQueryRow(ctx, s.db, "count", "SELECT COUNT(*) FROM documents WHERE collection = ?", collection)
	if err := row.Scan(&count); err != nil {
		return 0, mapError("Count", collection, err)
	}
	return count, nil
}

func (s *DocumentStore) get(ctx context.Context, q querier, collection, id string) (*storage.Snapshot, error) {
	if err := validateKey("Get", collection, id); err != nil {
		return nil, err
	}

	query := "SELECT data, version, updated_at FROM documents WHERE collection = ? AND id = ?"
	snap := &storage.Snapshot{Collection: collection, ID: id}
	var data string
	err := s.executeQueryRow(ctx, q, "get", query, collection, id).Scan(&data, &snap.Version, &snap.UpdatedAt)
	if err != nil {
		return nil, mapError("Get", storage.DocKey(collection, id), err)
	}
	snap.Data = []byte(data)
	return snap, nil
}

func (s *DocumentStore) query(ctx context.Context, q querier, collection string, filters []storage.Filter) ([]*storage.Snapshot, error) {
	query, args := buildQuery(collection, filters)

	rows, err := s.executeQuery(ctx, q, "query", query, args...)
	if err != nil {
		return nil, mapError("Query", collection, err)
	}
	defer rows.Close()

	var result []*storage.Snapshot
	for rows.Next() {
		snap := &storage.Snapshot{Collection: collection}
		var data string
		if err := rows.Scan(&snap.ID, &data, &snap.Version, &snap.UpdatedAt); err != nil {
			return nil, mapError("Query", collection, err)
		}
		snap.Data = []byte(data)
		// json_extract only narrows string filters; the final match is done in Go
		if storage.MatchesFilters(snap.Data, filters) {
			result = append(result, snap)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("Query", collection, err)
	}
	return result, nil
}

// buildQuery builds the collection scan, pushing string equality filters into SQL
func buildQuery(collection string, filters []storage.Filter) (string, []interface{}) {
	conditions := []string{"collection = ?"}
	args := []interface{}{collection}

	for _, f := range filters {
		value, ok := stringValue(f.Value)
		if !ok {
			continue
		}
		conditions = append(conditions, "json_extract(data, ?) = ?")
		args = append(args, "$."+f.Field, value)
	}

	query := fmt.Sprintf("SELECT id, data, version, updated_at FROM documents WHERE %s ORDER BY id",
		strings.Join(conditions, " AND "))
	return query, args
}

// stringValue reports whether v is a string or a named string type
func stringValue(v interface{}) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// apply performs one write inside tx
func (s *DocumentStore) apply(ctx context.Context, tx *sql.Tx, op storage.WriteOp) error {
	key := storage.DocKey(op.Collection, op.ID)

	if op.Kind == storage.WriteOpDelete {
		_, err := s.executeExec(ctx, tx, "delete", "DELETE FROM documents WHERE collection = ? AND id = ?", op.Collection, op.ID)
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
		current, err := s.get(ctx, tx, op.Collection, op.ID)
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
	query := `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = excluded.updated_at`
	if _, err := s.executeExec(ctx, tx, "set", query, op.Collection, op.ID, string(data), now, now); err != nil {
		return mapError("Set", key, err)
	}
	return nil
}
