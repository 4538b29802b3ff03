package firestorestore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// Store implements storage.DocumentStore on Cloud Firestore.
// Firestore's own transaction retries are disabled so that conflicts
// surface as storage.ErrConflict and are retried by the caller.
type Store struct {
	client *firestore.Client
}

var _ storage.DocumentStore = (*Store)(nil)

// New connects to Firestore. FIRESTORE_EMULATOR_HOST is honoured by the client library.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, storage.NewStorageError("Connect", "", err, false)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) ref(collection, id string) *firestore.DocumentRef {
	return s.client.Collection(collection).Doc(id)
}

// Get implements storage.DocumentStore.Get
func (s *Store) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	if err := storage.ValidateKey(collection, id); err != nil {
		return nil, storage.NewStorageError("Get", storage.DocKey(collection, id), err, false)
	}

	doc, err := s.ref(collection, id).Get(ctx)
	if err != nil {
		return nil, mapError("Get", storage.DocKey(collection, id), err)
	}
	return toSnapshot("Get", collection, doc)
}

// Query implements storage.DocumentStore.Query
func (s *Store) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	docs, err := buildQuery(s.client.Collection(collection).Query, filters).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("Query", collection, err)
	}
	return toSnapshots(collection, docs)
}

// Set implements storage.DocumentStore.Set
func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	if err := storage.ValidateKey(collection, id); err != nil {
		return storage.NewStorageError("Set", storage.DocKey(collection, id), err, false)
	}

	data, setOpts, err := prepareSet(collection, id, doc, storage.ApplySetOptions(opts...).Merge)
	if err != nil {
		return err
	}
	if _, err := s.ref(collection, id).Set(ctx, data, setOpts...); err != nil {
		return mapError("Set", storage.DocKey(collection, id), err)
	}
	return nil
}

// Delete implements storage.DocumentStore.Delete
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := storage.ValidateKey(collection, id); err != nil {
		return storage.NewStorageError("Delete", storage.DocKey(collection, id), err, false)
	}

	if _, err := s.ref(collection, id).Delete(ctx); err != nil {
		return mapError("Delete", storage.DocKey(collection, id), err)
	}
	return nil
}

// BatchWrite implements storage.DocumentStore.BatchWrite
func (s *Store) BatchWrite(ctx context.Context, ops []storage.WriteOp) error {
	if err := storage.ValidateBatch(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	batch := s.client.Batch()
	for _, op := range ops {
		ref := s.ref(op.Collection, op.ID)
		if op.Kind == storage.WriteOpDelete {
			batch.Delete(ref)
			continue
		}
		data, setOpts, err := prepareSet(op.Collection, op.ID, op.Doc, op.Merge)
		if err != nil {
			return err
		}
		batch.Set(ref, data, setOpts...)
	}

	if _, err := batch.Commit(ctx); err != nil {
		return mapError("BatchWrite", "", err)
	}
	return nil
}

// RunTransaction implements storage.DocumentStore.RunTransaction.
// Firestore requires every read to happen before the first write, so writes
// are buffered and applied once fn returns.
func (s *Store) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		tx := &transaction{store: s, ftx: ftx, overlay: make(map[string]*storage.Snapshot)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.flush()
	}, firestore.MaxAttempts(1))
	if err != nil {
		return mapError("Commit", "", err)
	}
	return nil
}

// TransactionalUpdate implements storage.DocumentStore.TransactionalUpdate
func (s *Store) TransactionalUpdate(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	return storage.TransactionalUpdateVia(ctx, s, collection, id, fn)
}

// Close implements storage.DocumentStore.Close
func (s *Store) Close() error {
	return s.client.Close()
}

func buildQuery(q firestore.Query, filters []storage.Filter) firestore.Query {
	for _, f := range filters {
		q = q.Where(f.Field, "==", normalizeValue(f.Value))
	}
	return q
}

// prepareSet converts a document into the map form Firestore stores
func prepareSet(collection, id string, doc interface{}, merge bool) (map[string]interface{}, []firestore.SetOption, error) {
	raw, err := storage.EncodeDocument(doc)
	if err != nil {
		return nil, nil, storage.NewStorageError("Set", storage.DocKey(collection, id), err, false)
	}
	data, err := decodeFields(raw)
	if err != nil {
		return nil, nil, storage.NewStorageError("Set", storage.DocKey(collection, id), err, false)
	}

	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	return data, opts, nil
}

// decodeFields decodes JSON into a map with whole numbers kept as int64,
// so that counters and invoice numbers stay integers in Firestore
func decodeFields(raw []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, storage.ErrInvalidData
	}
	return convertNumbers(fields).(map[string]interface{}), nil
}

func convertNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			val[k] = convertNumbers(child)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = convertNumbers(child)
		}
		return val
	case float64:
		if val == float64(int64(val)) && val < 1<<53 && val > -(1<<53) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

func normalizeValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return v
	}
	return convertNumbers(decoded)
}

func toSnapshot(op, collection string, doc *firestore.DocumentSnapshot) (*storage.Snapshot, error) {
	if doc == nil || !doc.Exists() {
		return nil, storage.NewStorageError(op, collection, storage.ErrDocumentNotFound, false)
	}
	data, err := json.Marshal(doc.Data())
	if err != nil {
		return nil, storage.NewStorageError(op, storage.DocKey(collection, doc.Ref.ID), storage.ErrInvalidData, false)
	}
	return &storage.Snapshot{
		Collection: collection,
		ID:         doc.Ref.ID,
		Data:       data,
		Version:    doc.UpdateTime.UnixNano(),
		UpdatedAt:  doc.UpdateTime,
	}, nil
}

func toSnapshots(collection string, docs []*firestore.DocumentSnapshot) ([]*storage.Snapshot, error) {
	result := make([]*storage.Snapshot, 0, len(docs))
	for _, doc := range docs {
		snap, err := toSnapshot("Query", collection, doc)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// mapError translates gRPC status codes into storage errors
func mapError(op, key string, err error) error {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	switch status.Code(err) {
	case codes.NotFound:
		return storage.NewStorageError(op, key, storage.ErrDocumentNotFound, false)
	case codes.Aborted, codes.FailedPrecondition, codes.AlreadyExists:
		return storage.NewConflictError(op, key)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, true)
	case codes.DeadlineExceeded:
		return storage.NewStorageError(op, key, storage.ErrTimeout, true)
	case codes.PermissionDenied, codes.Unauthenticated:
		return storage.NewStorageError(op, key, storage.ErrPermissionDenied, false)
	case codes.Unknown:
		// errors returned by the transaction body keep their identity
		return err
	default:
		return storage.NewStorageError(op, key, err, false)
	}
}

// transaction adapts a Firestore transaction to storage.Tx
type transaction struct {
	store   *Store
	ftx     *firestore.Transaction
	writes  []storage.WriteOp
	overlay map[string]*storage.Snapshot
}

func (t *transaction) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	if err := storage.ValidateKey(collection, id); err != nil {
		return nil, storage.NewStorageError("Get", storage.DocKey(collection, id), err, false)
	}

	key := storage.DocKey(collection, id)
	if snap, ok := t.overlay[key]; ok {
		if snap == nil {
			return nil, storage.NewStorageError("Get", key, storage.ErrDocumentNotFound, false)
		}
		return snap, nil
	}

	doc, err := t.ftx.Get(t.store.ref(collection, id))
	if err != nil {
		return nil, mapError("Get", key, err)
	}
	return toSnapshot("Get", collection, doc)
}

func (t *transaction) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	q := buildQuery(t.store.client.Collection(collection).Query, filters)
	docs, err := t.ftx.Documents(q).GetAll()
	if err != nil {
		return nil, mapError("Query", collection, err)
	}
	return toSnapshots(collection, docs)
}

func (t *transaction) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	options := storage.ApplySetOptions(opts...)
	op := storage.WriteOp{Kind: storage.WriteOpSet, Collection: collection, ID: id, Doc: doc, Merge: options.Merge}
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}

	raw, err := storage.EncodeDocument(doc)
	if err != nil {
		return storage.NewStorageError("Set", storage.DocKey(collection, id), err, false)
	}
	t.writes = append(t.writes, op)

	key := storage.DocKey(collection, id)
	if options.Merge {
		prev, ok := t.overlay[key]
		if !ok || prev == nil {
			delete(t.overlay, key)
			return nil
		}
		merged, err := storage.MergeDocuments(prev.Data, raw)
		if err != nil {
			return storage.NewStorageError("Set", key, err, false)
		}
		raw = merged
	}
	t.overlay[key] = &storage.Snapshot{Collection: collection, ID: id, Data: raw}
	return nil
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	op := storage.DeleteOp(collection, id)
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}
	t.writes = append(t.writes, op)
	t.overlay[storage.DocKey(collection, id)] = nil
	return nil
}

// flush hands the buffered writes to Firestore
func (t *transaction) flush() error {
	if len(t.writes) > storage.MaxBatchSize {
		return storage.NewStorageError("Commit", "", storage.ErrBatchTooLarge, false)
	}
	for _, op := range t.writes {
		ref := t.store.ref(op.Collection, op.ID)
		if op.Kind == storage.WriteOpDelete {
			if err := t.ftx.Delete(ref); err != nil {
				return err
			}
			continue
		}
		data, setOpts, err := prepareSet(op.Collection, op.ID, op.Doc, op.Merge)
		if err != nil {
			return err
		}
		if err := t.ftx.Set(ref, data, setOpts...); err != nil {
			return err
		}
	}
	return nil
}
