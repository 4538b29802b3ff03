package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// record is a stored document with its version
type record struct {
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// recordBackend is the raw persistence behind a versionedStore.
// load returns nil, nil for a missing document.
type recordBackend interface {
	load(collection, id string) (*record, error)
	save(collection, id string, rec *record) error
	remove(collection, id string) error
	list(collection string) ([]string, error)
	close() error
}

// versionedStore implements DocumentStore with optimistic transactions over a recordBackend.
// Commits are serialized by a mutex; reads made inside a transaction are
// version-checked before any of its writes is applied.
type versionedStore struct {
	mu      sync.Mutex
	backend recordBackend
	closed  bool
	now     func() time.Time

	// failCommits makes the next n commits fail with failErr
	failCommits int
	failErr     error
}

func newVersionedStore(backend recordBackend) *versionedStore {
	return &versionedStore{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *versionedStore) checkOpen(op string) error {
	if s.closed {
		return NewStorageError(op, "", ErrClosed, false)
	}
	return nil
}

// Get implements DocumentStore.Get
func (s *versionedStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateKey(collection, id); err != nil {
		return nil, NewStorageError("Get", DocKey(collection, id), err, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("Get"); err != nil {
		return nil, err
	}
	rec, err := s.backend.load(collection, id)
	if err != nil {
		return nil, NewStorageError("Get", DocKey(collection, id), err, true)
	}
	if rec == nil {
		return nil, NewStorageError("Get", DocKey(collection, id), ErrDocumentNotFound, false)
	}
	return toSnapshot(collection, id, rec), nil
}

// Query implements DocumentStore.Query
func (s *versionedStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("Query"); err != nil {
		return nil, err
	}
	return s.queryLocked(collection, filters)
}

func (s *versionedStore) queryLocked(collection string, filters []Filter) ([]*Snapshot, error) {
	ids, err := s.backend.list(collection)
	if err != nil {
		return nil, NewStorageError("Query", collection, err, true)
	}
	sort.Strings(ids)

	var result []*Snapshot
	for _, id := range ids {
		rec, err := s.backend.load(collection, id)
		if err != nil {
			return nil, NewStorageError("Query", DocKey(collection, id), err, true)
		}
		if rec == nil || !MatchesFilters(rec.Data, filters) {
			continue
		}
		result = append(result, toSnapshot(collection, id, rec))
	}
	return result, nil
}

// Set implements DocumentStore.Set
func (s *versionedStore) Set(ctx context.Context, collection, id string, doc interface{}, opts ...SetOption) error {
	options := ApplySetOptions(opts...)
	return s.BatchWrite(ctx, []WriteOp{{
		Kind:       WriteOpSet,
		Collection: collection,
		ID:         id,
		Doc:        doc,
		Merge:      options.Merge,
	}})
}

// Delete implements DocumentStore.Delete
func (s *versionedStore) Delete(ctx context.Context, collection, id string) error {
	return s.BatchWrite(ctx, []WriteOp{DeleteOp(collection, id)})
}

// BatchWrite implements DocumentStore.BatchWrite
func (s *versionedStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateBatch(ops); err != nil {
		return err
	}

	writes, err := encodeWrites(ops)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("BatchWrite"); err != nil {
		return err
	}
	return s.commitLocked("BatchWrite", nil, writes)
}

// RunTransaction implements DocumentStore.RunTransaction
func (s *versionedStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &versionedTx{
		store:   s,
		reads:   make(map[string]int64),
		overlay: make(map[string]*record),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("Commit"); err != nil {
		return err
	}
	return s.commitLocked("Commit", tx.reads, tx.writes)
}

// TransactionalUpdate implements DocumentStore.TransactionalUpdate
func (s *versionedStore) TransactionalUpdate(ctx context.Context, collection, id string, fn UpdateFunc) error {
	return TransactionalUpdateVia(ctx, s, collection, id, fn)
}

// Close implements DocumentStore.Close
func (s *versionedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.close()
}

// FailNextCommits makes the next n commits fail with err without writing anything
func (s *versionedStore) FailNextCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
	s.failErr = err
}

// encodedWrite is a WriteOp with its document already encoded
type encodedWrite struct {
	op   WriteOp
	data []byte
}

func encodeWrites(ops []WriteOp) ([]encodedWrite, error) {
	writes := make([]encodedWrite, 0, len(ops))
	for _, op := range ops {
		w := encodedWrite{op: op}
		if op.Kind == WriteOpSet {
			data, err := EncodeDocument(op.Doc)
			if err != nil {
				return nil, NewStorageError("Encode", DocKey(op.Collection, op.ID), err, false)
			}
			w.data = data
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// commitLocked verifies read versions and applies writes. The caller holds s.mu.
func (s *versionedStore) commitLocked(op string, reads map[string]int64, writes []encodedWrite) error {
	if s.failCommits > 0 {
		s.failCommits--
		return NewStorageError(op, "", s.failErr, IsRetryable(s.failErr))
	}

	for key, version := range reads {
		collection, id := splitDocKey(key)
		current, err := s.backend.load(collection, id)
		if err != nil {
			return NewStorageError(op, key, err, true)
		}
		if versionOf(current) != version {
			return NewConflictError(op, key)
		}
	}

	// Compute every new record before touching the backend
	staged := make(map[string]*record)
	var order []string
	for _, w := range writes {
		key := DocKey(w.op.Collection, w.op.ID)
		current, seen := staged[key]
		if !seen {
			loaded, err := s.backend.load(w.op.Collection, w.op.ID)
			if err != nil {
				return NewStorageError(op, key, err, true)
			}
			current = loaded
			order = append(order, key)
		}

		next, err := s.applyWrite(current, w)
		if err != nil {
			return NewStorageError(op, key, err, false)
		}
		staged[key] = next
	}

	for _, key := range order {
		collection, id := splitDocKey(key)
		rec := staged[key]
		var err error
		if rec == nil || rec.Data == nil {
			err = s.backend.remove(collection, id)
		} else {
			err = s.backend.save(collection, id, rec)
		}
		if err != nil {
			return NewStorageError(op, key, err, true)
		}
	}
	return nil
}

// applyWrite returns the record resulting from w; a record with nil Data marks a deletion
func (s *versionedStore) applyWrite(current *record, w encodedWrite) (*record, error) {
	version := versionOf(current) + 1

	if w.op.Kind == WriteOpDelete {
		if current == nil || current.Data == nil {
			return current, nil
		}
		return &record{Version: version}, nil
	}

	data := w.data
	if w.op.Merge && current != nil && current.Data != nil {
		merged, err := MergeDocuments(current.Data, w.data)
		if err != nil {
			return nil, err
		}
		data = merged
	}
	return &record{Data: data, Version: version, UpdatedAt: s.now()}, nil
}

func versionOf(rec *record) int64 {
	if rec == nil || rec.Data == nil {
		return 0
	}
	return rec.Version
}

func toSnapshot(collection, id string, rec *record) *Snapshot {
	return &Snapshot{
		Collection: collection,
		ID:         id,
		Data:       append([]byte(nil), rec.Data...),
		Version:    rec.Version,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func splitDocKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// versionedTx buffers writes and remembers the version of every document read
type versionedTx struct {
	store   *versionedStore
	reads   map[string]int64
	writes  []encodedWrite
	overlay map[string]*record
}

func (t *versionedTx) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateKey(collection, id); err != nil {
		return nil, NewStorageError("Get", DocKey(collection, id), err, false)
	}

	key := DocKey(collection, id)
	if rec, ok := t.overlay[key]; ok {
		if rec == nil || rec.Data == nil {
			return nil, NewStorageError("Get", key, ErrDocumentNotFound, false)
		}
		return toSnapshot(collection, id, rec), nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.checkOpen("Get"); err != nil {
		return nil, err
	}
	rec, err := t.store.backend.load(collection, id)
	if err != nil {
		return nil, NewStorageError("Get", key, err, true)
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = versionOf(rec)
	}
	if rec == nil {
		return nil, NewStorageError("Get", key, ErrDocumentNotFound, false)
	}
	return toSnapshot(collection, id, rec), nil
}

// Query reads committed documents. Documents written earlier in the same
// transaction are not visible to it.
func (t *versionedTx) Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.checkOpen("Query"); err != nil {
		return nil, err
	}
	snaps, err := t.store.queryLocked(collection, filters)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		key := DocKey(snap.Collection, snap.ID)
		if _, seen := t.reads[key]; !seen {
			t.reads[key] = snap.Version
		}
	}
	return snaps, nil
}

func (t *versionedTx) Set(ctx context.Context, collection, id string, doc interface{}, opts ...SetOption) error {
	options := ApplySetOptions(opts...)
	return t.add(WriteOp{Kind: WriteOpSet, Collection: collection, ID: id, Doc: doc, Merge: options.Merge})
}

func (t *versionedTx) Delete(ctx context.Context, collection, id string) error {
	return t.add(DeleteOp(collection, id))
}

func (t *versionedTx) add(op WriteOp) error {
	if err := ValidateBatch([]WriteOp{op}); err != nil {
		return err
	}
	if len(t.writes) >= MaxBatchSize {
		return NewStorageError("Commit", "", ErrBatchTooLarge, false)
	}
	writes, err := encodeWrites([]WriteOp{op})
	if err != nil {
		return err
	}
	w := writes[0]
	t.writes = append(t.writes, w)

	key := DocKey(op.Collection, op.ID)
	if op.Kind == WriteOpDelete {
		t.overlay[key] = nil
		return nil
	}
	data := w.data
	if op.Merge {
		prev, ok := t.overlay[key]
		if !ok {
			// the merged result is only known at commit
			return nil
		}
		if prev != nil && prev.Data != nil {
			merged, err := MergeDocuments(prev.Data, w.data)
			if err != nil {
				return NewStorageError("Set", key, err, false)
			}
			data = merged
		}
	}
	t.overlay[key] = &record{Data: data, UpdatedAt: t.store.now()}
	return nil
}
