package storage

// MemoryStore is an in-memory DocumentStore. It backs tests and the
// "memory" store type, and behaves like the persistent backends with
// respect to versions, transactions and batch limits.
type MemoryStore struct {
	*versionedStore
	backend *memoryBackend
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore() *MemoryStore {
	backend := &memoryBackend{collections: make(map[string]map[string]*record)}
	return &MemoryStore{
		versionedStore: newVersionedStore(backend),
		backend:        backend,
	}
}

// Additional methods for testing

// Reset clears all stored documents
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend.collections = make(map[string]map[string]*record)
}

// Count returns the number of documents in a collection
func (m *MemoryStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backend.collections[collection])
}

// HasDocument checks if a document exists (without error handling)
func (m *MemoryStore) HasDocument(collection, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.backend.collections[collection][id]
	return ok
}

type memoryBackend struct {
	collections map[string]map[string]*record
}

func (b *memoryBackend) load(collection, id string) (*record, error) {
	rec, ok := b.collections[collection][id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (b *memoryBackend) save(collection, id string, rec *record) error {
	docs, ok := b.collections[collection]
	if !ok {
		docs = make(map[string]*record)
		b.collections[collection] = docs
	}
	copied := *rec
	copied.Data = append([]byte(nil), rec.Data...)
	docs[id] = &copied
	return nil
}

func (b *memoryBackend) remove(collection, id string) error {
	delete(b.collections[collection], id)
	return nil
}

func (b *memoryBackend) list(collection string) ([]string, error) {
	docs := b.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *memoryBackend) close() error {
	b.collections = make(map[string]map[string]*record)
	return nil
}
