package storage

import (
	"context"
	"encoding/json"
	"time"
)

// MaxBatchSize is the largest number of writes committed in one batch
const MaxBatchSize = 500

// Snapshot is a document read from the store
type Snapshot struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`    // JSON encoded document
	Version    int64     `json:"version"` // Incremented on every write
	UpdatedAt  time.Time `json:"updated_at"`
}

// DataTo decodes the document into v
func (s *Snapshot) DataTo(v interface{}) error {
	if s == nil || len(s.Data) == 0 {
		return NewStorageError("DataTo", "", ErrDocumentNotFound, false)
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return NewStorageError("DataTo", s.Collection+"/"+s.ID, ErrInvalidData, false)
	}
	return nil
}

// SetOptions controls how Set writes a document
type SetOptions struct {
	Merge bool
}

// SetOption configures a Set call
type SetOption func(*SetOptions)

// Merge deep-merges the written fields into the existing document instead of replacing it
func Merge() SetOption {
	return func(o *SetOptions) {
		o.Merge = true
	}
}

// ApplySetOptions folds options into a SetOptions value
func ApplySetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Filter is an equality condition on a top-level document field
type Filter struct {
	Field string
	Value interface{}
}

// Where builds an equality filter
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Reader reads documents
type Reader interface {
	// Get returns the document or an error matching ErrDocumentNotFound
	Get(ctx context.Context, collection, id string) (*Snapshot, error)

	// Query returns every document of a collection matching all filters, ordered by ID
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error)
}

// Writer writes documents
type Writer interface {
	// Set creates or replaces a document, or merges into it with Merge()
	Set(ctx context.Context, collection, id string, doc interface{}, opts ...SetOption) error

	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, collection, id string) error
}

// Tx is the view of the store inside a transaction
type Tx interface {
	Reader
	Writer
}

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// UpdateFunc receives the current document (nil if missing) and returns the new one.
// Returning a nil document leaves the store untouched.
type UpdateFunc func(current *Snapshot) (interface{}, error)

// WriteOpKind is the type of a batched write
type WriteOpKind string

const (
	WriteOpSet    WriteOpKind = "set"
	WriteOpDelete WriteOpKind = "delete"
)

// WriteOp is one write in a batch
type WriteOp struct {
	Kind       WriteOpKind
	Collection string
	ID         string
	Doc        interface{}
	Merge      bool
}

// SetOp builds a batched set
func SetOp(collection, id string, doc interface{}) WriteOp {
	return WriteOp{Kind: WriteOpSet, Collection: collection, ID: id, Doc: doc}
}

// DeleteOp builds a batched delete
func DeleteOp(collection, id string) WriteOp {
	return WriteOp{Kind: WriteOpDelete, Collection: collection, ID: id}
}

// DocumentStore is the persistence port used by the billing core.
// Implementations exist for memory, local files, SQLite, PostgreSQL, Firestore and DynamoDB.
type DocumentStore interface {
	Reader
	Writer

	// RunTransaction runs fn atomically. Reads are version-checked at commit;
	// a concurrent change fails the commit with a retryable ErrConflict.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// BatchWrite commits up to MaxBatchSize writes atomically
	BatchWrite(ctx context.Context, ops []WriteOp) error

	// TransactionalUpdate reads, transforms and writes one document atomically
	TransactionalUpdate(ctx context.Context, collection, id string, fn UpdateFunc) error

	// Close releases resources held by the store
	Close() error
}

// StoreConfig represents configuration for document store backends
type StoreConfig struct {
	Type     string            `json:"type" yaml:"type"`           // "memory", "local", "sqlite", "postgres", "firestore", "dynamodb"
	BasePath string            `json:"base_path" yaml:"base_path"` // For local storage
	Options  map[string]string `json:"options" yaml:"options"`     // Backend-specific options
}
