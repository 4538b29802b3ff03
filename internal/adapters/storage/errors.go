package storage

import (
	"errors"
	"fmt"
)

// Common storage error types
var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrInvalidKey         = errors.New("invalid document key")
	ErrInvalidData        = errors.New("invalid document data")
	ErrConflict           = errors.New("document changed concurrently")
	ErrBatchTooLarge      = errors.New("batch exceeds maximum size")
	ErrStorageUnavailable = errors.New("storage service unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNetworkError       = errors.New("network error")
	ErrTimeout            = errors.New("operation timeout")
	ErrClosed             = errors.New("store is closed")
)

// StorageError represents a storage operation error with additional context
type StorageError struct {
	Op        string // Operation that failed (e.g., "Get", "Commit")
	Key       string // collection/id involved in the operation
	Err       error  // Underlying error
	Retryable bool   // Whether the operation can be retried
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s operation failed for key '%s': %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s operation failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error indicates a retryable condition
func (e *StorageError) IsRetryable() bool {
	return e.Retryable
}

// NewStorageError creates a new StorageError
func NewStorageError(op, key string, err error, retryable bool) *StorageError {
	return &StorageError{
		Op:        op,
		Key:       key,
		Err:       err,
		Retryable: retryable,
	}
}

// NewConflictError reports a failed optimistic commit
func NewConflictError(op, key string) *StorageError {
	return NewStorageError(op, key, ErrConflict, true)
}

// DocKey joins a collection and document ID into the key used in errors
func DocKey(collection, id string) string {
	return collection + "/" + id
}

// IsNotFound returns true if the error indicates a document was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsConflict returns true if the error is an optimistic concurrency failure
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable returns true if the error indicates a retryable condition
func IsRetryable(err error) bool {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.IsRetryable()
	}

	// Check for common retryable errors
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrNetworkError) ||
		errors.Is(err, ErrTimeout)
}
