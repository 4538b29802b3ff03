package repositories

import (
	"errors"
	"fmt"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// Common repository errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidID is returned when an invalid ID is provided
	ErrInvalidID = errors.New("invalid ID")

	// ErrValidation is returned when entity validation fails
	ErrValidation = errors.New("validation error")

	// ErrTransaction is returned when a transaction operation fails
	ErrTransaction = errors.New("transaction error")

	// ErrConnection is returned when the store cannot be reached
	ErrConnection = errors.New("storage connection error")

	// ErrConcurrency is returned when a concurrency conflict occurs
	ErrConcurrency = errors.New("concurrency conflict")

	// ErrTimeout is returned when an operation times out
	ErrTimeout = errors.New("operation timeout")

	// ErrUnsupported is returned when an unsupported backend is requested
	ErrUnsupported = errors.New("unsupported operation")
)

// RepositoryError represents a repository-specific error with additional context.
// Err keeps the original storage error so retry decisions still see it.
type RepositoryError struct {
	Op      string // Operation that failed
	Entity  string // Entity type
	ID      string // Entity ID (if applicable)
	Kind    error  // One of the Err* values above
	Err     error  // Underlying error
	Message string // Human-readable message
}

// Error implements the error interface
func (e *RepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.ID != "" {
		return fmt.Sprintf("%s %s operation failed for ID %s: %v", e.Entity, e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s operation failed: %v", e.Entity, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *RepositoryError) Is(target error) bool {
	if e.Kind != nil && target == e.Kind {
		return true
	}
	return errors.Is(e.Err, target)
}

// NewRepositoryError creates a new repository error
func NewRepositoryError(op, entity, id string, err error) *RepositoryError {
	return &RepositoryError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Kind:   kindOf(err),
		Err:    err,
	}
}

// NotFoundError creates a "not found" repository error
func NotFoundError(entity, id string) *RepositoryError {
	return &RepositoryError{
		Op:      "get",
		Entity:  entity,
		ID:      id,
		Kind:    ErrNotFound,
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s with ID %s not found", entity, id),
	}
}

// ValidationError creates a "validation" repository error
func ValidationError(entity, id string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      "validate",
		Entity:  entity,
		ID:      id,
		Kind:    ErrValidation,
		Err:     err,
		Message: fmt.Sprintf("validation failed for %s: %v", entity, err),
	}
}

// TransactionError creates a "transaction" repository error
func TransactionError(op string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Entity:  "transaction",
		Kind:    ErrTransaction,
		Err:     err,
		Message: fmt.Sprintf("transaction %s failed: %v", op, err),
	}
}

// ConnectionError creates a "connection" repository error
func ConnectionError(err error) *RepositoryError {
	return &RepositoryError{
		Op:      "connect",
		Entity:  "store",
		Kind:    ErrConnection,
		Err:     err,
		Message: fmt.Sprintf("storage connection failed: %v", err),
	}
}

// wrapStorageError turns a store failure into a RepositoryError.
// A missing document becomes a plain NotFoundError.
func wrapStorageError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if storage.IsNotFound(err) {
		return NotFoundError(entity, id)
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		// Errors raised by callers inside a transaction pass through untouched
		return err
	}
	return NewRepositoryError(op, entity, id, err)
}

// kindOf classifies a storage error
func kindOf(err error) error {
	switch {
	case errors.Is(err, storage.ErrDocumentNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrInvalidKey):
		return ErrInvalidID
	case errors.Is(err, storage.ErrInvalidData), errors.Is(err, storage.ErrBatchTooLarge):
		return ErrValidation
	case errors.Is(err, storage.ErrConflict):
		return ErrConcurrency
	case errors.Is(err, storage.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, storage.ErrStorageUnavailable), errors.Is(err, storage.ErrNetworkError), errors.Is(err, storage.ErrClosed):
		return ErrConnection
	}
	return nil
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || storage.IsNotFound(err)
}

// IsConcurrency checks if an error is an optimistic concurrency conflict
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrConcurrency) || storage.IsConflict(err)
}

// IsValidation checks if an error is a "validation" error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransaction checks if an error is a "transaction" error
func IsTransaction(err error) bool {
	return errors.Is(err, ErrTransaction)
}

// IsConnection checks if an error is a "connection" error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}
