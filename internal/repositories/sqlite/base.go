package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

const documentsTable = "documents"

// querier is the part of *sql.DB and *sql.Tx the store needs
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// baseStore provides query execution and logging shared by the document store and its transactions
type baseStore struct {
	db                 *sql.DB
	logger             *logrus.Logger
	slowQueryThreshold time.Duration
}

func newBaseStore(db *sql.DB, logger *logrus.Logger) baseStore {
	if logger == nil {
		logger = logrus.New()
	}
	return baseStore{
		db:                 db,
		logger:             logger,
		slowQueryThreshold: 2 * time.Second,
	}
}

// logQuery logs a query with its execution time
func (b *baseStore) logQuery(operation string, query string, args []interface{}, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": operation,
		"table":     documentsTable,
		"query":     query,
		"args":      args,
		"duration":  duration,
	}

	switch {
	case err != nil:
		fields["error"] = err.Error()
		b.logger.WithFields(fields).Error("Query failed")
	case b.slowQueryThreshold > 0 && duration > b.slowQueryThreshold:
		b.logger.WithFields(fields).Warn("Slow query")
	default:
		b.logger.WithFields(fields).Debug("Query executed")
	}
}

// executeQuery executes a query and logs the result
func (b *baseStore) executeQuery(ctx context.Context, q querier, operation, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	b.logQuery(operation, query, args, time.Since(start), err)

	if err != nil {
		return nil, mapError(operation, "", err)
	}
	return rows, nil
}

// executeQueryRow executes a single-row query and logs the result
func (b *baseStore) executeQueryRow(ctx context.Context, q querier, operation, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := q.QueryRowContext(ctx, query, args...)
	b.logQuery(operation, query, args, time.Since(start), nil)
	return row
}

// executeExec executes a non-query statement and logs the result
func (b *baseStore) executeExec(ctx context.Context, q querier, operation, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := q.ExecContext(ctx, query, args...)
	b.logQuery(operation, query, args, time.Since(start), err)

	if err != nil {
		return nil, mapError(operation, "", err)
	}
	return result, nil
}

// validateKey validates a collection and id pair
func validateKey(op, collection, id string) error {
	if err := storage.ValidateKey(collection, id); err != nil {
		return storage.NewStorageError(op, storage.DocKey(collection, id), err, false)
	}
	return nil
}

// mapError translates database/sql and sqlite3 errors into storage errors
func mapError(op, key string, err error) error {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		if storageErr.Key == "" && key != "" {
			return storage.NewStorageError(op, key, storageErr.Err, storageErr.Retryable)
		}
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return storage.NewStorageError(op, key, storage.ErrDocumentNotFound, false)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.NewStorageError(op, key, storage.ErrTimeout, true)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, true)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return storage.NewConflictError(op, key)
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return storage.NewConflictError(op, key)
			}
			return storage.NewStorageError(op, key, storage.ErrInvalidData, false)
		case sqlite3.ErrFull, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, false)
		case sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrAuth:
			return storage.NewStorageError(op, key, storage.ErrPermissionDenied, false)
		}
	}

	return storage.NewStorageError(op, key, err, false)
}
