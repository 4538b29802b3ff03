package storage

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for storage operations
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay    time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" yaml:"backoff_factor"`
	JitterEnabled   bool          `json:"jitter_enabled" yaml:"jitter_enabled"`
	RetryableErrors []string      `json:"retryable_errors" yaml:"retryable_errors"`
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		RetryableErrors: []string{
			"network error",
			"timeout",
			"storage service unavailable",
			"document changed concurrently",
		},
	}
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context) error

// WithRetry executes an operation with retry logic
func WithRetry(ctx context.Context, config *RetryConfig, op RetryableOperation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		// Check context cancellation before each attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Execute the operation
		err := op(ctx)
		if err == nil {
			return nil // Success
		}

		lastErr = err

		// Check if we should retry
		if attempt >= config.MaxAttempts || !IsRetryable(err) {
			break
		}

		// Calculate delay for next attempt
		delay := config.calculateDelay(attempt)

		// Wait before retrying, but respect context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// Continue to next attempt
		}
	}

	return lastErr
}

// calculateDelay calculates the delay before the next retry attempt
func (c *RetryConfig) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: delay = initial_delay * (backoff_factor ^ (attempt - 1))
	delay := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))

	// Cap at max delay
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	// Add jitter to prevent thundering herd
	if c.JitterEnabled {
		jitter := rand.Float64() * 0.1 * delay // Up to 10% jitter
		delay += jitter
	}

	return time.Duration(delay)
}

// RetryingStore wraps a DocumentStore with retry logic for single operations.
// Transactions are passed through: their bodies must be re-run by the caller
// so that conflicting reads are repeated against fresh data.
type RetryingStore struct {
	store  DocumentStore
	config *RetryConfig
}

// NewRetryingStore creates a new RetryingStore
func NewRetryingStore(store DocumentStore, config *RetryConfig) *RetryingStore {
	if config == nil {
		config = DefaultRetryConfig()
	}

	return &RetryingStore{
		store:  store,
		config: config,
	}
}

// Unwrap returns the wrapped store
func (r *RetryingStore) Unwrap() DocumentStore {
	return r.store
}

// Get implements DocumentStore.Get with retry logic
func (r *RetryingStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var result *Snapshot
	err := WithRetry(ctx, r.config, func(ctx context.Context) error {
		snap, err := r.store.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		result = snap
		return nil
	})
	return result, err
}

// Query implements DocumentStore.Query with retry logic
func (r *RetryingStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error) {
	var result []*Snapshot
	err := WithRetry(ctx, r.config, func(ctx context.Context) error {
		snaps, err := r.store.Query(ctx, collection, filters...)
		if err != nil {
			return err
		}
		result = snaps
		return nil
	})
	return result, err
}

// Set implements DocumentStore.Set with retry logic
func (r *RetryingStore) Set(ctx context.Context, collection, id string, doc interface{}, opts ...SetOption) error {
	return WithRetry(ctx, r.config, func(ctx context.Context) error {
		return r.store.Set(ctx, collection, id, doc, opts...)
	})
}

// Delete implements DocumentStore.Delete with retry logic
func (r *RetryingStore) Delete(ctx context.Context, collection, id string) error {
	return WithRetry(ctx, r.config, func(ctx context.Context) error {
		return r.store.Delete(ctx, collection, id)
	})
}

// BatchWrite implements DocumentStore.BatchWrite with retry logic
func (r *RetryingStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	return WithRetry(ctx, r.config, func(ctx context.Context) error {
		return r.store.BatchWrite(ctx, ops)
	})
}

// RunTransaction implements DocumentStore.RunTransaction
func (r *RetryingStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return r.store.RunTransaction(ctx, fn)
}

// TransactionalUpdate implements DocumentStore.TransactionalUpdate
func (r *RetryingStore) TransactionalUpdate(ctx context.Context, collection, id string, fn UpdateFunc) error {
	return r.store.TransactionalUpdate(ctx, collection, id, fn)
}

// Close implements DocumentStore.Close
func (r *RetryingStore) Close() error {
	return r.store.Close()
}
