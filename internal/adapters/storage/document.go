package storage

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
)

// EncodeDocument turns a document value into its stored JSON form.
// Raw JSON (json.RawMessage or []byte) is stored as is.
func EncodeDocument(doc interface{}) ([]byte, error) {
	switch v := doc.(type) {
	case nil:
		return nil, ErrInvalidData
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, ErrInvalidData
		}
		return append([]byte(nil), v...), nil
	case []byte:
		if !json.Valid(v) {
			return nil, ErrInvalidData
		}
		return append([]byte(nil), v...), nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, ErrInvalidData
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrInvalidData
	}
	return data, nil
}

// MergeDocuments deep-merges patch into base. Nested objects are merged
// key by key, every other value in patch replaces the one in base.
func MergeDocuments(base, patch []byte) ([]byte, error) {
	if len(base) == 0 {
		return patch, nil
	}

	var baseMap, patchMap map[string]interface{}
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, ErrInvalidData
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, ErrInvalidData
	}

	merged, err := json.Marshal(mergeMaps(baseMap, patchMap))
	if err != nil {
		return nil, ErrInvalidData
	}
	return merged, nil
}

func mergeMaps(base, patch map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{}, len(patch))
	}
	for key, value := range patch {
		patchChild, patchIsMap := value.(map[string]interface{})
		baseChild, baseIsMap := base[key].(map[string]interface{})
		if patchIsMap && baseIsMap {
			base[key] = mergeMaps(baseChild, patchChild)
			continue
		}
		base[key] = value
	}
	return base
}

// MatchesFilters reports whether a stored document satisfies every equality filter
func MatchesFilters(data []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}

	for _, filter := range filters {
		stored, ok := fields[filter.Field]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(stored, normalizeValue(filter.Value)) {
			return false
		}
	}
	return true
}

// normalizeValue converts a Go value into the shape json.Unmarshal produces
func normalizeValue(value interface{}) interface{} {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return value
	}
	return normalized
}

// ValidateKey checks a collection and ID pair
func ValidateKey(collection, id string) error {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(id) == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(collection, "/\\") || strings.ContainsAny(id, "/\\") {
		return ErrInvalidKey
	}
	if strings.Contains(id, "..") {
		return ErrInvalidKey
	}
	return nil
}

// ValidateBatch checks the batch size limit and every key
func ValidateBatch(ops []WriteOp) error {
	if len(ops) > MaxBatchSize {
		return NewStorageError("BatchWrite", "", ErrBatchTooLarge, false)
	}
	for _, op := range ops {
		if err := ValidateKey(op.Collection, op.ID); err != nil {
			return NewStorageError("BatchWrite", DocKey(op.Collection, op.ID), err, false)
		}
		if op.Kind != WriteOpSet && op.Kind != WriteOpDelete {
			return NewStorageError("BatchWrite", DocKey(op.Collection, op.ID), ErrInvalidData, false)
		}
	}
	return nil
}

// ChunkWrites splits ops into batches of at most size writes
func ChunkWrites(ops []WriteOp, size int) [][]WriteOp {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var chunks [][]WriteOp
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[start:end])
	}
	return chunks
}

// BatchWriteAll commits ops in consecutive batches of MaxBatchSize.
// Each batch is keyed by document ID, so a failed run can be repeated safely.
func BatchWriteAll(ctx context.Context, store DocumentStore, ops []WriteOp) (int, error) {
	written := 0
	for _, chunk := range ChunkWrites(ops, MaxBatchSize) {
		if err := store.BatchWrite(ctx, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

// Transactor is the part of DocumentStore needed to build TransactionalUpdate
type Transactor interface {
	RunTransaction(ctx context.Context, fn TxFunc) error
}

// TransactionalUpdateVia implements TransactionalUpdate on top of RunTransaction
func TransactionalUpdateVia(ctx context.Context, store Transactor, collection, id string, fn UpdateFunc) error {
	return store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Get(ctx, collection, id)
		if err != nil {
			if !IsNotFound(err) {
				return err
			}
			current = nil
		}

		doc, err := fn(current)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		return tx.Set(ctx, collection, id, doc)
	})
}
