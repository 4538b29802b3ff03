package repositories

import (
	"context"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// documentRepository provides typed access to one collection.
// rw is either the store itself or a transaction view of it.
type documentRepository[T any] struct {
	rw         storage.Tx
	collection string
	entity     string
}

func newDocumentRepository[T any](rw storage.Tx, collection, entity string) documentRepository[T] {
	return documentRepository[T]{rw: rw, collection: collection, entity: entity}
}

func (r documentRepository[T]) withTx(tx storage.Tx) documentRepository[T] {
	r.rw = tx
	return r
}

// get loads and decodes a document
func (r documentRepository[T]) get(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, ValidationError(r.entity, id, ErrInvalidID)
	}

	snap, err := r.rw.Get(ctx, r.collection, id)
	if err != nil {
		return nil, wrapStorageError("get", r.entity, id, err)
	}

	entity := new(T)
	if err := snap.DataTo(entity); err != nil {
		return nil, NewRepositoryError("decode", r.entity, id, err)
	}
	return entity, nil
}

// set stores a document under id
func (r documentRepository[T]) set(ctx context.Context, id string, entity *T, opts ...storage.SetOption) error {
	if id == "" {
		return ValidationError(r.entity, id, ErrInvalidID)
	}
	if err := r.rw.Set(ctx, r.collection, id, entity, opts...); err != nil {
		return wrapStorageError("save", r.entity, id, err)
	}
	return nil
}

// query loads every document matching the filters, in ID order
func (r documentRepository[T]) query(ctx context.Context, filters ...storage.Filter) ([]*T, error) {
	snaps, err := r.rw.Query(ctx, r.collection, filters...)
	if err != nil {
		return nil, wrapStorageError("list", r.entity, "", err)
	}

	result := make([]*T, 0, len(snaps))
	for _, snap := range snaps {
		entity := new(T)
		if err := snap.DataTo(entity); err != nil {
			return nil, NewRepositoryError("decode", r.entity, snap.ID, err)
		}
		result = append(result, entity)
	}
	return result, nil
}
