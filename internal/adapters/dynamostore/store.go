package dynamostore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/juan49ers-spec/Repaart-sub012/internal/adapters/storage"
)

// DefaultTableName is used when no table is configured
const DefaultTableName = "billing_documents"

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call
const maxTransactItems = 100

//go:generate mockgen -source=store.go -destination=mocks/mock_api.go -package=mocks

// API is the subset of the DynamoDB client used by Store
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// documentItem is the table layout of a document.
//
// Table requirements:
//   - PK: collection (string)
//   - SK: id (string)
type documentItem struct {
	Collection string `dynamodbav:"collection"`
	ID         string `dynamodbav:"id"`
	Data       string `dynamodbav:"data"`
	Version    int64  `dynamodbav:"version"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// Store implements storage.DocumentStore on a single DynamoDB table.
// Every write is a conditional TransactWriteItems call keyed on the document version.
type Store struct {
	api   API
	table string
	now   func() time.Time
}

var _ storage.DocumentStore = (*Store)(nil)

// NewStore creates a Store on table
func NewStore(api API, table string) *Store {
	if table == "" {
		table = DefaultTableName
	}
	return &Store{
		api:   api,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get implements storage.DocumentStore.Get
func (s *Store) Get(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	if err := storage.ValidateKey(collection, id); err != nil {
		return nil, storage.NewStorageError("Get", storage.DocKey(collection, id), err, false)
	}

	snap, err := s.getItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, storage.NewStorageError("Get", storage.DocKey(collection, id), storage.ErrDocumentNotFound, false)
	}
	return snap, nil
}

// getItem returns nil, nil for a missing document
func (s *Store) getItem(ctx context.Context, collection, id string) (*storage.Snapshot, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("Get", storage.DocKey(collection, id), err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return fromItem("Get", out.Item)
}

// Query implements storage.DocumentStore.Query.
// The collection is read with a key condition; filters are applied to the decoded documents.
func (s *Store) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	var result []*storage.Snapshot
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{
				"#c": "collection",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: collection},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, mapError("Query", collection, err)
		}

		for _, raw := range out.Items {
			snap, err := fromItem("Query", raw)
			if err != nil {
				return nil, err
			}
			if storage.MatchesFilters(snap.Data, filters) {
				result = append(result, snap)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// Set implements storage.DocumentStore.Set
func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	options := storage.ApplySetOptions(opts...)
	return s.BatchWrite(ctx, []storage.WriteOp{{
		Kind:       storage.WriteOpSet,
		Collection: collection,
		ID:         id,
		Doc:        doc,
		Merge:      options.Merge,
	}})
}

// Delete implements storage.DocumentStore.Delete
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := storage.ValidateKey(collection, id); err != nil {
		return storage.NewStorageError("Delete", storage.DocKey(collection, id), err, false)
	}

	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(collection, id),
	})
	if err != nil {
		return mapError("Delete", storage.DocKey(collection, id), err)
	}
	return nil
}

// BatchWrite implements storage.DocumentStore.BatchWrite.
// DynamoDB accepts 100 items per transaction, so larger batches are
// committed as several transactions in order.
func (s *Store) BatchWrite(ctx context.Context, ops []storage.WriteOp) error {
	if err := storage.ValidateBatch(ops); err != nil {
		return err
	}

	for _, chunk := range storage.ChunkWrites(ops, maxTransactItems) {
		writes, err := encodeWrites(chunk)
		if err != nil {
			return err
		}
		if err := s.commit(ctx, "BatchWrite", nil, writes); err != nil {
			return err
		}
	}
	return nil
}

// RunTransaction implements storage.DocumentStore.RunTransaction
func (s *Store) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	tx := &transaction{
		store:   s,
		reads:   make(map[string]*readState),
		overlay: make(map[string]*storage.Snapshot),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(ctx, "Commit", tx.reads, tx.writes)
}

// TransactionalUpdate implements storage.DocumentStore.TransactionalUpdate
func (s *Store) TransactionalUpdate(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	return storage.TransactionalUpdateVia(ctx, s, collection, id, fn)
}

// Close implements storage.DocumentStore.Close
func (s *Store) Close() error {
	return nil
}

// readState is what a transaction saw of a document
type readState struct {
	version int64
	data    []byte
}

type pendingWrite struct {
	op   storage.WriteOp
	data []byte
}

func encodeWrites(ops []storage.WriteOp) ([]pendingWrite, error) {
	writes := make([]pendingWrite, 0, len(ops))
	for _, op := range ops {
		w := pendingWrite{op: op}
		if op.Kind == storage.WriteOpSet {
			data, err := storage.EncodeDocument(op.Doc)
			if err != nil {
				return nil, storage.NewStorageError("Encode", storage.DocKey(op.Collection, op.ID), err, false)
			}
			w.data = data
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// commit turns reads and writes into one conditional TransactWriteItems call
func (s *Store) commit(ctx context.Context, op string, reads map[string]*readState, writes []pendingWrite) error {
	type staged struct {
		collection string
		id         string
		expected   int64
		data       []byte
	}

	var order []string
	stagedByKey := make(map[string]*staged)

	for _, w := range writes {
		key := storage.DocKey(w.op.Collection, w.op.ID)
		st, ok := stagedByKey[key]
		if !ok {
			st = &staged{collection: w.op.Collection, id: w.op.ID}
			if read, seen := reads[key]; seen {
				st.expected = read.version
				st.data = read.data
			} else {
				current, err := s.getItem(ctx, w.op.Collection, w.op.ID)
				if err != nil {
					return err
				}
				if current != nil {
					st.expected = current.Version
					st.data = current.Data
				}
			}
			stagedByKey[key] = st
			order = append(order, key)
		}

		switch {
		case w.op.Kind == storage.WriteOpDelete:
			st.data = nil
		case w.op.Merge && st.data != nil:
			merged, err := storage.MergeDocuments(st.data, w.data)
			if err != nil {
				return storage.NewStorageError(op, key, err, false)
			}
			st.data = merged
		default:
			st.data = w.data
		}
	}

	if len(stagedByKey) == 0 {
		// read-only transaction
		return nil
	}

	var items []types.TransactWriteItem
	now := s.now()

	for _, key := range order {
		st := stagedByKey[key]
		condition, names, values := versionCondition(st.expected)

		if st.data == nil {
			if st.expected == 0 {
				continue
			}
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName:                 aws.String(s.table),
				Key:                       itemKey(st.collection, st.id),
				ConditionExpression:       condition,
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			}})
			continue
		}

		av, err := attributevalue.MarshalMap(documentItem{
			Collection: st.collection,
			ID:         st.id,
			Data:       string(st.data),
			Version:    st.expected + 1,
			UpdatedAt:  now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return storage.NewStorageError(op, key, storage.ErrInvalidData, false)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(s.table),
			Item:                      av,
			ConditionExpression:       condition,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}})
	}

	for key, read := range reads {
		if _, written := stagedByKey[key]; written {
			continue
		}
		collection, id := splitKey(key)
		condition, names, values := versionCondition(read.version)
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.table),
			Key:                       itemKey(collection, id),
			ConditionExpression:       condition,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}})
	}

	if len(items) == 0 {
		return nil
	}
	if len(items) > maxTransactItems {
		return storage.NewStorageError(op, "", storage.ErrBatchTooLarge, false)
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return mapError(op, "", err)
	}
	return nil
}

func versionCondition(expected int64) (*string, map[string]string, map[string]types.AttributeValue) {
	if expected == 0 {
		return aws.String("attribute_not_exists(#id)"), map[string]string{"#id": "id"}, nil
	}
	return aws.String("#v = :v"),
		map[string]string{"#v": "version"},
		map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
}

func itemKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}

func fromItem(op string, raw map[string]types.AttributeValue) (*storage.Snapshot, error) {
	var it documentItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, storage.NewStorageError(op, "", storage.ErrInvalidData, false)
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	return &storage.Snapshot{
		Collection: it.Collection,
		ID:         it.ID,
		Data:       []byte(it.Data),
		Version:    it.Version,
		UpdatedAt:  updatedAt,
	}, nil
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// mapError translates DynamoDB errors into storage errors
func mapError(op, key string, err error) error {
	var canceled *types.TransactionCanceledException
	var conditional *types.ConditionalCheckFailedException
	var conflict *types.TransactionConflictException
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	var internal *types.InternalServerError
	var missingTable *types.ResourceNotFoundException

	switch {
	case errors.As(err, &canceled), errors.As(err, &conditional), errors.As(err, &conflict):
		return storage.NewConflictError(op, key)
	case errors.As(err, &throughput), errors.As(err, &limit), errors.As(err, &internal):
		return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, true)
	case errors.As(err, &missingTable):
		return storage.NewStorageError(op, key, storage.ErrStorageUnavailable, false)
	case errors.Is(err, context.DeadlineExceeded):
		return storage.NewStorageError(op, key, storage.ErrTimeout, true)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return storage.NewStorageError(op, key, err, true)
	}
}

// transaction buffers writes until commit and remembers every version it read
type transaction struct {
	store   *Store
	reads   map[string]*readState
	writes  []pendingWrite
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

	snap, err := t.store.getItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if _, seen := t.reads[key]; !seen {
		state := &readState{}
		if snap != nil {
			state.version = snap.Version
			state.data = snap.Data
		}
		t.reads[key] = state
	}
	if snap == nil {
		return nil, storage.NewStorageError("Get", key, storage.ErrDocumentNotFound, false)
	}
	return snap, nil
}

func (t *transaction) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]*storage.Snapshot, error) {
	snaps, err := t.store.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		key := storage.DocKey(snap.Collection, snap.ID)
		if _, seen := t.reads[key]; !seen {
			t.reads[key] = &readState{version: snap.Version, data: snap.Data}
		}
	}
	return snaps, nil
}

func (t *transaction) Set(ctx context.Context, collection, id string, doc interface{}, opts ...storage.SetOption) error {
	options := storage.ApplySetOptions(opts...)
	return t.add(storage.WriteOp{Kind: storage.WriteOpSet, Collection: collection, ID: id, Doc: doc, Merge: options.Merge})
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	return t.add(storage.DeleteOp(collection, id))
}

func (t *transaction) add(op storage.WriteOp) error {
	if err := storage.ValidateBatch([]storage.WriteOp{op}); err != nil {
		return err
	}
	writes, err := encodeWrites([]storage.WriteOp{op})
	if err != nil {
		return err
	}
	t.writes = append(t.writes, writes[0])

	key := storage.DocKey(op.Collection, op.ID)
	switch {
	case op.Kind == storage.WriteOpDelete:
		t.overlay[key] = nil
	case !op.Merge:
		t.overlay[key] = &storage.Snapshot{Collection: op.Collection, ID: op.ID, Data: writes[0].data}
	default:
		prev, ok := t.overlay[key]
		if !ok || prev == nil {
			// the merged result is only known at commit
			delete(t.overlay, key)
			return nil
		}
		merged, err := storage.MergeDocuments(prev.Data, writes[0].data)
		if err != nil {
			return storage.NewStorageError("Set", key, err, false)
		}
		t.overlay[key] = &storage.Snapshot{Collection: op.Collection, ID: op.ID, Data: merged}
	}
	return nil
}
