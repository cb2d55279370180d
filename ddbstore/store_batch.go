package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/table"
)

const (
	maxBatchGetKeys     = 100
	maxBatchWriteItems  = 25
	maxTransactionItems = 100
)

func (s *Store) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("RequestItems must not be empty")
	}
	total := 0
	for _, req := range params.RequestItems {
		total += len(req.Keys)
	}
	if total == 0 {
		return nil, validationError("RequestItems must contain at least one key")
	}
	if total > maxBatchGetKeys {
		return nil, validationError("Too many items requested for the BatchGetItem call")
	}

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for tableName, req := range params.RequestItems {
		t, err := s.getTable(&tableName)
		if err != nil {
			return nil, err
		}
		def := t.definition()
		for _, rawKey := range req.Keys {
			key, err := extractRequestKey(def, rawKey)
			if err != nil {
				return nil, err
			}
			part, ok := t.primary.Get(key.PartitionID())
			if !ok {
				continue
			}
			part.RLock()
			doc, found := part.Get(key)
			var item map[string]types.AttributeValue
			if found {
				item = attrval.CloneItem(doc.Item)
			}
			part.RUnlock()
			if !found {
				continue
			}
			item, err = projectItem(req.ProjectionExpression, item, req.ExpressionAttributeNames)
			if err != nil {
				return nil, err
			}
			out.Responses[tableName] = append(out.Responses[tableName], item)
		}
	}
	return out, nil
}

func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("RequestItems must not be empty")
	}
	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total == 0 {
		return nil, validationError("RequestItems must contain at least one request")
	}
	if total > maxBatchWriteItems {
		return nil, validationError("Too many items requested for the BatchWriteItem call")
	}

	// Validate every request before writing anything, duplicates included.
	type batchWrite struct {
		t    *storeTable
		view tableView
		id   tableKeyID
		pk   table.PrimaryKey
		item map[string]types.AttributeValue // nil means delete
	}
	var writes []batchWrite
	seen := make(map[tableKeyID]bool)
	for tableName, reqs := range params.RequestItems {
		t, err := s.getTable(&tableName)
		if err != nil {
			return nil, err
		}
		view := t.view()
		for _, req := range reqs {
			var w batchWrite
			w.t = t
			w.view = view
			switch {
			case req.PutRequest != nil && req.DeleteRequest != nil:
				return nil, validationError("Write request must contain exactly one of PutRequest or DeleteRequest")
			case req.PutRequest != nil:
				if err := attrval.ValidateItem(req.PutRequest.Item); err != nil {
					return nil, validationError("%s", err)
				}
				key, err := view.def.ExtractPrimaryKey(req.PutRequest.Item)
				if err != nil {
					return nil, validationError("%s", err)
				}
				w.pk = key
				w.id = tableKeyID{table: tableName, key: key.Encode()}
				w.item = req.PutRequest.Item
				writes = append(writes, w)
			case req.DeleteRequest != nil:
				key, err := extractRequestKey(view.def, req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				w.pk = key
				w.id = tableKeyID{table: tableName, key: key.Encode()}
				writes = append(writes, w)
			default:
				return nil, validationError("Write request must contain exactly one of PutRequest or DeleteRequest")
			}
			if seen[w.id] {
				return nil, validationError("Provided list of item keys contains duplicates")
			}
			seen[w.id] = true
		}
	}

	for _, w := range writes {
		part := w.t.primary.GetOrCreate(w.pk.PartitionID())
		part.Lock()
		var item map[string]types.AttributeValue
		if w.item != nil {
			item = attrval.CloneItem(w.item)
		}
		w.t.replaceDocument(w.view, part, w.pk, item)
		part.Unlock()
	}

	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: make(map[string][]types.WriteRequest),
	}, nil
}

// tableKeyID identifies one item across tables, for duplicate detection and
// the transaction lock order.
type tableKeyID struct {
	table string
	key   string
}
