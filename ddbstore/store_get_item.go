package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/table"
)

func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	def := t.definition()
	key, err := extractRequestKey(def, params.Key)
	if err != nil {
		return nil, err
	}

	part, ok := t.primary.Get(key.PartitionID())
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	part.RLock()
	doc, found := part.Get(key)
	var item map[string]types.AttributeValue
	if found {
		item = attrval.CloneItem(doc.Item)
	}
	part.RUnlock()
	if !found {
		return &dynamodb.GetItemOutput{}, nil
	}

	item, err = projectItem(params.ProjectionExpression, item, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// extractRequestKey validates a request key: exactly the table's primary
// key attributes, no more and no less. Index key attributes are not part
// of a request key.
func extractRequestKey(def table.TableDefinition, rawKey map[string]types.AttributeValue) (table.PrimaryKey, error) {
	if rawKey == nil {
		return table.PrimaryKey{}, validationError("Key is required")
	}
	wanted := 1
	if def.KeyDefinitions.SortKey.Name != "" {
		wanted = 2
	}
	if len(rawKey) != wanted {
		return table.PrimaryKey{}, validationError("The provided key element does not match the schema")
	}
	key, err := def.ExtractPrimaryKey(rawKey)
	if err != nil {
		return table.PrimaryKey{}, validationError("The provided key element does not match the schema")
	}
	return key, nil
}

// projectItem applies an optional projection expression to a single item.
func projectItem(expr *string, item map[string]types.AttributeValue, names map[string]string) (map[string]types.AttributeValue, error) {
	if expr == nil || item == nil {
		return item, nil
	}
	paths, err := expression.ParseProjection(*expr)
	if err != nil {
		return nil, validationError("Invalid ProjectionExpression: %s", err)
	}
	projected, err := expression.ApplyProjection(paths, item, expression.Bindings{Names: names})
	if err != nil {
		return nil, validationError("Invalid ProjectionExpression: %s", err)
	}
	return projected, nil
}
