package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	switch params.ReturnValues {
	case "", types.ReturnValueNone, types.ReturnValueAllOld:
	default:
		return nil, validationError("ReturnValues can only be ALL_OLD or NONE for DeleteItem")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	view := t.view()
	key, err := extractRequestKey(view.def, params.Key)
	if err != nil {
		return nil, err
	}

	part := t.primary.GetOrCreate(key.PartitionID())
	part.Lock()
	defer part.Unlock()

	var current map[string]types.AttributeValue
	if doc, found := part.Get(key); found {
		current = doc.Item
	}
	bindings := bindingsFrom(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err := evalCondition(params.ConditionExpression, current, bindings); err != nil {
		return nil, withCheckFailureItem(err, current, params.ReturnValuesOnConditionCheckFailure)
	}

	old := t.replaceDocument(view, part, key, nil)

	out := &dynamodb.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = old.Item
	}
	return out, nil
}
