package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
)

func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Item == nil {
		return nil, validationError("Item is required")
	}
	switch params.ReturnValues {
	case "", types.ReturnValueNone, types.ReturnValueAllOld:
	default:
		return nil, validationError("ReturnValues can only be ALL_OLD or NONE for PutItem")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	if err := attrval.ValidateItem(params.Item); err != nil {
		return nil, validationError("%s", err)
	}

	view := t.view()
	key, err := view.def.ExtractPrimaryKey(params.Item)
	if err != nil {
		return nil, validationError("%s", err)
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

	old := t.replaceDocument(view, part, key, attrval.CloneItem(params.Item))

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = old.Item
	}
	return out, nil
}

// withCheckFailureItem attaches the current item to a failed condition
// check when the caller asked for it.
func withCheckFailureItem(err error, current map[string]types.AttributeValue, rv types.ReturnValuesOnConditionCheckFailure) error {
	ccf, ok := err.(*types.ConditionalCheckFailedException)
	if !ok || rv != types.ReturnValuesOnConditionCheckFailureAllOld || current == nil {
		return err
	}
	ccf.Item = attrval.CloneItem(current)
	return ccf
}
