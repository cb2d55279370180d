package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
	"github.com/dynalocal/dynalocal/table"
)

func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	switch params.ReturnValues {
	case "", types.ReturnValueNone, types.ReturnValueAllOld, types.ReturnValueAllNew,
		types.ReturnValueUpdatedOld, types.ReturnValueUpdatedNew:
	default:
		return nil, validationError("Invalid ReturnValues %q for UpdateItem", params.ReturnValues)
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

	var update *ast.UpdateExpression
	bindings := bindingsFrom(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if params.UpdateExpression != nil {
		update, err = expression.ParseUpdate(*params.UpdateExpression)
		if err != nil {
			return nil, validationError("Invalid UpdateExpression: %s", err)
		}
		if err := checkUpdatedAttributes(update, view.def, bindings); err != nil {
			return nil, err
		}
	}

	part := t.primary.GetOrCreate(key.PartitionID())
	part.Lock()
	defer part.Unlock()

	var current map[string]types.AttributeValue
	if doc, found := part.Get(key); found {
		current = doc.Item
	}
	if err := evalCondition(params.ConditionExpression, current, bindings); err != nil {
		return nil, withCheckFailureItem(err, current, params.ReturnValuesOnConditionCheckFailure)
	}

	// Updating an absent item creates it with just its key attributes.
	base := current
	if base == nil {
		base = attrval.CloneItem(params.Key)
	}
	newItem := base
	if update != nil {
		newItem, err = expression.ApplyUpdate(update, base, bindings)
		if err != nil {
			return nil, validationError("%s", err)
		}
	}
	if err := attrval.ValidateItem(newItem); err != nil {
		return nil, validationError("%s", err)
	}

	old := t.replaceDocument(view, part, key, newItem)

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllOld:
		if old != nil {
			out.Attributes = old.Item
		}
	case types.ReturnValueAllNew:
		out.Attributes = attrval.CloneItem(newItem)
	case types.ReturnValueUpdatedOld:
		if old != nil && update != nil {
			out.Attributes = touchedAttributes(update, old.Item, bindings)
		}
	case types.ReturnValueUpdatedNew:
		if update != nil {
			out.Attributes = touchedAttributes(update, newItem, bindings)
		}
	}
	return out, nil
}

// checkUpdatedAttributes rejects updates that touch key attributes.
func checkUpdatedAttributes(update *ast.UpdateExpression, def table.TableDefinition, bindings expression.Bindings) error {
	keyAttrs := make(map[string]bool)
	keyAttrs[def.KeyDefinitions.PartitionKey.Name] = true
	if def.KeyDefinitions.SortKey.Name != "" {
		keyAttrs[def.KeyDefinitions.SortKey.Name] = true
	}
	for _, path := range updatePaths(update) {
		name, err := topLevelName(path, bindings)
		if err != nil {
			return err
		}
		if keyAttrs[name] {
			return validationError("One or more parameter values were invalid: Cannot update attribute %s. This attribute is part of the key", name)
		}
	}
	return nil
}

func updatePaths(update *ast.UpdateExpression) []ast.Path {
	var paths []ast.Path
	for _, a := range update.Set {
		paths = append(paths, a.Path)
	}
	paths = append(paths, update.Remove...)
	for _, a := range update.Add {
		paths = append(paths, a.Path)
	}
	for _, a := range update.Delete {
		paths = append(paths, a.Path)
	}
	return paths
}

func topLevelName(path ast.Path, bindings expression.Bindings) (string, error) {
	attr := path.Elements[0].(ast.Attribute)
	name := attr.Name
	if len(name) > 0 && name[0] == '#' {
		resolved, ok := bindings.Names[name]
		if !ok {
			return "", validationError("An expression attribute name used in the document path is not defined; attribute name: %s", name)
		}
		return resolved, nil
	}
	return name, nil
}

// touchedAttributes picks the top-level attributes named by the update out
// of an item, for the UPDATED_OLD and UPDATED_NEW return values.
func touchedAttributes(update *ast.UpdateExpression, item map[string]types.AttributeValue, bindings expression.Bindings) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for _, path := range updatePaths(update) {
		name, err := topLevelName(path, bindings)
		if err != nil {
			continue
		}
		if v, ok := item[name]; ok {
			out[name] = attrval.CloneValue(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
