package ddbstore

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
	"github.com/dynalocal/dynalocal/ddbstore/partitions"
	"github.com/dynalocal/dynalocal/table"
)

func (s *Store) TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	if params == nil || len(params.TransactItems) == 0 {
		return nil, validationError("TransactItems must not be empty")
	}
	if len(params.TransactItems) > maxTransactionItems {
		return nil, validationError("Member must have length less than or equal to %d", maxTransactionItems)
	}

	type txnGet struct {
		get  *types.Get
		key  table.PrimaryKey
		part *partitions.Partition
	}
	gets := make([]txnGet, 0, len(params.TransactItems))
	entries := make([]partitionLock, 0, len(params.TransactItems))
	for _, item := range params.TransactItems {
		if item.Get == nil {
			return nil, validationError("TransactItems entries must contain a Get")
		}
		t, err := s.getTable(item.Get.TableName)
		if err != nil {
			return nil, err
		}
		def := t.definition()
		key, err := extractRequestKey(def, item.Get.Key)
		if err != nil {
			return nil, err
		}
		part := t.primary.GetOrCreate(key.PartitionID())
		gets = append(gets, txnGet{get: item.Get, key: key, part: part})
		entries = append(entries, partitionLock{
			order: def.Name + "\x00" + key.PartitionID(),
			part:  part,
		})
	}

	// All read locks are held together so the responses form one snapshot.
	unlock := lockPartitions(entries, true)
	stored := make([]map[string]types.AttributeValue, len(gets))
	for i, g := range gets {
		if doc, found := g.part.Get(g.key); found {
			stored[i] = attrval.CloneItem(doc.Item)
		}
	}
	unlock()

	out := &dynamodb.TransactGetItemsOutput{
		Responses: make([]types.ItemResponse, 0, len(gets)),
	}
	for i, g := range gets {
		item := stored[i]
		if item != nil {
			var err error
			item, err = projectItem(g.get.ProjectionExpression, item, g.get.ExpressionAttributeNames)
			if err != nil {
				return nil, err
			}
		}
		out.Responses = append(out.Responses, types.ItemResponse{Item: item})
	}
	return out, nil
}

// txnOp is one prepared transaction operation. Conditions are evaluated and
// update results computed before anything is written, so a transaction
// either applies completely or not at all.
type txnOp struct {
	t        *storeTable
	view     tableView
	key      table.PrimaryKey
	part     *partitions.Partition
	bindings expression.Bindings

	condition *string
	rvOnFail  types.ReturnValuesOnConditionCheckFailure

	checkOnly bool
	deleteOp  bool
	putItem   map[string]types.AttributeValue
	update    *ast.UpdateExpression

	newItem map[string]types.AttributeValue
}

func (s *Store) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if params == nil || len(params.TransactItems) == 0 {
		return nil, validationError("TransactItems must not be empty")
	}
	if len(params.TransactItems) > maxTransactionItems {
		return nil, validationError("Member must have length less than or equal to %d", maxTransactionItems)
	}

	ops, err := s.prepareTransaction(params.TransactItems)
	if err != nil {
		return nil, err
	}

	unlock := lockTransactionPartitions(ops)
	defer unlock()

	// First pass: evaluate every condition and precompute update results
	// against the current state.
	reasons := make([]types.CancellationReason, len(ops))
	canceled := false
	for i := range ops {
		op := &ops[i]
		reasons[i] = types.CancellationReason{Code: aws.String("None")}

		var current map[string]types.AttributeValue
		if doc, found := op.part.Get(op.key); found {
			current = doc.Item
		}
		if err := evalCondition(op.condition, current, op.bindings); err != nil {
			if _, ok := err.(*types.ConditionalCheckFailedException); !ok {
				return nil, err
			}
			canceled = true
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
			if op.rvOnFail == types.ReturnValuesOnConditionCheckFailureAllOld && current != nil {
				reasons[i].Item = attrval.CloneItem(current)
			}
			continue
		}

		if op.update != nil {
			base := current
			if base == nil {
				base = attrval.CloneItem(op.key.DDB())
			}
			newItem, err := expression.ApplyUpdate(op.update, base, op.bindings)
			if err != nil {
				return nil, validationError("%s", err)
			}
			if err := attrval.ValidateItem(newItem); err != nil {
				return nil, validationError("%s", err)
			}
			op.newItem = newItem
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// Second pass: apply. Nothing here can fail.
	for i := range ops {
		op := &ops[i]
		switch {
		case op.checkOnly:
		case op.deleteOp:
			op.t.replaceDocument(op.view, op.part, op.key, nil)
		case op.putItem != nil:
			op.t.replaceDocument(op.view, op.part, op.key, attrval.CloneItem(op.putItem))
		case op.update != nil:
			op.t.replaceDocument(op.view, op.part, op.key, op.newItem)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (s *Store) prepareTransaction(items []types.TransactWriteItem) ([]txnOp, error) {
	ops := make([]txnOp, 0, len(items))
	seen := make(map[tableKeyID]bool)

	addOp := func(tableName *string, op txnOp) error {
		t, err := s.getTable(tableName)
		if err != nil {
			return err
		}
		op.t = t
		op.view = t.view()
		id := tableKeyID{table: *tableName, key: op.key.Encode()}
		if seen[id] {
			return validationError("Transaction request cannot include multiple operations on one item")
		}
		seen[id] = true
		ops = append(ops, op)
		return nil
	}

	for _, item := range items {
		set := 0
		for _, present := range []bool{item.Put != nil, item.Update != nil, item.Delete != nil, item.ConditionCheck != nil} {
			if present {
				set++
			}
		}
		if set != 1 {
			return nil, validationError("TransactItems entries must contain exactly one operation")
		}

		switch {
		case item.Put != nil:
			put := item.Put
			t, err := s.getTable(put.TableName)
			if err != nil {
				return nil, err
			}
			if err := attrval.ValidateItem(put.Item); err != nil {
				return nil, validationError("%s", err)
			}
			key, err := t.definition().ExtractPrimaryKey(put.Item)
			if err != nil {
				return nil, validationError("%s", err)
			}
			if err := addOp(put.TableName, txnOp{
				key:       key,
				putItem:   put.Item,
				condition: put.ConditionExpression,
				rvOnFail:  put.ReturnValuesOnConditionCheckFailure,
				bindings:  bindingsFrom(put.ExpressionAttributeNames, put.ExpressionAttributeValues),
			}); err != nil {
				return nil, err
			}

		case item.Update != nil:
			upd := item.Update
			t, err := s.getTable(upd.TableName)
			if err != nil {
				return nil, err
			}
			view := t.view()
			key, err := extractRequestKey(view.def, upd.Key)
			if err != nil {
				return nil, err
			}
			if upd.UpdateExpression == nil {
				return nil, validationError("UpdateExpression is required for transactional updates")
			}
			bindings := bindingsFrom(upd.ExpressionAttributeNames, upd.ExpressionAttributeValues)
			update, err := expression.ParseUpdate(*upd.UpdateExpression)
			if err != nil {
				return nil, validationError("Invalid UpdateExpression: %s", err)
			}
			if err := checkUpdatedAttributes(update, view.def, bindings); err != nil {
				return nil, err
			}
			if err := addOp(upd.TableName, txnOp{
				key:       key,
				update:    update,
				condition: upd.ConditionExpression,
				rvOnFail:  upd.ReturnValuesOnConditionCheckFailure,
				bindings:  bindings,
			}); err != nil {
				return nil, err
			}

		case item.Delete != nil:
			del := item.Delete
			t, err := s.getTable(del.TableName)
			if err != nil {
				return nil, err
			}
			key, err := extractRequestKey(t.definition(), del.Key)
			if err != nil {
				return nil, err
			}
			if err := addOp(del.TableName, txnOp{
				key:       key,
				deleteOp:  true,
				condition: del.ConditionExpression,
				rvOnFail:  del.ReturnValuesOnConditionCheckFailure,
				bindings:  bindingsFrom(del.ExpressionAttributeNames, del.ExpressionAttributeValues),
			}); err != nil {
				return nil, err
			}

		case item.ConditionCheck != nil:
			check := item.ConditionCheck
			t, err := s.getTable(check.TableName)
			if err != nil {
				return nil, err
			}
			key, err := extractRequestKey(t.definition(), check.Key)
			if err != nil {
				return nil, err
			}
			if check.ConditionExpression == nil {
				return nil, validationError("ConditionExpression is required for condition checks")
			}
			if err := addOp(check.TableName, txnOp{
				key:       key,
				checkOnly: true,
				condition: check.ConditionExpression,
				rvOnFail:  check.ReturnValuesOnConditionCheckFailure,
				bindings:  bindingsFrom(check.ExpressionAttributeNames, check.ExpressionAttributeValues),
			}); err != nil {
				return nil, err
			}
		}
	}
	return ops, nil
}

// lockTransactionPartitions locks every partition the transaction touches
// in a single global order, so concurrent transactions cannot deadlock.
func lockTransactionPartitions(ops []txnOp) func() {
	entries := make([]partitionLock, 0, len(ops))
	for i := range ops {
		op := &ops[i]
		op.part = op.t.primary.GetOrCreate(op.key.PartitionID())
		entries = append(entries, partitionLock{
			order: op.view.def.Name + "\x00" + op.key.PartitionID(),
			part:  op.part,
		})
	}
	return lockPartitions(entries, false)
}

// partitionLock pairs a partition with its position in the global lock
// order: the table name and the encoded partition key.
type partitionLock struct {
	order string
	part  *partitions.Partition
}

// lockPartitions takes the given locks in ascending global order and returns
// the matching reverse unlock. Duplicate partitions are locked once.
func lockPartitions(entries []partitionLock, read bool) func() {
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	seen := make(map[*partitions.Partition]bool)
	var locked []*partitions.Partition
	for _, e := range entries {
		if seen[e.part] {
			continue
		}
		seen[e.part] = true
		if read {
			e.part.RLock()
		} else {
			e.part.Lock()
		}
		locked = append(locked, e.part)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			if read {
				locked[i].RUnlock()
			} else {
				locked[i].Unlock()
			}
		}
	}
}
