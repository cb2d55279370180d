package ddbhttp

import (
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table lifecycle.

type createTableRequest struct {
	TableName              *string                   `json:"TableName"`
	AttributeDefinitions   []wireAttributeDefinition `json:"AttributeDefinitions"`
	KeySchema              []wireKeySchemaElement    `json:"KeySchema"`
	GlobalSecondaryIndexes []wireIndexSchema         `json:"GlobalSecondaryIndexes"`
	LocalSecondaryIndexes  []wireIndexSchema         `json:"LocalSecondaryIndexes"`
	BillingMode            string                    `json:"BillingMode"`
}

func (s *Server) createTable(r *http.Request) (any, error) {
	req, err := decode[createTableRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.CreateTableInput{
		TableName:            req.TableName,
		AttributeDefinitions: attributeDefinitionsIn(req.AttributeDefinitions),
		KeySchema:            keySchemaIn(req.KeySchema),
		BillingMode:          types.BillingMode(req.BillingMode),
	}
	for _, gsi := range req.GlobalSecondaryIndexes {
		name := gsi.IndexName
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  &name,
			KeySchema:  keySchemaIn(gsi.KeySchema),
			Projection: projectionIn(gsi.Projection),
		})
	}
	for _, lsi := range req.LocalSecondaryIndexes {
		name := lsi.IndexName
		input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
			IndexName:  &name,
			KeySchema:  keySchemaIn(lsi.KeySchema),
			Projection: projectionIn(lsi.Projection),
		})
	}
	out, err := s.store.CreateTable(r.Context(), input)
	if err != nil {
		return nil, err
	}
	return struct {
		TableDescription *wireTableDescription `json:"TableDescription"`
	}{tableDescriptionOut(out.TableDescription)}, nil
}

type tableNameRequest struct {
	TableName *string `json:"TableName"`
}

func (s *Server) deleteTable(r *http.Request) (any, error) {
	req, err := decode[tableNameRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.DeleteTable(r.Context(), &dynamodb.DeleteTableInput{TableName: req.TableName})
	if err != nil {
		return nil, err
	}
	return struct {
		TableDescription *wireTableDescription `json:"TableDescription"`
	}{tableDescriptionOut(out.TableDescription)}, nil
}

func (s *Server) describeTable(r *http.Request) (any, error) {
	req, err := decode[tableNameRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.DescribeTable(r.Context(), &dynamodb.DescribeTableInput{TableName: req.TableName})
	if err != nil {
		return nil, err
	}
	return struct {
		Table *wireTableDescription `json:"Table"`
	}{tableDescriptionOut(out.Table)}, nil
}

type updateTableRequest struct {
	TableName            *string                   `json:"TableName"`
	AttributeDefinitions []wireAttributeDefinition `json:"AttributeDefinitions"`
	GlobalSecondaryIndexUpdates []struct {
		Create *wireIndexSchema `json:"Create"`
		Delete *struct {
			IndexName string `json:"IndexName"`
		} `json:"Delete"`
		Update *struct {
			IndexName string `json:"IndexName"`
		} `json:"Update"`
	} `json:"GlobalSecondaryIndexUpdates"`
}

func (s *Server) updateTable(r *http.Request) (any, error) {
	req, err := decode[updateTableRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.UpdateTableInput{
		TableName:            req.TableName,
		AttributeDefinitions: attributeDefinitionsIn(req.AttributeDefinitions),
	}
	for _, upd := range req.GlobalSecondaryIndexUpdates {
		var action types.GlobalSecondaryIndexUpdate
		switch {
		case upd.Create != nil:
			name := upd.Create.IndexName
			action.Create = &types.CreateGlobalSecondaryIndexAction{
				IndexName:  &name,
				KeySchema:  keySchemaIn(upd.Create.KeySchema),
				Projection: projectionIn(upd.Create.Projection),
			}
		case upd.Delete != nil:
			name := upd.Delete.IndexName
			action.Delete = &types.DeleteGlobalSecondaryIndexAction{IndexName: &name}
		case upd.Update != nil:
			name := upd.Update.IndexName
			action.Update = &types.UpdateGlobalSecondaryIndexAction{IndexName: &name}
		}
		input.GlobalSecondaryIndexUpdates = append(input.GlobalSecondaryIndexUpdates, action)
	}
	out, err := s.store.UpdateTable(r.Context(), input)
	if err != nil {
		return nil, err
	}
	return struct {
		TableDescription *wireTableDescription `json:"TableDescription"`
	}{tableDescriptionOut(out.TableDescription)}, nil
}

type listTablesRequest struct {
	Limit                   *int32  `json:"Limit"`
	ExclusiveStartTableName *string `json:"ExclusiveStartTableName"`
}

func (s *Server) listTables(r *http.Request) (any, error) {
	req, err := decode[listTablesRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListTables(r.Context(), &dynamodb.ListTablesInput{
		Limit:                   req.Limit,
		ExclusiveStartTableName: req.ExclusiveStartTableName,
	})
	if err != nil {
		return nil, err
	}
	return struct {
		TableNames             []string `json:"TableNames"`
		LastEvaluatedTableName *string  `json:"LastEvaluatedTableName,omitempty"`
	}{out.TableNames, out.LastEvaluatedTableName}, nil
}

// Item operations.

type putItemRequest struct {
	TableName                           *string           `json:"TableName"`
	Item                                Item              `json:"Item"`
	ConditionExpression                 *string           `json:"ConditionExpression"`
	ExpressionAttributeNames            map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues           Item              `json:"ExpressionAttributeValues"`
	ReturnValues                        string            `json:"ReturnValues"`
	ReturnValuesOnConditionCheckFailure string            `json:"ReturnValuesOnConditionCheckFailure"`
}

func (s *Server) putItem(r *http.Request) (any, error) {
	req, err := decode[putItemRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.PutItem(r.Context(), &dynamodb.PutItemInput{
		TableName:                           req.TableName,
		Item:                                storeItem(req.Item),
		ConditionExpression:                 req.ConditionExpression,
		ExpressionAttributeNames:            req.ExpressionAttributeNames,
		ExpressionAttributeValues:           storeItem(req.ExpressionAttributeValues),
		ReturnValues:                        types.ReturnValue(req.ReturnValues),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(req.ReturnValuesOnConditionCheckFailure),
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Attributes Item `json:"Attributes,omitempty"`
	}{wireItem(out.Attributes)}, nil
}

type getItemRequest struct {
	TableName                *string           `json:"TableName"`
	Key                      Item              `json:"Key"`
	ProjectionExpression     *string           `json:"ProjectionExpression"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames"`
}

func (s *Server) getItem(r *http.Request) (any, error) {
	req, err := decode[getItemRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.GetItem(r.Context(), &dynamodb.GetItemInput{
		TableName:                req.TableName,
		Key:                      storeItem(req.Key),
		ProjectionExpression:     req.ProjectionExpression,
		ExpressionAttributeNames: req.ExpressionAttributeNames,
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Item Item `json:"Item,omitempty"`
	}{wireItem(out.Item)}, nil
}

type deleteItemRequest struct {
	TableName                           *string           `json:"TableName"`
	Key                                 Item              `json:"Key"`
	ConditionExpression                 *string           `json:"ConditionExpression"`
	ExpressionAttributeNames            map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues           Item              `json:"ExpressionAttributeValues"`
	ReturnValues                        string            `json:"ReturnValues"`
	ReturnValuesOnConditionCheckFailure string            `json:"ReturnValuesOnConditionCheckFailure"`
}

func (s *Server) deleteItem(r *http.Request) (any, error) {
	req, err := decode[deleteItemRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.DeleteItem(r.Context(), &dynamodb.DeleteItemInput{
		TableName:                           req.TableName,
		Key:                                 storeItem(req.Key),
		ConditionExpression:                 req.ConditionExpression,
		ExpressionAttributeNames:            req.ExpressionAttributeNames,
		ExpressionAttributeValues:           storeItem(req.ExpressionAttributeValues),
		ReturnValues:                        types.ReturnValue(req.ReturnValues),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(req.ReturnValuesOnConditionCheckFailure),
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Attributes Item `json:"Attributes,omitempty"`
	}{wireItem(out.Attributes)}, nil
}

type updateItemRequest struct {
	TableName                           *string           `json:"TableName"`
	Key                                 Item              `json:"Key"`
	UpdateExpression                    *string           `json:"UpdateExpression"`
	ConditionExpression                 *string           `json:"ConditionExpression"`
	ExpressionAttributeNames            map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues           Item              `json:"ExpressionAttributeValues"`
	ReturnValues                        string            `json:"ReturnValues"`
	ReturnValuesOnConditionCheckFailure string            `json:"ReturnValuesOnConditionCheckFailure"`
}

func (s *Server) updateItem(r *http.Request) (any, error) {
	req, err := decode[updateItemRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.UpdateItem(r.Context(), &dynamodb.UpdateItemInput{
		TableName:                           req.TableName,
		Key:                                 storeItem(req.Key),
		UpdateExpression:                    req.UpdateExpression,
		ConditionExpression:                 req.ConditionExpression,
		ExpressionAttributeNames:            req.ExpressionAttributeNames,
		ExpressionAttributeValues:           storeItem(req.ExpressionAttributeValues),
		ReturnValues:                        types.ReturnValue(req.ReturnValues),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(req.ReturnValuesOnConditionCheckFailure),
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Attributes Item `json:"Attributes,omitempty"`
	}{wireItem(out.Attributes)}, nil
}

// Query and Scan.

type queryRequest struct {
	TableName                 *string           `json:"TableName"`
	IndexName                 *string           `json:"IndexName"`
	KeyConditionExpression    *string           `json:"KeyConditionExpression"`
	FilterExpression          *string           `json:"FilterExpression"`
	ProjectionExpression      *string           `json:"ProjectionExpression"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues Item              `json:"ExpressionAttributeValues"`
	Limit                     *int32            `json:"Limit"`
	ExclusiveStartKey         Item              `json:"ExclusiveStartKey"`
	ScanIndexForward          *bool             `json:"ScanIndexForward"`
	Select                    string            `json:"Select"`
}

type pageResponse struct {
	Items            []Item `json:"Items,omitempty"`
	Count            int32  `json:"Count"`
	ScannedCount     int32  `json:"ScannedCount"`
	LastEvaluatedKey Item   `json:"LastEvaluatedKey,omitempty"`
}

func (s *Server) query(r *http.Request) (any, error) {
	req, err := decode[queryRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.Query(r.Context(), &dynamodb.QueryInput{
		TableName:                 req.TableName,
		IndexName:                 req.IndexName,
		KeyConditionExpression:    req.KeyConditionExpression,
		FilterExpression:          req.FilterExpression,
		ProjectionExpression:      req.ProjectionExpression,
		ExpressionAttributeNames:  req.ExpressionAttributeNames,
		ExpressionAttributeValues: storeItem(req.ExpressionAttributeValues),
		Limit:                     req.Limit,
		ExclusiveStartKey:         storeItem(req.ExclusiveStartKey),
		ScanIndexForward:          req.ScanIndexForward,
		Select:                    types.Select(req.Select),
	})
	if err != nil {
		return nil, err
	}
	return pageResponse{
		Items:            wireItems(out.Items),
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: wireItem(out.LastEvaluatedKey),
	}, nil
}

type scanRequest struct {
	TableName                 *string           `json:"TableName"`
	IndexName                 *string           `json:"IndexName"`
	FilterExpression          *string           `json:"FilterExpression"`
	ProjectionExpression      *string           `json:"ProjectionExpression"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues Item              `json:"ExpressionAttributeValues"`
	Limit                     *int32            `json:"Limit"`
	ExclusiveStartKey         Item              `json:"ExclusiveStartKey"`
	Segment                   *int32            `json:"Segment"`
	TotalSegments             *int32            `json:"TotalSegments"`
	Select                    string            `json:"Select"`
}

func (s *Server) scan(r *http.Request) (any, error) {
	req, err := decode[scanRequest](r)
	if err != nil {
		return nil, err
	}
	out, err := s.store.Scan(r.Context(), &dynamodb.ScanInput{
		TableName:                 req.TableName,
		IndexName:                 req.IndexName,
		FilterExpression:          req.FilterExpression,
		ProjectionExpression:      req.ProjectionExpression,
		ExpressionAttributeNames:  req.ExpressionAttributeNames,
		ExpressionAttributeValues: storeItem(req.ExpressionAttributeValues),
		Limit:                     req.Limit,
		ExclusiveStartKey:         storeItem(req.ExclusiveStartKey),
		Segment:                   req.Segment,
		TotalSegments:             req.TotalSegments,
		Select:                    types.Select(req.Select),
	})
	if err != nil {
		return nil, err
	}
	return pageResponse{
		Items:            wireItems(out.Items),
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: wireItem(out.LastEvaluatedKey),
	}, nil
}

// Batches.

type batchGetRequest struct {
	RequestItems map[string]struct {
		Keys                     []Item            `json:"Keys"`
		ProjectionExpression     *string           `json:"ProjectionExpression"`
		ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames"`
	} `json:"RequestItems"`
}

func (s *Server) batchGetItem(r *http.Request) (any, error) {
	req, err := decode[batchGetRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.BatchGetItemInput{
		RequestItems: make(map[string]types.KeysAndAttributes, len(req.RequestItems)),
	}
	for tableName, entry := range req.RequestItems {
		input.RequestItems[tableName] = types.KeysAndAttributes{
			Keys:                     storeKeys(entry.Keys),
			ProjectionExpression:     entry.ProjectionExpression,
			ExpressionAttributeNames: entry.ExpressionAttributeNames,
		}
	}
	out, err := s.store.BatchGetItem(r.Context(), input)
	if err != nil {
		return nil, err
	}
	responses := make(map[string][]Item, len(out.Responses))
	for tableName, items := range out.Responses {
		responses[tableName] = wireItems(items)
	}
	return struct {
		Responses       map[string][]Item `json:"Responses"`
		UnprocessedKeys map[string]any    `json:"UnprocessedKeys"`
	}{responses, map[string]any{}}, nil
}

type batchWriteRequest struct {
	RequestItems map[string][]struct {
		PutRequest *struct {
			Item Item `json:"Item"`
		} `json:"PutRequest"`
		DeleteRequest *struct {
			Key Item `json:"Key"`
		} `json:"DeleteRequest"`
	} `json:"RequestItems"`
}

func (s *Server) batchWriteItem(r *http.Request) (any, error) {
	req, err := decode[batchWriteRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: make(map[string][]types.WriteRequest, len(req.RequestItems)),
	}
	for tableName, entries := range req.RequestItems {
		reqs := make([]types.WriteRequest, len(entries))
		for i, entry := range entries {
			if entry.PutRequest != nil {
				reqs[i].PutRequest = &types.PutRequest{Item: storeItem(entry.PutRequest.Item)}
			}
			if entry.DeleteRequest != nil {
				reqs[i].DeleteRequest = &types.DeleteRequest{Key: storeItem(entry.DeleteRequest.Key)}
			}
		}
		input.RequestItems[tableName] = reqs
	}
	if _, err := s.store.BatchWriteItem(r.Context(), input); err != nil {
		return nil, err
	}
	return struct {
		UnprocessedItems map[string]any `json:"UnprocessedItems"`
	}{map[string]any{}}, nil
}

// Transactions.

type transactGetRequest struct {
	TransactItems []struct {
		Get *struct {
			TableName                *string           `json:"TableName"`
			Key                      Item              `json:"Key"`
			ProjectionExpression     *string           `json:"ProjectionExpression"`
			ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames"`
		} `json:"Get"`
	} `json:"TransactItems"`
}

func (s *Server) transactGetItems(r *http.Request) (any, error) {
	req, err := decode[transactGetRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.TransactGetItemsInput{}
	for _, entry := range req.TransactItems {
		item := types.TransactGetItem{}
		if entry.Get != nil {
			item.Get = &types.Get{
				TableName:                entry.Get.TableName,
				Key:                      storeItem(entry.Get.Key),
				ProjectionExpression:     entry.Get.ProjectionExpression,
				ExpressionAttributeNames: entry.Get.ExpressionAttributeNames,
			}
		}
		input.TransactItems = append(input.TransactItems, item)
	}
	out, err := s.store.TransactGetItems(r.Context(), input)
	if err != nil {
		return nil, err
	}
	type itemResponse struct {
		Item Item `json:"Item,omitempty"`
	}
	responses := make([]itemResponse, len(out.Responses))
	for i, resp := range out.Responses {
		responses[i] = itemResponse{Item: wireItem(resp.Item)}
	}
	return struct {
		Responses []itemResponse `json:"Responses"`
	}{responses}, nil
}

type transactWriteCommon struct {
	TableName                           *string           `json:"TableName"`
	Key                                 Item              `json:"Key"`
	Item                                Item              `json:"Item"`
	UpdateExpression                    *string           `json:"UpdateExpression"`
	ConditionExpression                 *string           `json:"ConditionExpression"`
	ExpressionAttributeNames            map[string]string `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues           Item              `json:"ExpressionAttributeValues"`
	ReturnValuesOnConditionCheckFailure string            `json:"ReturnValuesOnConditionCheckFailure"`
}

type transactWriteRequest struct {
	TransactItems []struct {
		Put            *transactWriteCommon `json:"Put"`
		Update         *transactWriteCommon `json:"Update"`
		Delete         *transactWriteCommon `json:"Delete"`
		ConditionCheck *transactWriteCommon `json:"ConditionCheck"`
	} `json:"TransactItems"`
}

func (s *Server) transactWriteItems(r *http.Request) (any, error) {
	req, err := decode[transactWriteRequest](r)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.TransactWriteItemsInput{}
	for _, entry := range req.TransactItems {
		item := types.TransactWriteItem{}
		if p := entry.Put; p != nil {
			item.Put = &types.Put{
				TableName:                           p.TableName,
				Item:                                storeItem(p.Item),
				ConditionExpression:                 p.ConditionExpression,
				ExpressionAttributeNames:            p.ExpressionAttributeNames,
				ExpressionAttributeValues:           storeItem(p.ExpressionAttributeValues),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(p.ReturnValuesOnConditionCheckFailure),
			}
		}
		if u := entry.Update; u != nil {
			item.Update = &types.Update{
				TableName:                           u.TableName,
				Key:                                 storeItem(u.Key),
				UpdateExpression:                    u.UpdateExpression,
				ConditionExpression:                 u.ConditionExpression,
				ExpressionAttributeNames:            u.ExpressionAttributeNames,
				ExpressionAttributeValues:           storeItem(u.ExpressionAttributeValues),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(u.ReturnValuesOnConditionCheckFailure),
			}
		}
		if d := entry.Delete; d != nil {
			item.Delete = &types.Delete{
				TableName:                           d.TableName,
				Key:                                 storeItem(d.Key),
				ConditionExpression:                 d.ConditionExpression,
				ExpressionAttributeNames:            d.ExpressionAttributeNames,
				ExpressionAttributeValues:           storeItem(d.ExpressionAttributeValues),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(d.ReturnValuesOnConditionCheckFailure),
			}
		}
		if c := entry.ConditionCheck; c != nil {
			item.ConditionCheck = &types.ConditionCheck{
				TableName:                           c.TableName,
				Key:                                 storeItem(c.Key),
				ConditionExpression:                 c.ConditionExpression,
				ExpressionAttributeNames:            c.ExpressionAttributeNames,
				ExpressionAttributeValues:           storeItem(c.ExpressionAttributeValues),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailure(c.ReturnValuesOnConditionCheckFailure),
			}
		}
		input.TransactItems = append(input.TransactItems, item)
	}
	if _, err := s.store.TransactWriteItems(r.Context(), input); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
