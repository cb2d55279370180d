package ddbstore

import (
	"context"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
	"github.com/dynalocal/dynalocal/ddbstore/partitions"
)

func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Select == types.SelectCount && params.ProjectionExpression != nil {
		return nil, validationError("Cannot combine Select COUNT with a ProjectionExpression")
	}
	if params.Limit != nil && *params.Limit < 1 {
		return nil, validationError("Limit must be at least 1")
	}
	segment, totalSegments, err := scanSegments(params.Segment, params.TotalSegments)
	if err != nil {
		return nil, err
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	src, err := s.querySourceFor(t, params.IndexName)
	if err != nil {
		return nil, err
	}

	bindings := bindingsFrom(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	var filter ast.Condition
	if params.FilterExpression != nil {
		// Unlike Query, a scan filter may reference key attributes.
		filter, err = expression.ParseCondition(*params.FilterExpression)
		if err != nil {
			return nil, validationError("Invalid FilterExpression: %s", err)
		}
	}
	var projection []ast.Path
	if params.ProjectionExpression != nil {
		projection, err = expression.ParseProjection(*params.ProjectionExpression)
		if err != nil {
			return nil, validationError("Invalid ProjectionExpression: %s", err)
		}
	}

	collector := &pageCollector{
		filter:  filter,
		binding: bindings,
		collect: params.Select != types.SelectCount,
	}
	if params.Limit != nil {
		collector.limit = int(*params.Limit)
	}

	var startPID string
	var startSort any
	var startTie string
	haveStart := false
	if params.ExclusiveStartKey != nil {
		srcKey, err := src.keys.ExtractPrimaryKey(params.ExclusiveStartKey)
		if err != nil {
			return nil, validationError("The provided starting key is invalid: %s", err)
		}
		startPID = srcKey.PartitionID()
		startSort, startTie, err = s.startPosition(t, src, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		haveStart = true
	}

	var visitErr error
	visit := func(doc *partitions.Document) bool {
		more, err := collector.visit(doc.Item)
		if err != nil {
			visitErr = err
			return false
		}
		return more
	}

	for _, pid := range src.data.IDs() {
		if totalSegments > 1 && segmentOf(pid, totalSegments) != segment {
			continue
		}
		if haveStart && pid < startPID {
			continue
		}
		part, ok := src.data.Get(pid)
		if !ok {
			continue
		}
		part.RLock()
		if haveStart && pid == startPID {
			part.AscendFrom(startSort, startTie, false, visit)
		} else {
			part.Ascend(visit)
		}
		part.RUnlock()
		if visitErr != nil {
			return nil, visitErr
		}
		if collector.truncated {
			break
		}
	}

	queryOut, err := s.buildPage(&dynamodb.QueryOutput{}, collector, src, projection, params.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            queryOut.Items,
		Count:            queryOut.Count,
		ScannedCount:     queryOut.ScannedCount,
		LastEvaluatedKey: queryOut.LastEvaluatedKey,
	}, nil
}

func scanSegments(segment, total *int32) (int32, int32, error) {
	if total == nil {
		if segment != nil {
			return 0, 0, validationError("Segment requires TotalSegments")
		}
		return 0, 1, nil
	}
	if *total < 1 || *total > 1000000 {
		return 0, 0, validationError("TotalSegments must be between 1 and 1000000")
	}
	if segment == nil {
		return 0, 0, validationError("TotalSegments requires Segment")
	}
	if *segment < 0 || *segment >= *total {
		return 0, 0, validationError("Segment must be between 0 and TotalSegments-1")
	}
	return *segment, *total, nil
}

// segmentOf assigns a partition to a scan segment by hashing its identity.
func segmentOf(partitionID string, totalSegments int32) int32 {
	h := fnv.New32a()
	h.Write([]byte(partitionID))
	return int32(h.Sum32() % uint32(totalSegments))
}
