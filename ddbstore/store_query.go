package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
	"github.com/dynalocal/dynalocal/ddbstore/partitions"
	"github.com/dynalocal/dynalocal/table"
)

// maxPageBytes caps how much item data one Query or Scan page evaluates.
const maxPageBytes = 1 << 20

// querySource is the queried table or index: its key schema, its partition
// data and the attributes a page key is built from.
type querySource struct {
	keys     table.PrimaryKeyDefinition
	data     *partitions.Set
	keyAttrs []string
}

func (s *Store) querySourceFor(t *storeTable, indexName *string) (querySource, error) {
	view := t.view()
	if indexName == nil {
		return querySource{
			keys:     view.def.KeyDefinitions,
			data:     t.primary,
			keyAttrs: view.def.KeyAttributeNames(),
		}, nil
	}
	idx, ok := t.index(*indexName)
	if !ok {
		return querySource{}, validationError("The table does not have the specified index: %s", *indexName)
	}
	attrs := view.def.KeyAttributeNames()
	attrs = append(attrs, idx.def.KeyDefinitions.PartitionKey.Name)
	if idx.def.KeyDefinitions.SortKey.Name != "" {
		attrs = append(attrs, idx.def.KeyDefinitions.SortKey.Name)
	}
	return querySource{
		keys:     idx.def.KeyDefinitions,
		data:     idx.data,
		keyAttrs: dedupeStrings(attrs),
	}, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// pageKeyFor builds a LastEvaluatedKey from the evaluated item.
func pageKeyFor(item map[string]types.AttributeValue, keyAttrs []string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(keyAttrs))
	for _, name := range keyAttrs {
		if v, ok := item[name]; ok {
			out[name] = attrval.CloneValue(v)
		}
	}
	return out
}

// pageCollector accumulates one result page, honoring the item limit and
// the page byte cap. Limits count evaluated items, before any filter.
type pageCollector struct {
	limit   int
	filter  ast.Condition
	binding expression.Bindings
	collect bool

	items     []map[string]types.AttributeValue
	count     int
	scanned   int
	bytes     int
	truncated bool
	lastItem  map[string]types.AttributeValue
}

// visit evaluates one document and reports whether iteration continues.
func (c *pageCollector) visit(item map[string]types.AttributeValue) (bool, error) {
	c.scanned++
	c.bytes += attrval.ItemSize(item)
	c.lastItem = item

	matched := true
	if c.filter != nil {
		var err error
		matched, err = expression.EvalCondition(c.filter, item, c.binding)
		if err != nil {
			return false, validationError("Invalid FilterExpression: %s", err)
		}
	}
	if matched {
		c.count++
		if c.collect {
			c.items = append(c.items, attrval.CloneItem(item))
		}
	}

	if (c.limit > 0 && c.scanned >= c.limit) || c.bytes >= maxPageBytes {
		c.truncated = true
		return false, nil
	}
	return true, nil
}

func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.KeyConditionExpression == nil {
		return nil, validationError("KeyConditionExpression is required")
	}
	if params.Select == types.SelectCount && params.ProjectionExpression != nil {
		return nil, validationError("Cannot combine Select COUNT with a ProjectionExpression")
	}
	if params.Limit != nil && *params.Limit < 1 {
		return nil, validationError("Limit must be at least 1")
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
	kc, err := extractKeyCondition(*params.KeyConditionExpression, src.keys, bindings)
	if err != nil {
		return nil, err
	}
	filter, err := parseFilter(params.FilterExpression, src.keys, bindings)
	if err != nil {
		return nil, err
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

	out := &dynamodb.QueryOutput{}
	part, ok := src.data.Get(table.EncodeKeyValue(src.keys.PartitionKey.Kind, kc.partitionValue))
	if !ok {
		out.Count = 0
		out.ScannedCount = 0
		if collector.collect {
			out.Items = []map[string]types.AttributeValue{}
		}
		return out, nil
	}

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward

	var startSort any
	var startTie string
	haveStart := false
	if params.ExclusiveStartKey != nil {
		startSort, startTie, err = s.startPosition(t, src, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		haveStart = true
	}

	part.RLock()
	var visitErr error
	visit := func(doc *partitions.Document) bool {
		sortVal := doc.Key.Values.SortKey
		if src.keys.SortKey.Name != "" {
			if !kc.rng.aboveLower(src.keys.SortKey.Kind, sortVal) {
				if forward {
					return true
				}
				return false
			}
			if !kc.rng.belowUpper(src.keys.SortKey.Kind, sortVal) {
				if forward {
					return false
				}
				return true
			}
			if !kc.rng.matchesPrefix(sortVal) {
				// Past the prefix range going forward, before it in reverse.
				return !forward
			}
		}
		more, err := collector.visit(doc.Item)
		if err != nil {
			visitErr = err
			return false
		}
		return more
	}

	switch {
	case src.keys.SortKey.Name == "":
		if !haveStart {
			part.Ascend(visit)
		}
	case forward && haveStart:
		part.AscendFrom(startSort, startTie, false, visit)
	case forward && kc.rng.hasLower:
		part.AscendFrom(kc.rng.lower, "", true, visit)
	case forward:
		part.Ascend(visit)
	case haveStart:
		part.DescendFrom(startSort, startTie, false, visit)
	case kc.rng.hasUpper:
		part.DescendFrom(kc.rng.upper, "\xff", true, visit)
	default:
		part.Descend(visit)
	}
	part.RUnlock()
	if visitErr != nil {
		return nil, visitErr
	}

	return s.buildPage(&dynamodb.QueryOutput{}, collector, src, projection, params.ExpressionAttributeNames)
}

// startPosition turns an ExclusiveStartKey into the resume point: the sort
// value on the queried schema plus the base key tie for index queries.
func (s *Store) startPosition(t *storeTable, src querySource, esk map[string]types.AttributeValue) (any, string, error) {
	srcKey, err := src.keys.ExtractPrimaryKey(esk)
	if err != nil {
		return nil, "", validationError("The provided starting key is invalid: %s", err)
	}
	tie := ""
	if src.data != t.primary {
		baseKey, err := t.definition().ExtractPrimaryKey(esk)
		if err != nil {
			return nil, "", validationError("The provided starting key is invalid: %s", err)
		}
		tie = baseKey.Encode()
	}
	return srcKey.Values.SortKey, tie, nil
}

// buildPage assembles the final output from a filled collector.
func (s *Store) buildPage(out *dynamodb.QueryOutput, collector *pageCollector, src querySource, projection []ast.Path, names map[string]string) (*dynamodb.QueryOutput, error) {
	out.Count = int32(collector.count)
	out.ScannedCount = int32(collector.scanned)
	if collector.collect {
		items := collector.items
		if projection != nil {
			projected := make([]map[string]types.AttributeValue, 0, len(items))
			for _, item := range items {
				p, err := expression.ApplyProjection(projection, item, expression.Bindings{Names: names})
				if err != nil {
					return nil, validationError("Invalid ProjectionExpression: %s", err)
				}
				projected = append(projected, p)
			}
			items = projected
		}
		if items == nil {
			items = []map[string]types.AttributeValue{}
		}
		out.Items = items
	}
	if collector.truncated && collector.lastItem != nil {
		out.LastEvaluatedKey = pageKeyFor(collector.lastItem, src.keyAttrs)
	}
	return out, nil
}

// parseFilter parses a filter expression and rejects references to the key
// attributes of the queried schema.
func parseFilter(expr *string, keys table.PrimaryKeyDefinition, bindings expression.Bindings) (ast.Condition, error) {
	if expr == nil {
		return nil, nil
	}
	cond, err := expression.ParseCondition(*expr)
	if err != nil {
		return nil, validationError("Invalid FilterExpression: %s", err)
	}
	var paths []ast.Path
	conditionPaths(cond, &paths)
	for _, path := range paths {
		attr := path.Elements[0].(ast.Attribute)
		name := attr.Name
		if len(name) > 0 && name[0] == '#' {
			if resolved, ok := bindings.Names[name]; ok {
				name = resolved
			}
		}
		if name == keys.PartitionKey.Name || (keys.SortKey.Name != "" && name == keys.SortKey.Name) {
			return nil, validationError("Filter Expression can only contain non-primary key attributes: Primary key attribute: %s", name)
		}
	}
	return cond, nil
}

func conditionPaths(cond ast.Condition, out *[]ast.Path) {
	switch c := cond.(type) {
	case ast.And:
		conditionPaths(c.Left, out)
		conditionPaths(c.Right, out)
	case ast.Or:
		conditionPaths(c.Left, out)
		conditionPaths(c.Right, out)
	case ast.Not:
		conditionPaths(c.Inner, out)
	case ast.Compare:
		operandPaths(c.Left, out)
		operandPaths(c.Right, out)
	case ast.Between:
		operandPaths(c.Value, out)
		operandPaths(c.Low, out)
		operandPaths(c.High, out)
	case ast.In:
		operandPaths(c.Value, out)
		for _, opt := range c.Options {
			operandPaths(opt, out)
		}
	case ast.Function:
		for _, arg := range c.Args {
			operandPaths(arg, out)
		}
	}
}

func operandPaths(op ast.Operand, out *[]ast.Path) {
	switch o := op.(type) {
	case ast.Path:
		*out = append(*out, o)
	case ast.SizeOf:
		operandPaths(o.Arg, out)
	}
}
