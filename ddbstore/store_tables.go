package ddbstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dynalocal/dynalocal/ddbstore/partitions"
	"github.com/dynalocal/dynalocal/table"
)

func (s *Store) tableArn(name string) string {
	return fmt.Sprintf("arn:aws:dynamodb:%s:000000000000:table/%s", s.region, name)
}

func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	def, err := definitionFromCreate(params)
	if err != nil {
		return nil, err
	}

	t := &storeTable{
		logger:  s.logger,
		def:     def,
		id:      uuid.NewString(),
		arn:     s.tableArn(def.Name),
		created: time.Now(),
		primary: partitionsFor(def.KeyDefinitions),
		indexes: make(map[string]*tableIndex, len(def.Indexes)),
	}
	for _, idx := range def.Indexes {
		t.indexes[idx.Name] = newTableIndex(idx)
	}

	s.mu.Lock()
	if _, exists := s.tables[def.Name]; exists {
		s.mu.Unlock()
		return nil, tableExists(def.Name)
	}
	s.tables[def.Name] = t
	s.mu.Unlock()

	s.logger.Info("created table",
		zap.String("table", def.Name),
		zap.Int("indexes", len(def.Indexes)))
	return &dynamodb.CreateTableOutput{TableDescription: t.describe()}, nil
}

func (s *Store) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if params == nil || params.TableName == nil {
		return nil, validationError("TableName is required")
	}
	s.mu.Lock()
	t, ok := s.tables[*params.TableName]
	if !ok {
		s.mu.Unlock()
		return nil, tableNotFound(*params.TableName)
	}
	delete(s.tables, *params.TableName)
	s.mu.Unlock()

	s.logger.Info("deleted table", zap.String("table", *params.TableName))
	return &dynamodb.DeleteTableOutput{TableDescription: t.describe()}, nil
}

func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if params == nil || params.TableName == nil {
		return nil, validationError("TableName is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: t.describe()}, nil
}

func (s *Store) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if params == nil {
		params = &dynamodb.ListTablesInput{}
	}
	limit := 100
	if params.Limit != nil {
		if *params.Limit < 1 || *params.Limit > 100 {
			return nil, validationError("Limit must be between 1 and 100")
		}
		limit = int(*params.Limit)
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	if params.ExclusiveStartTableName != nil {
		start := *params.ExclusiveStartTableName
		i := sort.SearchStrings(names, start)
		if i < len(names) && names[i] == start {
			i++
		}
		names = names[i:]
	}

	out := &dynamodb.ListTablesOutput{}
	if len(names) > limit {
		out.TableNames = names[:limit]
		out.LastEvaluatedTableName = aws.String(names[limit-1])
	} else {
		out.TableNames = names
	}
	return out, nil
}

func (s *Store) UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	if params == nil || params.TableName == nil {
		return nil, validationError("TableName is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	attrKinds := make(map[string]table.KeyKind)
	for _, ad := range params.AttributeDefinitions {
		if ad.AttributeName != nil {
			attrKinds[*ad.AttributeName] = table.KeyKind(ad.AttributeType)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, kd := range []table.KeyDef{t.def.KeyDefinitions.PartitionKey, t.def.KeyDefinitions.SortKey} {
		if kd.Name != "" {
			attrKinds[kd.Name] = kd.Kind
		}
	}
	for _, idx := range t.def.Indexes {
		for _, kd := range []table.KeyDef{idx.KeyDefinitions.PartitionKey, idx.KeyDefinitions.SortKey} {
			if kd.Name != "" {
				attrKinds[kd.Name] = kd.Kind
			}
		}
	}

	for _, update := range params.GlobalSecondaryIndexUpdates {
		switch {
		case update.Create != nil:
			idxDef, err := indexFromSchema(update.Create.IndexName, table.IndexKindGSI, update.Create.KeySchema, update.Create.Projection, attrKinds, map[string]bool{})
			if err != nil {
				return nil, err
			}
			if _, exists := t.indexes[idxDef.Name]; exists {
				return nil, validationError("Global secondary index %s already exists", idxDef.Name)
			}
			idx := newTableIndex(idxDef)
			t.backfillIndex(idx)
			t.def.Indexes = append(t.def.Indexes, idxDef)
			t.indexes[idxDef.Name] = idx
			s.logger.Info("created index",
				zap.String("table", t.def.Name),
				zap.String("index", idxDef.Name))

		case update.Delete != nil:
			if update.Delete.IndexName == nil {
				return nil, validationError("IndexName is required to delete an index")
			}
			name := *update.Delete.IndexName
			if _, exists := t.indexes[name]; !exists {
				return nil, &types.ResourceNotFoundException{
					Message: aws.String(fmt.Sprintf("Requested resource not found: Index: %s not found", name)),
				}
			}
			delete(t.indexes, name)
			for i, idx := range t.def.Indexes {
				if idx.Name == name {
					t.def.Indexes = append(t.def.Indexes[:i], t.def.Indexes[i+1:]...)
					break
				}
			}
			s.logger.Info("deleted index",
				zap.String("table", t.def.Name),
				zap.String("index", name))

		case update.Update != nil:
			// Throughput-only updates; nothing to change locally.
		}
	}

	desc := t.describeLocked()
	return &dynamodb.UpdateTableOutput{TableDescription: desc}, nil
}

// backfillIndex projects every stored item into a freshly created index.
// The caller holds the table definition lock.
func (t *storeTable) backfillIndex(idx *tableIndex) {
	for _, pid := range t.primary.IDs() {
		part, ok := t.primary.Get(pid)
		if !ok {
			continue
		}
		part.RLock()
		part.Ascend(func(doc *partitions.Document) bool {
			if idx.def.CoversItem(doc.Item) {
				idx.putEntry(doc.Item, t.def.KeyDefinitions, doc.Key.Encode())
			}
			return true
		})
		part.RUnlock()
	}
}

func partitionsFor(keys table.PrimaryKeyDefinition) *partitions.Set {
	return partitions.NewSet(keys.SortKey)
}
