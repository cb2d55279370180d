// Package ddbstore implements the DynamoDB item store behind the local
// endpoint: table registry, partitioned storage with index maintenance, and
// the read, write, query, scan, batch and transaction operations. Methods
// mirror the dynamodb.Client surface so the store can stand in for a real
// client.
package ddbstore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbiface"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/partitions"
	"github.com/dynalocal/dynalocal/table"
)

// Store holds all tables. It is safe for concurrent use.
type Store struct {
	logger *zap.Logger
	region string

	mu     sync.RWMutex
	tables map[string]*storeTable
}

var _ ddbiface.Client = (*Store)(nil)

type Option func(*Store)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRegion sets the region named in table ARNs.
func WithRegion(region string) Option {
	return func(s *Store) { s.region = region }
}

func New(opts ...Option) *Store {
	s := &Store{
		logger: zap.NewNop(),
		region: "ddblocal",
		tables: make(map[string]*storeTable),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type storeTable struct {
	logger *zap.Logger

	// mu guards definition and indexes against UpdateTable; item data is
	// guarded by the per-partition locks.
	mu      sync.RWMutex
	def     table.TableDefinition
	id      string
	arn     string
	created time.Time

	primary   *partitions.Set
	indexes   map[string]*tableIndex
	itemCount atomic.Int64
	sizeBytes atomic.Int64
}

type tableIndex struct {
	def       table.IndexDefinition
	data      *partitions.Set
	itemCount atomic.Int64
	sizeBytes atomic.Int64
}

func newTableIndex(def table.IndexDefinition) *tableIndex {
	return &tableIndex{
		def:  def,
		data: partitions.NewSet(def.KeyDefinitions.SortKey),
	}
}

func (s *Store) getTable(tableName *string) (*storeTable, error) {
	if tableName == nil || *tableName == "" {
		return nil, validationError("TableName must not be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[*tableName]
	if !ok {
		return nil, tableNotFound(*tableName)
	}
	return t, nil
}

func (t *storeTable) definition() table.TableDefinition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.def
}

// tableView is a snapshot of the schema and index set, taken before any
// partition lock so writes never wait on the definition lock afterwards.
type tableView struct {
	def     table.TableDefinition
	indexes []*tableIndex
}

func (t *storeTable) view() tableView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := tableView{def: t.def, indexes: make([]*tableIndex, 0, len(t.indexes))}
	for _, idx := range t.indexes {
		v.indexes = append(v.indexes, idx)
	}
	return v
}

func (t *storeTable) index(name string) (*tableIndex, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.indexes[name]
	return idx, ok
}

// replaceDocument stores item under key, or deletes it when item is nil,
// and keeps every index in step. The caller holds the base partition lock.
func (t *storeTable) replaceDocument(view tableView, part *partitions.Partition, key table.PrimaryKey, item map[string]types.AttributeValue) *partitions.Document {
	var old *partitions.Document
	if item == nil {
		old, _ = part.Delete(key)
	} else {
		doc := &partitions.Document{Key: key, Item: item}
		old, _ = part.Put(doc)
	}

	var oldSize, newSize int
	if old != nil {
		oldSize = attrval.ItemSize(old.Item)
		t.itemCount.Add(-1)
		t.sizeBytes.Add(-int64(oldSize))
	}
	if item != nil {
		newSize = attrval.ItemSize(item)
		t.itemCount.Add(1)
		t.sizeBytes.Add(int64(newSize))
	}

	tie := key.Encode()
	for _, idx := range view.indexes {
		if old != nil && idx.def.CoversItem(old.Item) {
			if !idx.removeEntry(old.Item, tie) {
				// The entry was written when the item was stored, so a miss
				// means primary storage and the index disagree.
				t.logger.Error("index inconsistent with primary storage",
					zap.String("table", t.def.Name),
					zap.String("index", idx.def.Name),
					zap.String("key", tie))
			}
		}
		if item != nil && idx.def.CoversItem(item) {
			idx.putEntry(item, view.def.KeyDefinitions, tie)
		}
	}
	return old
}

func (x *tableIndex) putEntry(item map[string]types.AttributeValue, baseKeys table.PrimaryKeyDefinition, tie string) {
	key, err := x.def.ExtractPrimaryKey(item)
	if err != nil {
		return
	}
	projected := x.def.Project(item, baseKeys)
	part := x.data.GetOrCreate(key.PartitionID())
	part.Lock()
	defer part.Unlock()
	old, _ := part.Put(&partitions.Document{Key: key, Tie: tie, Item: projected})
	if old != nil {
		x.itemCount.Add(-1)
		x.sizeBytes.Add(-int64(attrval.ItemSize(old.Item)))
	}
	x.itemCount.Add(1)
	x.sizeBytes.Add(int64(attrval.ItemSize(projected)))
}

func (x *tableIndex) removeEntry(item map[string]types.AttributeValue, tie string) bool {
	key, err := x.def.ExtractPrimaryKey(item)
	if err != nil {
		return false
	}
	part, ok := x.data.Get(key.PartitionID())
	if !ok {
		return false
	}
	part.Lock()
	defer part.Unlock()
	old, found := part.DeleteEntry(key, tie)
	if found {
		x.itemCount.Add(-1)
		x.sizeBytes.Add(-int64(attrval.ItemSize(old.Item)))
	}
	return found
}

// bindingsFrom collects expression substitutions off a request.
func bindingsFrom(names map[string]string, values map[string]types.AttributeValue) expression.Bindings {
	return expression.Bindings{Names: names, Values: values}
}

// evalCondition parses and evaluates a condition expression against the
// current item, nil meaning no stored item.
func evalCondition(expr *string, item map[string]types.AttributeValue, bindings expression.Bindings) error {
	if expr == nil {
		return nil
	}
	cond, err := expression.ParseCondition(*expr)
	if err != nil {
		return validationError("Invalid ConditionExpression: %s", err)
	}
	ok, err := expression.EvalCondition(cond, item, bindings)
	if err != nil {
		return validationError("Invalid ConditionExpression: %s", err)
	}
	if !ok {
		return conditionFailed()
	}
	return nil
}
