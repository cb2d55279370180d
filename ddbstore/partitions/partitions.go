// Package partitions holds the in-memory storage for one table or index: a
// concurrent map from partition key value to an ordered collection of
// documents sorted by sort key value.
//
// Partition data methods do not lock. Callers take Lock or RLock on the
// partition first, which lets a transaction hold several partitions at once.
package partitions

import (
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/btree"

	"github.com/dynalocal/dynalocal/table"
)

// Document is one stored item together with its extracted primary key.
// Index documents also carry the base table key identity in Tie, which
// breaks ordering ties between items sharing an index key.
type Document struct {
	Key  table.PrimaryKey
	Tie  string
	Item map[string]types.AttributeValue
}

// Partition is an ordered collection of documents sharing a partition key
// value. A base table partition without a sort key holds one document.
type Partition struct {
	mu       sync.RWMutex
	sortKind table.KeyKind
	hasSort  bool
	docs     *btree.BTreeG[*Document]
}

func newPartition(sortKey table.KeyDef) *Partition {
	p := &Partition{
		sortKind: sortKey.Kind,
		hasSort:  sortKey.Name != "",
	}
	p.docs = btree.NewG(2, func(l, r *Document) bool {
		if p.hasSort {
			if cmp := table.CompareKeyValues(p.sortKind, l.Key.Values.SortKey, r.Key.Values.SortKey); cmp != 0 {
				return cmp < 0
			}
		}
		return strings.Compare(l.Tie, r.Tie) < 0
	})
	return p
}

func (p *Partition) Lock()    { p.mu.Lock() }
func (p *Partition) Unlock()  { p.mu.Unlock() }
func (p *Partition) RLock()   { p.mu.RLock() }
func (p *Partition) RUnlock() { p.mu.RUnlock() }

func (p *Partition) pivot(sortValue any, tie string) *Document {
	return &Document{
		Key: table.PrimaryKey{
			Definition: table.PrimaryKeyDefinition{SortKey: table.KeyDef{Name: "sk", Kind: p.sortKind}},
			Values:     table.PrimaryKeyValues{SortKey: sortValue},
		},
		Tie: tie,
	}
}

func (p *Partition) Get(key table.PrimaryKey) (*Document, bool) {
	return p.docs.Get(&Document{Key: key})
}

// GetEntry looks up an index document by index key and base key identity.
func (p *Partition) GetEntry(key table.PrimaryKey, tie string) (*Document, bool) {
	return p.docs.Get(&Document{Key: key, Tie: tie})
}

// Put inserts or replaces and returns the previous document, if any.
func (p *Partition) Put(doc *Document) (*Document, bool) {
	return p.docs.ReplaceOrInsert(doc)
}

// Delete removes the document with the given key and returns it, if any.
func (p *Partition) Delete(key table.PrimaryKey) (*Document, bool) {
	return p.docs.Delete(&Document{Key: key})
}

// DeleteEntry removes an index document by index key and base key identity.
func (p *Partition) DeleteEntry(key table.PrimaryKey, tie string) (*Document, bool) {
	return p.docs.Delete(&Document{Key: key, Tie: tie})
}

func (p *Partition) Len() int {
	return p.docs.Len()
}

// Ascend walks documents in sort order until fn returns false.
func (p *Partition) Ascend(fn func(*Document) bool) {
	p.docs.Ascend(fn)
}

// AscendFrom walks documents ordered at or after (sortValue, tie), skipping
// the exact match when inclusive is false.
func (p *Partition) AscendFrom(sortValue any, tie string, inclusive bool, fn func(*Document) bool) {
	start := p.pivot(sortValue, tie)
	p.docs.AscendGreaterOrEqual(start, func(doc *Document) bool {
		if !inclusive && p.sameAs(doc, sortValue, tie) {
			return true
		}
		return fn(doc)
	})
}

// Descend walks documents in reverse sort order until fn returns false.
func (p *Partition) Descend(fn func(*Document) bool) {
	p.docs.Descend(fn)
}

// DescendFrom walks documents ordered at or before (sortValue, tie),
// skipping the exact match when inclusive is false.
func (p *Partition) DescendFrom(sortValue any, tie string, inclusive bool, fn func(*Document) bool) {
	start := p.pivot(sortValue, tie)
	p.docs.DescendLessOrEqual(start, func(doc *Document) bool {
		if !inclusive && p.sameAs(doc, sortValue, tie) {
			return true
		}
		return fn(doc)
	})
}

func (p *Partition) sameAs(doc *Document, sortValue any, tie string) bool {
	if doc.Tie != tie {
		return false
	}
	if !p.hasSort {
		return true
	}
	return table.CompareKeyValues(p.sortKind, doc.Key.Values.SortKey, sortValue) == 0
}

// Set is the partition map for one table or index.
type Set struct {
	mu      sync.RWMutex
	sortKey table.KeyDef
	parts   map[string]*Partition
}

func NewSet(sortKey table.KeyDef) *Set {
	return &Set{
		sortKey: sortKey,
		parts:   make(map[string]*Partition),
	}
}

// Get returns the partition for the given partition identity, if present.
func (s *Set) Get(partitionID string) (*Partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[partitionID]
	return p, ok
}

// GetOrCreate returns the partition for the given partition identity,
// creating an empty one first when absent.
func (s *Set) GetOrCreate(partitionID string) *Partition {
	s.mu.RLock()
	p, ok := s.parts[partitionID]
	s.mu.RUnlock()
	if ok {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.parts[partitionID]; ok {
		return p
	}
	p = newPartition(s.sortKey)
	s.parts[partitionID] = p
	return p
}

// IDs returns a sorted snapshot of the partition identities. Scans walk
// partitions in this order so pagination resumes deterministically.
func (s *Set) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.parts))
	for id := range s.parts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
