// Package table holds table and key schema definitions: the declared
// partition/sort keys, secondary index definitions with their projection
// policy, and primary key extraction from items.
package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	Indexes        []IndexDefinition
}

// IndexKind distinguishes global from local secondary indexes. A GSI has an
// independent key schema and is sparse; an LSI shares the base partition key
// and indexes every item.
type IndexKind string

const (
	IndexKindGSI IndexKind = "GSI"
	IndexKindLSI IndexKind = "LSI"
)

type IndexDefinition struct {
	Name           string
	Kind           IndexKind
	KeyDefinitions PrimaryKeyDefinition
	Projection     Projection
}

// Validate checks the schema invariants declared at creation time.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if err := t.KeyDefinitions.validate(); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	seen := make(map[string]struct{})
	for _, ix := range t.Indexes {
		if ix.Name == "" {
			return fmt.Errorf("table %q: index name is required", t.Name)
		}
		if _, dup := seen[ix.Name]; dup {
			return fmt.Errorf("table %q: duplicate index name %q", t.Name, ix.Name)
		}
		seen[ix.Name] = struct{}{}
		if err := ix.KeyDefinitions.validate(); err != nil {
			return fmt.Errorf("index %q: %w", ix.Name, err)
		}
		if ix.Kind == IndexKindLSI {
			if ix.KeyDefinitions.PartitionKey != t.KeyDefinitions.PartitionKey {
				return fmt.Errorf("index %q: local secondary index must use the table partition key", ix.Name)
			}
			if ix.KeyDefinitions.SortKey.Name == "" {
				return fmt.Errorf("index %q: local secondary index requires a sort key", ix.Name)
			}
		}
		if err := ix.Projection.validate(); err != nil {
			return fmt.Errorf("index %q: %w", ix.Name, err)
		}
	}
	return nil
}

func (k PrimaryKeyDefinition) validate() error {
	if k.PartitionKey.Name == "" {
		return fmt.Errorf("partition key is required")
	}
	if !k.PartitionKey.Kind.valid() {
		return fmt.Errorf("partition key %q has invalid kind %q", k.PartitionKey.Name, k.PartitionKey.Kind)
	}
	if k.SortKey.Name != "" && !k.SortKey.Kind.valid() {
		return fmt.Errorf("sort key %q has invalid kind %q", k.SortKey.Name, k.SortKey.Kind)
	}
	return nil
}

// Index returns the named secondary index definition, if declared.
func (t TableDefinition) Index(name string) (IndexDefinition, bool) {
	for _, ix := range t.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexDefinition{}, false
}

// KeyAttributeNames lists the attribute names of the primary key plus every
// index key, deduplicated.
func (t TableDefinition) KeyAttributeNames() []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(def PrimaryKeyDefinition) {
		for _, kd := range []KeyDef{def.PartitionKey, def.SortKey} {
			if kd.Name == "" {
				continue
			}
			if _, ok := seen[kd.Name]; ok {
				continue
			}
			seen[kd.Name] = struct{}{}
			names = append(names, kd.Name)
		}
	}
	add(t.KeyDefinitions)
	for _, ix := range t.Indexes {
		add(ix.KeyDefinitions)
	}
	return names
}

func (t TableDefinition) ExtractPrimaryKey(item map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(item)
}

func (i IndexDefinition) ExtractPrimaryKey(item map[string]types.AttributeValue) (PrimaryKey, error) {
	return i.KeyDefinitions.ExtractPrimaryKey(item)
}

// CoversItem reports whether the item carries every key attribute the index
// needs. GSIs skip items missing any index key attribute (sparse indexing).
func (i IndexDefinition) CoversItem(item map[string]types.AttributeValue) bool {
	if _, ok := item[i.KeyDefinitions.PartitionKey.Name]; !ok {
		return false
	}
	if i.KeyDefinitions.SortKey.Name != "" {
		if _, ok := item[i.KeyDefinitions.SortKey.Name]; !ok {
			return false
		}
	}
	return true
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(item map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := item[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("partition key %q: %w", k.PartitionKey.Name, err)
	}
	if size := keyValueSize(part); size > maxPartitionKeyBytes {
		return PrimaryKey{}, fmt.Errorf("partition key %q exceeds %d bytes", k.PartitionKey.Name, maxPartitionKeyBytes)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := item[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on item", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q: %w", k.SortKey.Name, err)
	}
	if size := keyValueSize(sort); size > maxSortKeyBytes {
		return PrimaryKey{}, fmt.Errorf("sort key %q exceeds %d bytes", k.SortKey.Name, maxSortKeyBytes)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

const (
	maxPartitionKeyBytes = 2048
	maxSortKeyBytes      = 1024
)

func keyValueSize(av types.AttributeValue) int {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value)
	case *types.AttributeValueMemberN:
		return len(v.Value)
	case *types.AttributeValueMemberB:
		return len(v.Value)
	}
	return 0
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		panic(fmt.Sprintf("unsupported attribute value %T for keys", v))
	}
}
