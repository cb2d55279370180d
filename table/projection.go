package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Projection decides which attributes of a base-table item are mirrored
// into a secondary index entry. Key attributes of both the index and the
// base table are always included.
type Projection struct {
	Kind             ProjectionKind
	NonKeyAttributes []string // only for ProjectInclude
}

type ProjectionKind string

const (
	ProjectAll      ProjectionKind = "ALL"
	ProjectKeysOnly ProjectionKind = "KEYS_ONLY"
	ProjectInclude  ProjectionKind = "INCLUDE"
)

func (p Projection) validate() error {
	switch p.Kind {
	case ProjectAll, ProjectKeysOnly, "":
		if len(p.NonKeyAttributes) > 0 {
			return fmt.Errorf("non-key attributes require projection kind %q", ProjectInclude)
		}
	case ProjectInclude:
		if len(p.NonKeyAttributes) == 0 {
			return fmt.Errorf("projection kind %q requires non-key attributes", ProjectInclude)
		}
	default:
		return fmt.Errorf("unknown projection kind %q", p.Kind)
	}
	return nil
}

// Project builds the index entry for an item. baseKeys is the base table's
// primary key definition, whose attributes are always carried so that index
// results can resolve back to the base row.
func (i IndexDefinition) Project(item map[string]types.AttributeValue, baseKeys PrimaryKeyDefinition) map[string]types.AttributeValue {
	if i.Projection.Kind == ProjectAll || i.Projection.Kind == "" {
		out := make(map[string]types.AttributeValue, len(item))
		for k, v := range item {
			out[k] = v
		}
		return out
	}

	out := make(map[string]types.AttributeValue)
	copyAttr := func(name string) {
		if name == "" {
			return
		}
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	copyAttr(baseKeys.PartitionKey.Name)
	copyAttr(baseKeys.SortKey.Name)
	copyAttr(i.KeyDefinitions.PartitionKey.Name)
	copyAttr(i.KeyDefinitions.SortKey.Name)
	if i.Projection.Kind == ProjectInclude {
		for _, name := range i.Projection.NonKeyAttributes {
			copyAttr(name)
		}
	}
	return out
}
