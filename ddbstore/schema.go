package ddbstore

import (
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/table"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)

// definitionFromCreate converts a CreateTable request into the internal
// schema, validating it the way the service does.
func definitionFromCreate(params *dynamodb.CreateTableInput) (table.TableDefinition, error) {
	var def table.TableDefinition
	if params.TableName == nil || !tableNamePattern.MatchString(*params.TableName) {
		return def, validationError("TableName must be between 3 and 255 characters and match [a-zA-Z0-9_.-]+")
	}
	def.Name = *params.TableName

	attrKinds := make(map[string]table.KeyKind, len(params.AttributeDefinitions))
	for _, ad := range params.AttributeDefinitions {
		if ad.AttributeName == nil {
			return def, validationError("AttributeDefinitions must name every attribute")
		}
		kind := table.KeyKind(ad.AttributeType)
		switch kind {
		case table.KeyKindS, table.KeyKindN, table.KeyKindB:
		default:
			return def, validationError("Invalid attribute type %q for attribute %q", ad.AttributeType, *ad.AttributeName)
		}
		if _, dup := attrKinds[*ad.AttributeName]; dup {
			return def, validationError("Duplicate attribute definition: %s", *ad.AttributeName)
		}
		attrKinds[*ad.AttributeName] = kind
	}

	keys, err := keysFromSchema(params.KeySchema, attrKinds)
	if err != nil {
		return def, err
	}
	def.KeyDefinitions = keys

	usedAttrs := map[string]bool{keys.PartitionKey.Name: true}
	if keys.SortKey.Name != "" {
		usedAttrs[keys.SortKey.Name] = true
	}

	for _, gsi := range params.GlobalSecondaryIndexes {
		idx, err := indexFromSchema(gsi.IndexName, table.IndexKindGSI, gsi.KeySchema, gsi.Projection, attrKinds, usedAttrs)
		if err != nil {
			return def, err
		}
		def.Indexes = append(def.Indexes, idx)
	}
	for _, lsi := range params.LocalSecondaryIndexes {
		idx, err := indexFromSchema(lsi.IndexName, table.IndexKindLSI, lsi.KeySchema, lsi.Projection, attrKinds, usedAttrs)
		if err != nil {
			return def, err
		}
		def.Indexes = append(def.Indexes, idx)
	}

	for name := range attrKinds {
		if !usedAttrs[name] {
			return def, validationError("One or more parameter values were invalid: Some AttributeDefinitions are not used. Unused attribute: %s", name)
		}
	}

	if err := def.Validate(); err != nil {
		return def, validationError("%s", err)
	}
	return def, nil
}

func keysFromSchema(schema []types.KeySchemaElement, attrKinds map[string]table.KeyKind) (table.PrimaryKeyDefinition, error) {
	var keys table.PrimaryKeyDefinition
	if len(schema) == 0 || len(schema) > 2 {
		return keys, validationError("KeySchema must contain a HASH key and at most one RANGE key")
	}
	for _, elem := range schema {
		if elem.AttributeName == nil {
			return keys, validationError("KeySchema elements must name an attribute")
		}
		kind, ok := attrKinds[*elem.AttributeName]
		if !ok {
			return keys, validationError("One or more parameter values were invalid: Some index key attributes are not defined in AttributeDefinitions. Keys: [%s]", *elem.AttributeName)
		}
		def := table.KeyDef{Name: *elem.AttributeName, Kind: kind}
		switch elem.KeyType {
		case types.KeyTypeHash:
			if keys.PartitionKey.Name != "" {
				return keys, validationError("KeySchema must contain exactly one HASH key")
			}
			keys.PartitionKey = def
		case types.KeyTypeRange:
			if keys.SortKey.Name != "" {
				return keys, validationError("KeySchema must contain at most one RANGE key")
			}
			keys.SortKey = def
		default:
			return keys, validationError("Invalid KeyType %q", elem.KeyType)
		}
	}
	if keys.PartitionKey.Name == "" {
		return keys, validationError("KeySchema must contain a HASH key")
	}
	return keys, nil
}

func indexFromSchema(name *string, kind table.IndexKind, schema []types.KeySchemaElement, projection *types.Projection, attrKinds map[string]table.KeyKind, usedAttrs map[string]bool) (table.IndexDefinition, error) {
	var idx table.IndexDefinition
	if name == nil || !tableNamePattern.MatchString(*name) {
		return idx, validationError("IndexName must be between 3 and 255 characters and match [a-zA-Z0-9_.-]+")
	}
	idx.Name = *name
	idx.Kind = kind

	keys, err := keysFromSchema(schema, attrKinds)
	if err != nil {
		return idx, err
	}
	idx.KeyDefinitions = keys
	usedAttrs[keys.PartitionKey.Name] = true
	if keys.SortKey.Name != "" {
		usedAttrs[keys.SortKey.Name] = true
	}

	if projection == nil {
		return idx, validationError("Indexes must declare a Projection")
	}
	switch projection.ProjectionType {
	case types.ProjectionTypeAll:
		idx.Projection = table.Projection{Kind: table.ProjectAll}
	case types.ProjectionTypeKeysOnly:
		idx.Projection = table.Projection{Kind: table.ProjectKeysOnly}
	case types.ProjectionTypeInclude:
		idx.Projection = table.Projection{
			Kind:             table.ProjectInclude,
			NonKeyAttributes: projection.NonKeyAttributes,
		}
	default:
		return idx, validationError("Invalid ProjectionType %q", projection.ProjectionType)
	}
	return idx, nil
}

func keySchemaFor(keys table.PrimaryKeyDefinition) []types.KeySchemaElement {
	schema := []types.KeySchemaElement{{
		AttributeName: aws.String(keys.PartitionKey.Name),
		KeyType:       types.KeyTypeHash,
	}}
	if keys.SortKey.Name != "" {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(keys.SortKey.Name),
			KeyType:       types.KeyTypeRange,
		})
	}
	return schema
}

func attributeDefinitionsFor(def table.TableDefinition) []types.AttributeDefinition {
	seen := make(map[string]bool)
	var defs []types.AttributeDefinition
	add := func(kd table.KeyDef) {
		if kd.Name == "" || seen[kd.Name] {
			return
		}
		seen[kd.Name] = true
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(kd.Name),
			AttributeType: types.ScalarAttributeType(kd.Kind),
		})
	}
	add(def.KeyDefinitions.PartitionKey)
	add(def.KeyDefinitions.SortKey)
	for _, idx := range def.Indexes {
		add(idx.KeyDefinitions.PartitionKey)
		add(idx.KeyDefinitions.SortKey)
	}
	return defs
}

func projectionFor(p table.Projection) *types.Projection {
	out := &types.Projection{}
	switch p.Kind {
	case table.ProjectAll:
		out.ProjectionType = types.ProjectionTypeAll
	case table.ProjectKeysOnly:
		out.ProjectionType = types.ProjectionTypeKeysOnly
	case table.ProjectInclude:
		out.ProjectionType = types.ProjectionTypeInclude
		out.NonKeyAttributes = p.NonKeyAttributes
	}
	return out
}

// describe renders the table the way DescribeTable reports it.
func (t *storeTable) describe() *types.TableDescription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.describeLocked()
}

func (t *storeTable) describeLocked() *types.TableDescription {
	def := t.def

	desc := &types.TableDescription{
		TableName:            aws.String(def.Name),
		TableId:              aws.String(t.id),
		TableArn:             aws.String(t.arn),
		TableStatus:          types.TableStatusActive,
		CreationDateTime:     aws.Time(t.created),
		KeySchema:            keySchemaFor(def.KeyDefinitions),
		AttributeDefinitions: attributeDefinitionsFor(def),
		ItemCount:            aws.Int64(t.itemCount.Load()),
		TableSizeBytes:       aws.Int64(t.sizeBytes.Load()),
	}
	for _, def := range def.Indexes {
		idx, ok := t.indexes[def.Name]
		if !ok {
			continue
		}
		arn := aws.String(fmt.Sprintf("%s/index/%s", t.arn, def.Name))
		switch def.Kind {
		case table.IndexKindGSI:
			desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
				IndexName:      aws.String(def.Name),
				IndexArn:       arn,
				IndexStatus:    types.IndexStatusActive,
				KeySchema:      keySchemaFor(def.KeyDefinitions),
				Projection:     projectionFor(def.Projection),
				ItemCount:      aws.Int64(idx.itemCount.Load()),
				IndexSizeBytes: aws.Int64(idx.sizeBytes.Load()),
			})
		case table.IndexKindLSI:
			desc.LocalSecondaryIndexes = append(desc.LocalSecondaryIndexes, types.LocalSecondaryIndexDescription{
				IndexName:      aws.String(def.Name),
				IndexArn:       arn,
				KeySchema:      keySchemaFor(def.KeyDefinitions),
				Projection:     projectionFor(def.Projection),
				ItemCount:      aws.Int64(idx.itemCount.Load()),
				IndexSizeBytes: aws.Int64(idx.sizeBytes.Load()),
			})
		}
	}
	return desc
}
