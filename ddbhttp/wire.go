package ddbhttp

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Wire shapes for the table schema fragments shared by CreateTable,
// UpdateTable and the description outputs.

type wireAttributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

type wireKeySchemaElement struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

type wireProjection struct {
	ProjectionType   string   `json:"ProjectionType,omitempty"`
	NonKeyAttributes []string `json:"NonKeyAttributes,omitempty"`
}

type wireIndexSchema struct {
	IndexName  string                 `json:"IndexName"`
	KeySchema  []wireKeySchemaElement `json:"KeySchema"`
	Projection *wireProjection        `json:"Projection,omitempty"`
}

func attributeDefinitionsIn(defs []wireAttributeDefinition) []types.AttributeDefinition {
	out := make([]types.AttributeDefinition, len(defs))
	for i, d := range defs {
		out[i] = types.AttributeDefinition{
			AttributeName: aws.String(d.AttributeName),
			AttributeType: types.ScalarAttributeType(d.AttributeType),
		}
	}
	return out
}

func keySchemaIn(schema []wireKeySchemaElement) []types.KeySchemaElement {
	out := make([]types.KeySchemaElement, len(schema))
	for i, e := range schema {
		out[i] = types.KeySchemaElement{
			AttributeName: aws.String(e.AttributeName),
			KeyType:       types.KeyType(e.KeyType),
		}
	}
	return out
}

func projectionIn(p *wireProjection) *types.Projection {
	if p == nil {
		return nil
	}
	return &types.Projection{
		ProjectionType:   types.ProjectionType(p.ProjectionType),
		NonKeyAttributes: p.NonKeyAttributes,
	}
}

func attributeDefinitionsOut(defs []types.AttributeDefinition) []wireAttributeDefinition {
	out := make([]wireAttributeDefinition, len(defs))
	for i, d := range defs {
		out[i] = wireAttributeDefinition{
			AttributeName: aws.ToString(d.AttributeName),
			AttributeType: string(d.AttributeType),
		}
	}
	return out
}

func keySchemaOut(schema []types.KeySchemaElement) []wireKeySchemaElement {
	out := make([]wireKeySchemaElement, len(schema))
	for i, e := range schema {
		out[i] = wireKeySchemaElement{
			AttributeName: aws.ToString(e.AttributeName),
			KeyType:       string(e.KeyType),
		}
	}
	return out
}

func projectionOut(p *types.Projection) *wireProjection {
	if p == nil {
		return nil
	}
	return &wireProjection{
		ProjectionType:   string(p.ProjectionType),
		NonKeyAttributes: p.NonKeyAttributes,
	}
}

type wireIndexDescription struct {
	IndexName      string                 `json:"IndexName"`
	KeySchema      []wireKeySchemaElement `json:"KeySchema"`
	Projection     *wireProjection        `json:"Projection,omitempty"`
	IndexStatus    string                 `json:"IndexStatus,omitempty"`
	IndexArn       string                 `json:"IndexArn,omitempty"`
	ItemCount      int64                  `json:"ItemCount"`
	IndexSizeBytes int64                  `json:"IndexSizeBytes"`
}

type wireTableDescription struct {
	TableName              string                    `json:"TableName"`
	TableStatus            string                    `json:"TableStatus"`
	TableArn               string                    `json:"TableArn,omitempty"`
	TableId                string                    `json:"TableId,omitempty"`
	CreationDateTime       float64                   `json:"CreationDateTime,omitempty"`
	AttributeDefinitions   []wireAttributeDefinition `json:"AttributeDefinitions,omitempty"`
	KeySchema              []wireKeySchemaElement    `json:"KeySchema,omitempty"`
	ItemCount              int64                     `json:"ItemCount"`
	TableSizeBytes         int64                     `json:"TableSizeBytes"`
	GlobalSecondaryIndexes []wireIndexDescription    `json:"GlobalSecondaryIndexes,omitempty"`
	LocalSecondaryIndexes  []wireIndexDescription    `json:"LocalSecondaryIndexes,omitempty"`
}

func tableDescriptionOut(desc *types.TableDescription) *wireTableDescription {
	if desc == nil {
		return nil
	}
	out := &wireTableDescription{
		TableName:            aws.ToString(desc.TableName),
		TableStatus:          string(desc.TableStatus),
		TableArn:             aws.ToString(desc.TableArn),
		TableId:              aws.ToString(desc.TableId),
		AttributeDefinitions: attributeDefinitionsOut(desc.AttributeDefinitions),
		KeySchema:            keySchemaOut(desc.KeySchema),
		ItemCount:            aws.ToInt64(desc.ItemCount),
		TableSizeBytes:       aws.ToInt64(desc.TableSizeBytes),
	}
	if desc.CreationDateTime != nil {
		out.CreationDateTime = float64(desc.CreationDateTime.UnixMilli()) / 1000
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		out.GlobalSecondaryIndexes = append(out.GlobalSecondaryIndexes, wireIndexDescription{
			IndexName:      aws.ToString(gsi.IndexName),
			KeySchema:      keySchemaOut(gsi.KeySchema),
			Projection:     projectionOut(gsi.Projection),
			IndexStatus:    string(gsi.IndexStatus),
			IndexArn:       aws.ToString(gsi.IndexArn),
			ItemCount:      aws.ToInt64(gsi.ItemCount),
			IndexSizeBytes: aws.ToInt64(gsi.IndexSizeBytes),
		})
	}
	for _, lsi := range desc.LocalSecondaryIndexes {
		out.LocalSecondaryIndexes = append(out.LocalSecondaryIndexes, wireIndexDescription{
			IndexName:      aws.ToString(lsi.IndexName),
			KeySchema:      keySchemaOut(lsi.KeySchema),
			Projection:     projectionOut(lsi.Projection),
			IndexArn:       aws.ToString(lsi.IndexArn),
			ItemCount:      aws.ToInt64(lsi.ItemCount),
			IndexSizeBytes: aws.ToInt64(lsi.IndexSizeBytes),
		})
	}
	return out
}
