package ddbstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func ptrStr(s string) *string { return &s }

// newTestStore creates a store with an "orders" table: pk "pk" (S), sk
// "sk" (S), a GSI "by-status" on "status" (S) / "sk" (S) projecting all
// attributes, and an LSI "by-amount" on "pk" / "amount" (N).
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	_, err := s.CreateTable(context.Background(), &dynamodb.CreateTableInput{
		TableName: ptrStr("orders"),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: ptrStr("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: ptrStr("status"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: ptrStr("amount"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: ptrStr("sk"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: ptrStr("by-status"),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("status"), KeyType: types.KeyTypeHash},
				{AttributeName: ptrStr("sk"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
		LocalSecondaryIndexes: []types.LocalSecondaryIndex{{
			IndexName: ptrStr("by-amount"),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
				{AttributeName: ptrStr("amount"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
		}},
	})
	require.NoError(t, err)
	return s
}

// order builds a test item. status and amount feed the indexes.
func order(pk, sk, status string, amount int) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
	if status != "" {
		item["status"] = &types.AttributeValueMemberS{Value: status}
	}
	if amount >= 0 {
		item["amount"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", amount)}
	}
	return item
}

func orderKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func mustPut(t *testing.T, s *Store, item map[string]types.AttributeValue) {
	t.Helper()
	_, err := s.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: ptrStr("orders"),
		Item:      item,
	})
	require.NoError(t, err)
}

func getOrder(t *testing.T, s *Store, pk, sk string) map[string]types.AttributeValue {
	t.Helper()
	out, err := s.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: ptrStr("orders"),
		Key:       orderKey(pk, sk),
	})
	require.NoError(t, err)
	return out.Item
}

func int32Ptr(v int32) *int32 { return aws.Int32(v) }
