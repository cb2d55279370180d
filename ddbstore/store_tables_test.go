package ddbstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTable(t *testing.T) {
	ctx := context.Background()

	t.Run("describes the new table", func(t *testing.T) {
		s := newTestStore(t)
		out, err := s.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: ptrStr("orders")})
		require.NoError(t, err)
		desc := out.Table
		assert.Equal(t, "orders", *desc.TableName)
		assert.Equal(t, types.TableStatusActive, desc.TableStatus)
		assert.Contains(t, *desc.TableArn, "table/orders")
		assert.NotEmpty(t, *desc.TableId)
		require.Len(t, desc.GlobalSecondaryIndexes, 1)
		assert.Equal(t, "by-status", *desc.GlobalSecondaryIndexes[0].IndexName)
		assert.Contains(t, *desc.GlobalSecondaryIndexes[0].IndexArn, "table/orders/index/by-status")
		assert.Equal(t, types.ProjectionTypeAll, desc.GlobalSecondaryIndexes[0].Projection.ProjectionType)
		require.Len(t, desc.LocalSecondaryIndexes, 1)
		assert.Equal(t, types.ProjectionTypeKeysOnly, desc.LocalSecondaryIndexes[0].Projection.ProjectionType)
		assert.Equal(t, int64(0), *desc.ItemCount)
	})

	t.Run("region names the table arn", func(t *testing.T) {
		s := New(WithRegion("eu-west-1"))
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr("plain"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
			},
		})
		require.NoError(t, err)
		out, err := s.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: ptrStr("plain")})
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:dynamodb:eu-west-1:000000000000:table/plain", *out.Table.TableArn)
	})

	t.Run("duplicate name", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr("orders"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
			},
		})
		var inUse *types.ResourceInUseException
		require.ErrorAs(t, err, &inUse)
	})

	t.Run("key attribute missing from definitions", func(t *testing.T) {
		s := New()
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr("bad"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("other"), KeyType: types.KeyTypeHash},
			},
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)
	})

	t.Run("unused attribute definition", func(t *testing.T) {
		s := New()
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr("bad"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: ptrStr("unused"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
			},
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Message, "unused")
	})
}

func TestDeleteTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	out, err := s.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: ptrStr("orders")})
	require.NoError(t, err)
	assert.Equal(t, "orders", *out.TableDescription.TableName)

	_, err = s.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: ptrStr("orders")})
	var notFound *types.ResourceNotFoundException
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, *notFound.Message, "Table: orders not found")

	_, err = s.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: ptrStr("orders")})
	require.Error(t, err)
}

func TestListTables(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr(fmt.Sprintf("table-%d", i)),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
			},
		})
		require.NoError(t, err)
	}

	t.Run("sorted names", func(t *testing.T) {
		out, err := s.ListTables(ctx, &dynamodb.ListTablesInput{})
		require.NoError(t, err)
		assert.Equal(t, []string{"table-0", "table-1", "table-2", "table-3", "table-4"}, out.TableNames)
		assert.Nil(t, out.LastEvaluatedTableName)
	})

	t.Run("paginates", func(t *testing.T) {
		out, err := s.ListTables(ctx, &dynamodb.ListTablesInput{Limit: int32Ptr(2)})
		require.NoError(t, err)
		assert.Equal(t, []string{"table-0", "table-1"}, out.TableNames)
		require.NotNil(t, out.LastEvaluatedTableName)
		assert.Equal(t, "table-1", *out.LastEvaluatedTableName)

		out, err = s.ListTables(ctx, &dynamodb.ListTablesInput{
			Limit:                   int32Ptr(3),
			ExclusiveStartTableName: out.LastEvaluatedTableName,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"table-2", "table-3", "table-4"}, out.TableNames)
		assert.Nil(t, out.LastEvaluatedTableName)
	})

	t.Run("limit bounds", func(t *testing.T) {
		_, err := s.ListTables(ctx, &dynamodb.ListTablesInput{Limit: int32Ptr(0)})
		require.Error(t, err)
	})
}

func TestUpdateTable(t *testing.T) {
	ctx := context.Background()

	t.Run("creating an index backfills existing items", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		mustPut(t, s, order("u1", "b", "closed", 20))
		mustPut(t, s, order("u2", "c", "open", 30))

		_, err := s.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName: ptrStr("orders"),
			GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{{
				Create: &types.CreateGlobalSecondaryIndexAction{
					IndexName: ptrStr("by-amount-global"),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: ptrStr("amount"), KeyType: types.KeyTypeHash},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
				},
			}},
		})
		require.NoError(t, err)

		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			IndexName:              ptrStr("by-amount-global"),
			KeyConditionExpression: ptrStr("amount = :a"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":a": &types.AttributeValueMemberN{Value: "20"},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 1)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "b"}, out.Items[0]["sk"])
	})

	t.Run("deleting an index removes it", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName: ptrStr("orders"),
			GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{{
				Delete: &types.DeleteGlobalSecondaryIndexAction{IndexName: ptrStr("by-status")},
			}},
		})
		require.NoError(t, err)

		_, err = s.Query(ctx, &dynamodb.QueryInput{
			TableName:                ptrStr("orders"),
			IndexName:                ptrStr("by-status"),
			KeyConditionExpression:   ptrStr("#s = :s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: "open"},
			},
		})
		require.Error(t, err)
		assert.True(t, errors.As(err, new(*ValidationException)))
	})
}
