package ddbstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()

	t.Run("set and increment", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		out, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                ptrStr("orders"),
			Key:                      orderKey("u1", "a"),
			UpdateExpression:         ptrStr("SET #s = :closed, amount = amount + :inc"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":closed": &types.AttributeValueMemberS{Value: "closed"},
				":inc":    &types.AttributeValueMemberN{Value: "5"},
			},
			ReturnValues: types.ReturnValueAllNew,
		})
		require.NoError(t, err)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "closed"}, out.Attributes["status"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "15"}, out.Attributes["amount"])
	})

	t.Run("creates an absent item", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        ptrStr("orders"),
			Key:              orderKey("u1", "new"),
			UpdateExpression: ptrStr("SET note = :n"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":n": &types.AttributeValueMemberS{Value: "hello"},
			},
		})
		require.NoError(t, err)
		item := getOrder(t, s, "u1", "new")
		require.NotNil(t, item)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "hello"}, item["note"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, item["pk"])
	})

	t.Run("updated return values", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		out, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        ptrStr("orders"),
			Key:              orderKey("u1", "a"),
			UpdateExpression: ptrStr("SET amount = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: "99"},
			},
			ReturnValues: types.ReturnValueUpdatedOld,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{
			"amount": &types.AttributeValueMemberN{Value: "10"},
		}, out.Attributes)

		out, err = s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        ptrStr("orders"),
			Key:              orderKey("u1", "a"),
			UpdateExpression: ptrStr("SET amount = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: "100"},
			},
			ReturnValues: types.ReturnValueUpdatedNew,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{
			"amount": &types.AttributeValueMemberN{Value: "100"},
		}, out.Attributes)
	})

	t.Run("old attributes are untouched by self-referencing sets", func(t *testing.T) {
		s := newTestStore(t)
		item := order("u1", "a", "open", 10)
		item["meta"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"created": &types.AttributeValueMemberS{Value: "2024-01-01"},
		}}
		mustPut(t, s, item)

		out, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        ptrStr("orders"),
			Key:              orderKey("u1", "a"),
			UpdateExpression: ptrStr("SET m2 = meta, m2.extra = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: "x"},
			},
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		oldMeta := out.Attributes["meta"].(*types.AttributeValueMemberM)
		_, leaked := oldMeta.Value["extra"]
		assert.False(t, leaked)

		got := getOrder(t, s, "u1", "a")
		m2 := got["m2"].(*types.AttributeValueMemberM)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "x"}, m2.Value["extra"])
	})

	t.Run("cannot touch key attributes", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		_, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        ptrStr("orders"),
			Key:              orderKey("u1", "a"),
			UpdateExpression: ptrStr("SET sk = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: "b"},
			},
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Message, "part of the key")
	})

	t.Run("condition failure leaves the item alone", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		_, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           ptrStr("orders"),
			Key:                 orderKey("u1", "a"),
			UpdateExpression:    ptrStr("SET amount = :v"),
			ConditionExpression: ptrStr("amount > :min"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v":   &types.AttributeValueMemberN{Value: "99"},
				":min": &types.AttributeValueMemberN{Value: "50"},
			},
		})
		var ccf *types.ConditionalCheckFailedException
		require.ErrorAs(t, err, &ccf)
		item := getOrder(t, s, "u1", "a")
		assert.Equal(t, &types.AttributeValueMemberN{Value: "10"}, item["amount"])
	})

	t.Run("index entries follow the updated key attribute", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		_, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                ptrStr("orders"),
			Key:                      orderKey("u1", "a"),
			UpdateExpression:         ptrStr("SET #s = :closed"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":closed": &types.AttributeValueMemberS{Value: "closed"},
			},
		})
		require.NoError(t, err)

		q := func(status string) int32 {
			out, err := s.Query(ctx, &dynamodb.QueryInput{
				TableName:                ptrStr("orders"),
				IndexName:                ptrStr("by-status"),
				KeyConditionExpression:   ptrStr("#s = :s"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":s": &types.AttributeValueMemberS{Value: status},
				},
			})
			require.NoError(t, err)
			return out.Count
		}
		assert.Equal(t, int32(0), q("open"))
		assert.Equal(t, int32(1), q("closed"))
	})

	t.Run("removing the index key makes the entry sparse", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("u1", "a", "open", 10))
		_, err := s.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                ptrStr("orders"),
			Key:                      orderKey("u1", "a"),
			UpdateExpression:         ptrStr("REMOVE #s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
		})
		require.NoError(t, err)

		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:                ptrStr("orders"),
			IndexName:                ptrStr("by-status"),
			KeyConditionExpression:   ptrStr("#s = :s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: "open"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(0), out.Count)
		assert.NotNil(t, getOrder(t, s, "u1", "a"))
	})
}
