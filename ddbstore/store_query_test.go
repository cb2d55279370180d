package ddbstore

import (
	"context"
	"testing"

	sdkexpression "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrders(t *testing.T, s *Store) {
	t.Helper()
	mustPut(t, s, order("u1", "2024-01", "open", 10))
	mustPut(t, s, order("u1", "2024-02", "open", 20))
	mustPut(t, s, order("u1", "2024-03", "closed", 30))
	mustPut(t, s, order("u1", "2025-01", "closed", 40))
	mustPut(t, s, order("u2", "2024-01", "open", 50))
}

func skValues(items []map[string]types.AttributeValue) []string {
	var out []string
	for _, item := range items {
		out = append(out, item["sk"].(*types.AttributeValueMemberS).Value)
	}
	return out
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("partition equality only", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01", "2024-02", "2024-03", "2025-01"}, skValues(out.Items))
		assert.Equal(t, int32(4), out.Count)
		assert.Equal(t, int32(4), out.ScannedCount)
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("sort key range", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk AND sk BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
				":lo": &types.AttributeValueMemberS{Value: "2024-02"},
				":hi": &types.AttributeValueMemberS{Value: "2024-12"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02", "2024-03"}, skValues(out.Items))
	})

	t.Run("begins_with", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk AND begins_with(sk, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
				":p":  &types.AttributeValueMemberS{Value: "2024-"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, skValues(out.Items))
	})

	t.Run("descending", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		forward := false
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk AND sk < :hi"),
			ScanIndexForward:       &forward,
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
				":hi": &types.AttributeValueMemberS{Value: "2025"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03", "2024-02", "2024-01"}, skValues(out.Items))
	})

	t.Run("pagination walks the whole partition", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		var got []string
		var start map[string]types.AttributeValue
		for {
			out, err := s.Query(ctx, &dynamodb.QueryInput{
				TableName:              ptrStr("orders"),
				KeyConditionExpression: ptrStr("pk = :pk"),
				Limit:                  int32Ptr(2),
				ExclusiveStartKey:      start,
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: "u1"},
				},
			})
			require.NoError(t, err)
			require.LessOrEqual(t, len(out.Items), 2)
			got = append(got, skValues(out.Items)...)
			if out.LastEvaluatedKey == nil {
				break
			}
			start = out.LastEvaluatedKey
		}
		assert.Equal(t, []string{"2024-01", "2024-02", "2024-03", "2025-01"}, got)
	})

	t.Run("filter counts scanned separately", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:                ptrStr("orders"),
			KeyConditionExpression:   ptrStr("pk = :pk"),
			FilterExpression:         ptrStr("#s = :open"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: "u1"},
				":open": &types.AttributeValueMemberS{Value: "open"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), out.Count)
		assert.Equal(t, int32(4), out.ScannedCount)
		assert.Equal(t, []string{"2024-01", "2024-02"}, skValues(out.Items))
	})

	t.Run("filter cannot reference key attributes", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			FilterExpression:       ptrStr("sk > :x"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
				":x":  &types.AttributeValueMemberS{Value: "a"},
			},
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Message, "non-primary key attributes")
	})

	t.Run("select count", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			Select:                 types.SelectCount,
			KeyConditionExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(4), out.Count)
		assert.Nil(t, out.Items)
	})

	t.Run("projection expression", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			ProjectionExpression:   ptrStr("amount"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "u1"},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 4)
		for _, item := range out.Items {
			assert.Len(t, item, 1)
			assert.Contains(t, item, "amount")
		}
	})

	t.Run("query a global index", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
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
		assert.Equal(t, []string{"2024-01", "2024-01", "2024-02"}, skValues(out.Items))
	})

	t.Run("query a local index", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			IndexName:              ptrStr("by-amount"),
			KeyConditionExpression: ptrStr("pk = :pk AND amount >= :min"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":  &types.AttributeValueMemberS{Value: "u1"},
				":min": &types.AttributeValueMemberN{Value: "25"},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 2)
		// KEYS_ONLY projection: table and index keys only.
		for _, item := range out.Items {
			assert.Len(t, item, 3)
		}
	})

	t.Run("index pagination carries both key sets", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:                ptrStr("orders"),
			IndexName:                ptrStr("by-status"),
			Limit:                    int32Ptr(1),
			KeyConditionExpression:   ptrStr("#s = :s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: "open"},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, out.LastEvaluatedKey)
		assert.Contains(t, out.LastEvaluatedKey, "pk")
		assert.Contains(t, out.LastEvaluatedKey, "sk")
		assert.Contains(t, out.LastEvaluatedKey, "status")

		next, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:                ptrStr("orders"),
			IndexName:                ptrStr("by-status"),
			ExclusiveStartKey:        out.LastEvaluatedKey,
			KeyConditionExpression:   ptrStr("#s = :s"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: "open"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), next.Count)
	})

	t.Run("accepts SDK-built expressions", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		keyCond := sdkexpression.Key("pk").Equal(sdkexpression.Value("u1")).
			And(sdkexpression.Key("sk").BeginsWith("2024-"))
		filter := sdkexpression.Name("status").Equal(sdkexpression.Value("open"))
		expr, err := sdkexpression.NewBuilder().
			WithKeyCondition(keyCond).
			WithFilter(filter).
			Build()
		require.NoError(t, err)

		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:                 ptrStr("orders"),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01", "2024-02"}, skValues(out.Items))
	})

	t.Run("unknown partition", func(t *testing.T) {
		s := newTestStore(t)
		seedOrders(t, s)
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "nobody"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(0), out.Count)
		assert.Empty(t, out.Items)
	})

	t.Run("key condition errors", func(t *testing.T) {
		s := newTestStore(t)
		for name, expr := range map[string]string{
			"no partition key":       "sk = :v",
			"not equals on pk":       "pk <> :v",
			"non-key attribute":      "pk = :v AND amount > :v",
			"OR":                     "pk = :v OR sk = :v",
			"range on partition key": "pk > :v",
		} {
			_, err := s.Query(ctx, &dynamodb.QueryInput{
				TableName:              ptrStr("orders"),
				KeyConditionExpression: ptrStr(expr),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberS{Value: "x"},
				},
			})
			var ve *ValidationException
			require.ErrorAs(t, err, &ve, name)
		}
	})

	t.Run("value type must match key type", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("orders"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberN{Value: "1"},
			},
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Message, "does not match schema type")
	})

	t.Run("numeric sort keys order numerically", func(t *testing.T) {
		s := New()
		_, err := s.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: ptrStr("scores"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptrStr("pk"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: ptrStr("score"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptrStr("pk"), KeyType: types.KeyTypeHash},
				{AttributeName: ptrStr("score"), KeyType: types.KeyTypeRange},
			},
		})
		require.NoError(t, err)
		for _, score := range []string{"100", "9", "-5", "10.5"} {
			_, err := s.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: ptrStr("scores"),
				Item: map[string]types.AttributeValue{
					"pk":    &types.AttributeValueMemberS{Value: "p"},
					"score": &types.AttributeValueMemberN{Value: score},
				},
			})
			require.NoError(t, err)
		}
		out, err := s.Query(ctx, &dynamodb.QueryInput{
			TableName:              ptrStr("scores"),
			KeyConditionExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "p"},
			},
		})
		require.NoError(t, err)
		var got []string
		for _, item := range out.Items {
			got = append(got, item["score"].(*types.AttributeValueMemberN).Value)
		}
		assert.Equal(t, []string{"-5", "9", "10.5", "100"}, got)
	})
}
