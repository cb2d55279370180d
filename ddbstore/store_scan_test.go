package ddbstore

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMany(t *testing.T, s *Store, n int) []string {
	t.Helper()
	var keys []string
	for i := 0; i < n; i++ {
		pk := fmt.Sprintf("user-%02d", i%7)
		sk := fmt.Sprintf("order-%03d", i)
		mustPut(t, s, order(pk, sk, "open", i))
		keys = append(keys, pk+"/"+sk)
	}
	sort.Strings(keys)
	return keys
}

func scannedKeys(items []map[string]types.AttributeValue) []string {
	var out []string
	for _, item := range items {
		pk := item["pk"].(*types.AttributeValueMemberS).Value
		sk := item["sk"].(*types.AttributeValueMemberS).Value
		out = append(out, pk+"/"+sk)
	}
	return out
}

func TestScan(t *testing.T) {
	ctx := context.Background()

	t.Run("visits every item", func(t *testing.T) {
		s := newTestStore(t)
		want := seedMany(t, s, 20)
		out, err := s.Scan(ctx, &dynamodb.ScanInput{TableName: ptrStr("orders")})
		require.NoError(t, err)
		got := scannedKeys(out.Items)
		sort.Strings(got)
		assert.Equal(t, want, got)
		assert.Equal(t, int32(20), out.Count)
		assert.Equal(t, int32(20), out.ScannedCount)
	})

	t.Run("pagination is complete and non-overlapping", func(t *testing.T) {
		s := newTestStore(t)
		want := seedMany(t, s, 23)
		var got []string
		var start map[string]types.AttributeValue
		pages := 0
		for {
			out, err := s.Scan(ctx, &dynamodb.ScanInput{
				TableName:         ptrStr("orders"),
				Limit:             int32Ptr(5),
				ExclusiveStartKey: start,
			})
			require.NoError(t, err)
			got = append(got, scannedKeys(out.Items)...)
			pages++
			require.Less(t, pages, 50)
			if out.LastEvaluatedKey == nil {
				break
			}
			start = out.LastEvaluatedKey
		}
		sort.Strings(got)
		assert.Equal(t, want, got)
	})

	t.Run("segments partition the key space", func(t *testing.T) {
		s := newTestStore(t)
		want := seedMany(t, s, 30)
		total := int32(4)
		var got []string
		for seg := int32(0); seg < total; seg++ {
			out, err := s.Scan(ctx, &dynamodb.ScanInput{
				TableName:     ptrStr("orders"),
				Segment:       &seg,
				TotalSegments: &total,
			})
			require.NoError(t, err)
			got = append(got, scannedKeys(out.Items)...)
		}
		sort.Strings(got)
		assert.Equal(t, want, got)
	})

	t.Run("filter may reference key attributes", func(t *testing.T) {
		s := newTestStore(t)
		seedMany(t, s, 10)
		out, err := s.Scan(ctx, &dynamodb.ScanInput{
			TableName:        ptrStr("orders"),
			FilterExpression: ptrStr("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "user-00"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(10), out.ScannedCount)
		for _, item := range out.Items {
			assert.Equal(t, "user-00", item["pk"].(*types.AttributeValueMemberS).Value)
		}
	})

	t.Run("scan an index", func(t *testing.T) {
		s := newTestStore(t)
		mustPut(t, s, order("a", "1", "open", 1))
		mustPut(t, s, order("b", "1", "closed", 2))
		item := order("c", "1", "open", 3)
		delete(item, "status")
		mustPut(t, s, item)

		out, err := s.Scan(ctx, &dynamodb.ScanInput{
			TableName: ptrStr("orders"),
			IndexName: ptrStr("by-status"),
		})
		require.NoError(t, err)
		// The item without a status attribute is not in the index.
		assert.Equal(t, int32(2), out.Count)
	})

	t.Run("segment validation", func(t *testing.T) {
		s := newTestStore(t)
		seg, total := int32(3), int32(2)
		_, err := s.Scan(ctx, &dynamodb.ScanInput{
			TableName:     ptrStr("orders"),
			Segment:       &seg,
			TotalSegments: &total,
		})
		var ve *ValidationException
		require.ErrorAs(t, err, &ve)

		_, err = s.Scan(ctx, &dynamodb.ScanInput{
			TableName: ptrStr("orders"),
			Segment:   &seg,
		})
		require.ErrorAs(t, err, &ve)

		_, err = s.Scan(ctx, &dynamodb.ScanInput{
			TableName:     ptrStr("orders"),
			TotalSegments: &total,
		})
		require.ErrorAs(t, err, &ve)
	})

	t.Run("select count", func(t *testing.T) {
		s := newTestStore(t)
		seedMany(t, s, 6)
		out, err := s.Scan(ctx, &dynamodb.ScanInput{
			TableName: ptrStr("orders"),
			Select:    types.SelectCount,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(6), out.Count)
		assert.Nil(t, out.Items)
	})
}
