package ddbhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dynalocal/dynalocal/ddbstore"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	handler := NewHandler(ddbstore.New())
	createBody := map[string]any{
		"TableName": "notes",
		"AttributeDefinitions": []map[string]string{
			{"AttributeName": "pk", "AttributeType": "S"},
			{"AttributeName": "sk", "AttributeType": "S"},
		},
		"KeySchema": []map[string]string{
			{"AttributeName": "pk", "KeyType": "HASH"},
			{"AttributeName": "sk", "KeyType": "RANGE"},
		},
	}
	rec := call(t, handler, "CreateTable", createBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return handler
}

func call(t *testing.T, handler http.Handler, action string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", targetPrefix+"."+action)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type note struct {
	PK   string `dynamodbav:"pk"`
	SK   string `dynamodbav:"sk"`
	Text string `dynamodbav:"text"`
	Rev  int    `dynamodbav:"rev"`
}

func putNote(t *testing.T, handler http.Handler, n note) {
	t.Helper()
	avs, err := attributevalue.MarshalMap(n)
	require.NoError(t, err)
	rec := call(t, handler, "PutItem", map[string]any{
		"TableName": "notes",
		"Item":      wireItem(avs),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestItemRoundTrip(t *testing.T) {
	handler := newTestHandler(t)
	putNote(t, handler, note{PK: "n1", SK: "a", Text: "hello", Rev: 3})

	rec := call(t, handler, "GetItem", map[string]any{
		"TableName": "notes",
		"Key": map[string]any{
			"pk": map[string]string{"S": "n1"},
			"sk": map[string]string{"S": "a"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Item Item `json:"Item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var got note
	require.NoError(t, attributevalue.UnmarshalMap(storeItem(resp.Item), &got))
	assert.Equal(t, note{PK: "n1", SK: "a", Text: "hello", Rev: 3}, got)
}

func TestQueryOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	putNote(t, handler, note{PK: "n1", SK: "a", Text: "one", Rev: 1})
	putNote(t, handler, note{PK: "n1", SK: "b", Text: "two", Rev: 2})
	putNote(t, handler, note{PK: "n2", SK: "a", Text: "other", Rev: 1})

	rec := call(t, handler, "Query", map[string]any{
		"TableName":              "notes",
		"KeyConditionExpression": "pk = :pk",
		"ExpressionAttributeValues": map[string]any{
			":pk": map[string]string{"S": "n1"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int32(2), resp.Count)
	require.Len(t, resp.Items, 2)
}

func TestErrorBodies(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("resource not found", func(t *testing.T) {
		rec := call(t, handler, "DescribeTable", map[string]any{"TableName": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		var errType string
		require.NoError(t, json.Unmarshal(body["__type"], &errType))
		assert.Equal(t, typeNS+"#ResourceNotFoundException", errType)
	})

	t.Run("conditional check failure", func(t *testing.T) {
		putNote(t, handler, note{PK: "n1", SK: "a", Text: "x", Rev: 1})
		rec := call(t, handler, "PutItem", map[string]any{
			"TableName":           "notes",
			"Item":                map[string]any{"pk": map[string]string{"S": "n1"}, "sk": map[string]string{"S": "a"}},
			"ConditionExpression": "attribute_not_exists(pk)",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		var errType string
		require.NoError(t, json.Unmarshal(body["__type"], &errType))
		assert.Equal(t, typeNS+"#ConditionalCheckFailedException", errType)
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := call(t, handler, "Teleport", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		var errType string
		require.NoError(t, json.Unmarshal(body["__type"], &errType))
		assert.Equal(t, typeNS+"#UnknownOperationException", errType)
	})

	t.Run("bad target header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{}")))
		req.Header.Set("X-Amz-Target", "nonsense")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal failure is a server error", func(t *testing.T) {
		s := &Server{store: ddbstore.New(), logger: zap.NewNop()}
		rec := httptest.NewRecorder()
		s.writeError(rec, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		var errType string
		require.NoError(t, json.Unmarshal(body["__type"], &errType))
		assert.Equal(t, typeNS+"#InternalFailure", errType)
	})
}

func TestTransactionCancellationBody(t *testing.T) {
	handler := newTestHandler(t)
	putNote(t, handler, note{PK: "n1", SK: "a", Text: "x", Rev: 1})

	rec := call(t, handler, "TransactWriteItems", map[string]any{
		"TransactItems": []map[string]any{
			{"Put": map[string]any{
				"TableName":           "notes",
				"Item":                map[string]any{"pk": map[string]string{"S": "n1"}, "sk": map[string]string{"S": "a"}},
				"ConditionExpression": "attribute_not_exists(pk)",
			}},
			{"Put": map[string]any{
				"TableName": "notes",
				"Item":      map[string]any{"pk": map[string]string{"S": "n9"}, "sk": map[string]string{"S": "z"}},
			}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Type    string `json:"__type"`
		Reasons []struct {
			Code string `json:"Code"`
		} `json:"CancellationReasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, typeNS+"#TransactionCanceledException", resp.Type)
	require.Len(t, resp.Reasons, 2)
	assert.Equal(t, "ConditionalCheckFailed", resp.Reasons[0].Code)
	assert.Equal(t, "None", resp.Reasons[1].Code)
}

func TestValueCodec(t *testing.T) {
	raw := `{"M":{"name":{"S":"a"},"n":{"N":"1.5"},"flag":{"BOOL":true},"none":{"NULL":true},` +
		`"bin":{"B":"aGk="},"set":{"SS":["x","y"]},"list":{"L":[{"N":"1"},{"S":"two"}]}}}`
	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	var back Value
	require.NoError(t, json.Unmarshal(encoded, &back))
	assert.Equal(t, v.AV, back.AV)
}

func TestValueCodecRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"two type keys":  `{"S":"a","N":"1"}`,
		"unknown type":   `{"X":"a"}`,
		"invalid base64": `{"B":"not base64!"}`,
	} {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(raw), &v), name)
	}
}
