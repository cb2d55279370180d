// Package ddbhttp exposes a store over the DynamoDB wire protocol: a single
// POST endpoint dispatching on the X-Amz-Target header, with request and
// response bodies in DynamoDB JSON (application/x-amz-json-1.0).
package ddbhttp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Value wraps an attribute value for wire encoding. DynamoDB JSON renders a
// value as a single-key object naming the type: {"S": "abc"}, {"N": "1.5"},
// {"L": [...]}. Binary payloads travel base64 encoded.
type Value struct {
	AV types.AttributeValue
}

// Item is an attribute map in wire form.
type Item map[string]Value

func wireItem(item map[string]types.AttributeValue) Item {
	if item == nil {
		return nil
	}
	out := make(Item, len(item))
	for name, av := range item {
		out[name] = Value{AV: av}
	}
	return out
}

func storeItem(item Item) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		out[name] = v.AV
	}
	return out
}

func wireItems(items []map[string]types.AttributeValue) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = wireItem(item)
	}
	return out
}

func storeKeys(keys []Item) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, key := range keys {
		out[i] = storeItem(key)
	}
	return out
}

func (v Value) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 1)
	switch av := v.AV.(type) {
	case *types.AttributeValueMemberS:
		body["S"] = av.Value
	case *types.AttributeValueMemberN:
		body["N"] = av.Value
	case *types.AttributeValueMemberB:
		body["B"] = base64.StdEncoding.EncodeToString(av.Value)
	case *types.AttributeValueMemberBOOL:
		body["BOOL"] = av.Value
	case *types.AttributeValueMemberNULL:
		body["NULL"] = av.Value
	case *types.AttributeValueMemberSS:
		body["SS"] = av.Value
	case *types.AttributeValueMemberNS:
		body["NS"] = av.Value
	case *types.AttributeValueMemberBS:
		encoded := make([]string, len(av.Value))
		for i, b := range av.Value {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		body["BS"] = encoded
	case *types.AttributeValueMemberL:
		list := make([]Value, len(av.Value))
		for i, elem := range av.Value {
			list[i] = Value{AV: elem}
		}
		body["L"] = list
	case *types.AttributeValueMemberM:
		body["M"] = wireItem(av.Value)
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v.AV)
	}
	return json.Marshal(body)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	if len(body) != 1 {
		return fmt.Errorf("attribute value must have exactly one type key, got %d", len(body))
	}
	for typeKey, raw := range body {
		av, err := decodeValue(typeKey, raw)
		if err != nil {
			return err
		}
		v.AV = av
	}
	return nil
}

func decodeValue(typeKey string, raw json.RawMessage) (types.AttributeValue, error) {
	switch typeKey {
	case "S":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case "N":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: s}, nil
	case "B":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 in B value: %w", err)
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	case "BOOL":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberBOOL{Value: b}, nil
	case "NULL":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberNULL{Value: b}, nil
	case "SS":
		var ss []string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberSS{Value: ss}, nil
	case "NS":
		var ns []string
		if err := json.Unmarshal(raw, &ns); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberNS{Value: ns}, nil
	case "BS":
		var encoded []string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		bs := make([][]byte, len(encoded))
		for i, s := range encoded {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 in BS value: %w", err)
			}
			bs[i] = b
		}
		return &types.AttributeValueMemberBS{Value: bs}, nil
	case "L":
		var list []Value
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		elems := make([]types.AttributeValue, len(list))
		for i, v := range list {
			elems[i] = v.AV
		}
		return &types.AttributeValueMemberL{Value: elems}, nil
	case "M":
		var m Item
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: storeItem(m)}, nil
	}
	return nil, fmt.Errorf("unknown attribute value type key %q", typeKey)
}
