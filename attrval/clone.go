package attrval

import "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

// CloneItem deep-copies an item so callers can mutate the copy freely.
func CloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for name, val := range item {
		out[name] = CloneValue(val)
	}
	return out
}

// CloneValue deep-copies a single attribute value.
func CloneValue(val types.AttributeValue) types.AttributeValue {
	switch v := val.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: v.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: v.Value}
	case *types.AttributeValueMemberB:
		b := make([]byte, len(v.Value))
		copy(b, v.Value)
		return &types.AttributeValueMemberB{Value: b}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: v.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: v.Value}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), v.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), v.Value...)}
	case *types.AttributeValueMemberBS:
		members := make([][]byte, len(v.Value))
		for i, m := range v.Value {
			members[i] = append([]byte(nil), m...)
		}
		return &types.AttributeValueMemberBS{Value: members}
	case *types.AttributeValueMemberL:
		elems := make([]types.AttributeValue, len(v.Value))
		for i, m := range v.Value {
			elems[i] = CloneValue(m)
		}
		return &types.AttributeValueMemberL{Value: elems}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: CloneItem(v.Value)}
	}
	return val
}
