package attrval

import "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

// MaxItemSize is the 400 KiB item size cap.
const MaxItemSize = 400 * 1024

// ItemSize computes the billed byte size of an item: attribute name bytes
// plus the value size for each attribute.
func ItemSize(item map[string]types.AttributeValue) int {
	size := 0
	for name, val := range item {
		size += len(name) + ValueSize(val)
	}
	return size
}

// ValueSize computes the byte size of a single attribute value. Strings and
// binaries count raw bytes, numbers roughly two digits per byte plus one,
// lists and maps carry 3 bytes of overhead plus 1 byte per entry.
func ValueSize(val types.AttributeValue) int {
	switch v := val.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value)
	case *types.AttributeValueMemberN:
		return (len(v.Value)+1)/2 + 1
	case *types.AttributeValueMemberB:
		return len(v.Value)
	case *types.AttributeValueMemberBOOL, *types.AttributeValueMemberNULL:
		return 1
	case *types.AttributeValueMemberSS:
		size := 0
		for _, s := range v.Value {
			size += len(s)
		}
		return size
	case *types.AttributeValueMemberNS:
		size := 0
		for _, n := range v.Value {
			size += (len(n)+1)/2 + 1
		}
		return size
	case *types.AttributeValueMemberBS:
		size := 0
		for _, b := range v.Value {
			size += len(b)
		}
		return size
	case *types.AttributeValueMemberL:
		size := 3
		for _, elem := range v.Value {
			size += 1 + ValueSize(elem)
		}
		return size
	case *types.AttributeValueMemberM:
		size := 3
		for name, elem := range v.Value {
			size += len(name) + 1 + ValueSize(elem)
		}
		return size
	}
	return 0
}

// CollectionSize is the value returned by the size() expression function:
// byte length for scalars, element count for sets, lists and maps.
func CollectionSize(val types.AttributeValue) (int, bool) {
	switch v := val.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value), true
	case *types.AttributeValueMemberB:
		return len(v.Value), true
	case *types.AttributeValueMemberSS:
		return len(v.Value), true
	case *types.AttributeValueMemberNS:
		return len(v.Value), true
	case *types.AttributeValueMemberBS:
		return len(v.Value), true
	case *types.AttributeValueMemberL:
		return len(v.Value), true
	case *types.AttributeValueMemberM:
		return len(v.Value), true
	}
	return 0, false
}
