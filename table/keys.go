package table

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/constraints"

	"github.com/dynalocal/dynalocal/attrval"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // zero value means the schema has no sort key
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

func (k KeyKind) valid() bool {
	return k == KeyKindS || k == KeyKindN || k == KeyKindB
}

// Key values are held as string (S and N) or []byte (B), matching the
// declared kind checked at extraction time.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// DDB renders the key back into attribute-value form, for pagination tokens
// and ReturnValues.
func (k PrimaryKey) DDB() map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{
		k.Definition.PartitionKey.Name: keyValueToAV(k.Definition.PartitionKey.Kind, k.Values.PartitionKey),
	}
	if k.Definition.SortKey.Name != "" && k.Values.SortKey != nil {
		out[k.Definition.SortKey.Name] = keyValueToAV(k.Definition.SortKey.Kind, k.Values.SortKey)
	}
	return out
}

func keyValueToAV(kind KeyKind, v any) types.AttributeValue {
	switch kind {
	case KeyKindS:
		return &types.AttributeValueMemberS{Value: v.(string)}
	case KeyKindN:
		return &types.AttributeValueMemberN{Value: v.(string)}
	case KeyKindB:
		return &types.AttributeValueMemberB{Value: v.([]byte)}
	}
	panic(fmt.Sprintf("unsupported key kind %q", kind))
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}

// EncodeKeyValue produces a stable identity string for a key value. Numbers
// are canonicalized first so "1" and "1.0" land on the same partition. The
// encoding is used for partition map keys, segment hashing and the global
// transaction lock order; sort ordering uses CompareKeyValues instead.
func EncodeKeyValue(kind KeyKind, v any) string {
	switch kind {
	case KeyKindS:
		return "S\x00" + v.(string)
	case KeyKindN:
		s := v.(string)
		if d, err := attrval.ParseDecimal(s); err == nil {
			s = d.String()
		}
		return "N\x00" + s
	case KeyKindB:
		return "B\x00" + string(v.([]byte))
	}
	panic(fmt.Sprintf("unsupported key kind %q", kind))
}

// PartitionID returns the identity string of the partition key value.
func (k PrimaryKey) PartitionID() string {
	return EncodeKeyValue(k.Definition.PartitionKey.Kind, k.Values.PartitionKey)
}

// Encode returns a stable identity string for the whole primary key.
func (k PrimaryKey) Encode() string {
	var sb strings.Builder
	sb.WriteString(k.PartitionID())
	if k.Definition.SortKey.Name != "" && k.Values.SortKey != nil {
		sb.WriteByte(0)
		sb.WriteString(EncodeKeyValue(k.Definition.SortKey.Kind, k.Values.SortKey))
	}
	return sb.String()
}

// CompareKeyValues orders two key values of the same declared kind: strings
// and binaries by byte order, numbers by numeric value at full precision.
func CompareKeyValues(kind KeyKind, a, b any) int {
	switch kind {
	case KeyKindS:
		return compare(a.(string), b.(string))
	case KeyKindN:
		cmp, err := attrval.CompareNumbers(a.(string), b.(string))
		if err != nil {
			return compare(a.(string), b.(string))
		}
		return cmp
	case KeyKindB:
		return bytes.Compare(a.([]byte), b.([]byte))
	}
	panic(fmt.Sprintf("unsupported key kind %q", kind))
}

func compare[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
