// Package attrval holds the value-model helpers shared by the storage and
// expression engines: kind tags, deep equality, exact decimal arithmetic,
// size accounting and item validation for aws-sdk-go-v2 attribute values.
package attrval

import (
	"bytes"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Kind is the type tag of an attribute value, matching the wire-level
// descriptor strings ("S", "N", "BOOL", ...).
type Kind string

const (
	KindS    Kind = "S"
	KindN    Kind = "N"
	KindB    Kind = "B"
	KindBOOL Kind = "BOOL"
	KindNULL Kind = "NULL"
	KindSS   Kind = "SS"
	KindNS   Kind = "NS"
	KindBS   Kind = "BS"
	KindL    Kind = "L"
	KindM    Kind = "M"
)

func KindOf(av types.AttributeValue) Kind {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return KindS
	case *types.AttributeValueMemberN:
		return KindN
	case *types.AttributeValueMemberB:
		return KindB
	case *types.AttributeValueMemberBOOL:
		return KindBOOL
	case *types.AttributeValueMemberNULL:
		return KindNULL
	case *types.AttributeValueMemberSS:
		return KindSS
	case *types.AttributeValueMemberNS:
		return KindNS
	case *types.AttributeValueMemberBS:
		return KindBS
	case *types.AttributeValueMemberL:
		return KindL
	case *types.AttributeValueMemberM:
		return KindM
	default:
		return ""
	}
}

// ValidKindDescriptor reports whether s names an attribute kind, as required
// by the second argument of attribute_type().
func ValidKindDescriptor(s string) bool {
	switch Kind(s) {
	case KindS, KindN, KindB, KindBOOL, KindNULL, KindSS, KindNS, KindBS, KindL, KindM:
		return true
	}
	return false
}

// Equal compares two attribute values structurally. Numbers compare by
// numeric value, sets compare regardless of element order, lists and maps
// recurse. Values of different kinds are never equal.
func Equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		return numbersEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		bv, ok := b.(*types.AttributeValueMemberNULL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberSS:
		bv, ok := b.(*types.AttributeValueMemberSS)
		return ok && stringSetsEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberNS:
		bv, ok := b.(*types.AttributeValueMemberNS)
		return ok && numberSetsEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberBS:
		bv, ok := b.(*types.AttributeValueMemberBS)
		return ok && binarySetsEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for i := range av.Value {
			if !Equal(av.Value[i], bv.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for k, v := range av.Value {
			other, ok := bv.Value[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b string) bool {
	da, errA := ParseDecimal(a)
	db, errB := ParseDecimal(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da.Cmp(db) == 0
}

func stringSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func numberSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if numbersEqual(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func binarySetsEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if bytes.Equal(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
