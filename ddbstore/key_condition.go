package ddbstore

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
	"github.com/dynalocal/dynalocal/table"
)

// sortRange is the sort key constraint of a query: an optional lower and
// upper bound, or a begins_with prefix.
type sortRange struct {
	hasLower bool
	lower    any
	lowerInc bool

	hasUpper bool
	upper    any
	upperInc bool

	prefix    *string
	binPrefix []byte
}

func (r sortRange) constrained() bool {
	return r.hasLower || r.hasUpper || r.prefix != nil || r.binPrefix != nil
}

// aboveLower reports whether a sort value is at or past the lower bound.
func (r sortRange) aboveLower(kind table.KeyKind, v any) bool {
	if !r.hasLower {
		return true
	}
	cmp := table.CompareKeyValues(kind, v, r.lower)
	if r.lowerInc {
		return cmp >= 0
	}
	return cmp > 0
}

// belowUpper reports whether a sort value is at or before the upper bound.
func (r sortRange) belowUpper(kind table.KeyKind, v any) bool {
	if !r.hasUpper {
		return true
	}
	cmp := table.CompareKeyValues(kind, v, r.upper)
	if r.upperInc {
		return cmp <= 0
	}
	return cmp < 0
}

// keyCondition is the parsed KeyConditionExpression: a partition key
// equality plus an optional sort constraint.
type keyCondition struct {
	partitionValue any
	rng            sortRange
}

// extractKeyCondition parses and validates a KeyConditionExpression against
// the queried key schema.
func extractKeyCondition(raw string, keys table.PrimaryKeyDefinition, bindings expression.Bindings) (keyCondition, error) {
	var kc keyCondition
	cond, err := expression.ParseCondition(raw)
	if err != nil {
		return kc, validationError("Invalid KeyConditionExpression: %s", err)
	}

	var terms []ast.Condition
	flattenAnd(cond, &terms)
	if len(terms) > 2 {
		return kc, validationError("Invalid KeyConditionExpression: Conditions can be of length 1 or 2 only")
	}

	var havePartition, haveSort bool
	for _, term := range terms {
		name, err := keyConditionAttribute(term, bindings)
		if err != nil {
			return kc, err
		}
		switch name {
		case keys.PartitionKey.Name:
			if havePartition {
				return kc, validationError("Invalid KeyConditionExpression: Partition key condition can only appear once")
			}
			havePartition = true
			cmp, ok := term.(ast.Compare)
			if !ok || cmp.Op != ast.CompareEq {
				return kc, validationError("Query key condition not supported: partition key must use equality")
			}
			kc.partitionValue, err = resolveKeyValue(cmp.Right, keys.PartitionKey.Kind, bindings)
			if err != nil {
				return kc, err
			}
		case keys.SortKey.Name:
			if haveSort {
				return kc, validationError("Invalid KeyConditionExpression: Sort key condition can only appear once")
			}
			haveSort = true
			kc.rng, err = sortRangeFrom(term, keys.SortKey.Kind, bindings)
			if err != nil {
				return kc, err
			}
		default:
			return kc, validationError("Query condition missed key schema element: %s", name)
		}
	}
	if !havePartition {
		return kc, validationError("Query condition missed key schema element: %s", keys.PartitionKey.Name)
	}
	return kc, nil
}

// flattenAnd collects the conjuncts of nested ANDs. Anything else is kept
// whole and rejected downstream if it is not a supported key condition.
func flattenAnd(cond ast.Condition, out *[]ast.Condition) {
	if and, ok := cond.(ast.And); ok {
		flattenAnd(and.Left, out)
		flattenAnd(and.Right, out)
		return
	}
	*out = append(*out, cond)
}

// keyConditionAttribute returns the single attribute a key condition term
// constrains, rejecting forms a key condition cannot use.
func keyConditionAttribute(term ast.Condition, bindings expression.Bindings) (string, error) {
	var operand ast.Operand
	switch c := term.(type) {
	case ast.Compare:
		if c.Op == ast.CompareNe {
			return "", validationError("Unsupported operator in KeyConditionExpression: <>")
		}
		operand = c.Left
	case ast.Between:
		operand = c.Value
	case ast.Function:
		if c.Name != ast.FnBeginsWith {
			return "", validationError("Unsupported function in KeyConditionExpression: %s", c.Name)
		}
		operand = c.Args[0]
	case ast.Or:
		return "", validationError("Invalid KeyConditionExpression: OR is not supported")
	case ast.Not:
		return "", validationError("Invalid KeyConditionExpression: NOT is not supported")
	case ast.In:
		return "", validationError("Unsupported operator in KeyConditionExpression: IN")
	default:
		return "", validationError("Invalid KeyConditionExpression")
	}

	path, ok := operand.(ast.Path)
	if !ok || len(path.Elements) != 1 {
		return "", validationError("Invalid KeyConditionExpression: key conditions must reference a top-level key attribute")
	}
	attr := path.Elements[0].(ast.Attribute)
	name := attr.Name
	if len(name) > 0 && name[0] == '#' {
		resolved, found := bindings.Names[name]
		if !found {
			return "", validationError("An expression attribute name used in the document path is not defined; attribute name: %s", name)
		}
		name = resolved
	}
	return name, nil
}

func sortRangeFrom(term ast.Condition, kind table.KeyKind, bindings expression.Bindings) (sortRange, error) {
	var rng sortRange
	switch c := term.(type) {
	case ast.Compare:
		v, err := resolveKeyValue(c.Right, kind, bindings)
		if err != nil {
			return rng, err
		}
		switch c.Op {
		case ast.CompareEq:
			rng = sortRange{hasLower: true, lower: v, lowerInc: true, hasUpper: true, upper: v, upperInc: true}
		case ast.CompareLt:
			rng = sortRange{hasUpper: true, upper: v}
		case ast.CompareLe:
			rng = sortRange{hasUpper: true, upper: v, upperInc: true}
		case ast.CompareGt:
			rng = sortRange{hasLower: true, lower: v}
		case ast.CompareGe:
			rng = sortRange{hasLower: true, lower: v, lowerInc: true}
		default:
			return rng, validationError("Unsupported operator in KeyConditionExpression: %s", c.Op)
		}
	case ast.Between:
		low, err := resolveKeyValue(c.Low, kind, bindings)
		if err != nil {
			return rng, err
		}
		high, err := resolveKeyValue(c.High, kind, bindings)
		if err != nil {
			return rng, err
		}
		if table.CompareKeyValues(kind, low, high) > 0 {
			return rng, validationError("Invalid KeyConditionExpression: BETWEEN upper bound must be greater than or equal to lower bound")
		}
		rng = sortRange{hasLower: true, lower: low, lowerInc: true, hasUpper: true, upper: high, upperInc: true}
	case ast.Function:
		v, err := resolveKeyValue(c.Args[1], kind, bindings)
		if err != nil {
			return rng, err
		}
		switch kind {
		case table.KeyKindS:
			p := v.(string)
			rng = sortRange{hasLower: true, lower: p, lowerInc: true, prefix: &p}
		case table.KeyKindB:
			p := v.([]byte)
			rng = sortRange{hasLower: true, lower: p, lowerInc: true, binPrefix: p}
		default:
			return rng, validationError("begins_with only supports string and binary sort keys")
		}
	}
	return rng, nil
}

// matchesPrefix checks the begins_with constraint, which bounds cannot
// express on their own.
func (r sortRange) matchesPrefix(v any) bool {
	if r.prefix != nil {
		s, ok := v.(string)
		return ok && len(s) >= len(*r.prefix) && s[:len(*r.prefix)] == *r.prefix
	}
	if r.binPrefix != nil {
		b, ok := v.([]byte)
		if !ok || len(b) < len(r.binPrefix) {
			return false
		}
		for i := range r.binPrefix {
			if b[i] != r.binPrefix[i] {
				return false
			}
		}
		return true
	}
	return true
}

// resolveKeyValue resolves a key condition operand, which must be a value
// reference of the key's declared type, to the raw key value.
func resolveKeyValue(op ast.Operand, kind table.KeyKind, bindings expression.Bindings) (any, error) {
	ref, ok := op.(ast.ValueRef)
	if !ok {
		return nil, validationError("Invalid KeyConditionExpression: key conditions must compare against expression attribute values")
	}
	av, found := bindings.Values[ref.Name]
	if !found {
		return nil, validationError("An expression attribute value used in expression is not defined; attribute value: %s", ref.Name)
	}
	if string(attrval.KindOf(av)) != string(kind) {
		return nil, validationError("One or more parameter values were invalid: Condition parameter type does not match schema type")
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	}
	return nil, validationError("One or more parameter values were invalid: Condition parameter type does not match schema type")
}
