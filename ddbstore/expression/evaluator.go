package expression

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
)

// Bindings carries the expression attribute name and value substitutions
// supplied alongside an expression.
type Bindings struct {
	Names  map[string]string
	Values map[string]types.AttributeValue
}

func (b Bindings) resolveName(name string) (string, error) {
	if !strings.HasPrefix(name, "#") {
		return name, nil
	}
	actual, ok := b.Names[name]
	if !ok {
		return "", fmt.Errorf("an expression attribute name used in the document path is not defined; attribute name: %s", name)
	}
	return actual, nil
}

func (b Bindings) resolveValue(ref string) (types.AttributeValue, error) {
	v, ok := b.Values[ref]
	if !ok {
		return nil, fmt.Errorf("an expression attribute value used in expression is not defined; attribute value: %s", ref)
	}
	return v, nil
}

// EvalCondition evaluates a parsed condition against an item. A nil item
// stands for an item that does not exist.
func EvalCondition(cond ast.Condition, item map[string]types.AttributeValue, bindings Bindings) (bool, error) {
	switch c := cond.(type) {
	case ast.And:
		left, err := EvalCondition(c.Left, item, bindings)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return EvalCondition(c.Right, item, bindings)
	case ast.Or:
		left, err := EvalCondition(c.Left, item, bindings)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return EvalCondition(c.Right, item, bindings)
	case ast.Not:
		inner, err := EvalCondition(c.Inner, item, bindings)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case ast.Compare:
		return evalCompare(c, item, bindings)
	case ast.Between:
		return evalBetween(c, item, bindings)
	case ast.In:
		return evalIn(c, item, bindings)
	case ast.Function:
		return evalFunction(c, item, bindings)
	}
	return false, fmt.Errorf("unsupported condition node %T", cond)
}

// resolveOperand returns the operand's value, or found=false when a
// document path does not resolve on the item.
func resolveOperand(op ast.Operand, item map[string]types.AttributeValue, bindings Bindings) (types.AttributeValue, bool, error) {
	switch o := op.(type) {
	case ast.ValueRef:
		v, err := bindings.resolveValue(o.Name)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case ast.Path:
		return resolvePath(o, item, bindings)
	case ast.SizeOf:
		arg, found, err := resolveOperand(o.Arg, item, bindings)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		size, ok := attrval.CollectionSize(arg)
		if !ok {
			return nil, false, fmt.Errorf("incorrect operand type for function; function: size, operand type: %s", attrval.KindOf(arg))
		}
		return &types.AttributeValueMemberN{Value: strconv.Itoa(size)}, true, nil
	}
	return nil, false, fmt.Errorf("unsupported operand %T", op)
}

func resolvePath(path ast.Path, item map[string]types.AttributeValue, bindings Bindings) (types.AttributeValue, bool, error) {
	if item == nil {
		return nil, false, nil
	}
	var current types.AttributeValue
	for i, elem := range path.Elements {
		switch e := elem.(type) {
		case ast.Attribute:
			name, err := bindings.resolveName(e.Name)
			if err != nil {
				return nil, false, err
			}
			if i == 0 {
				v, ok := item[name]
				if !ok {
					return nil, false, nil
				}
				current = v
				continue
			}
			m, ok := current.(*types.AttributeValueMemberM)
			if !ok {
				return nil, false, nil
			}
			v, ok := m.Value[name]
			if !ok {
				return nil, false, nil
			}
			current = v
		case ast.Index:
			l, ok := current.(*types.AttributeValueMemberL)
			if !ok {
				return nil, false, nil
			}
			if e.Value < 0 || e.Value >= len(l.Value) {
				return nil, false, nil
			}
			current = l.Value[e.Value]
		}
	}
	return current, true, nil
}

// orderableKind reports whether values of this kind support <, <=, > and >=.
func orderableKind(k attrval.Kind) bool {
	return k == attrval.KindS || k == attrval.KindN || k == attrval.KindB
}

func evalCompare(c ast.Compare, item map[string]types.AttributeValue, bindings Bindings) (bool, error) {
	left, leftFound, err := resolveOperand(c.Left, item, bindings)
	if err != nil {
		return false, err
	}
	right, rightFound, err := resolveOperand(c.Right, item, bindings)
	if err != nil {
		return false, err
	}

	if c.Op == ast.CompareEq || c.Op == ast.CompareNe {
		if !leftFound || !rightFound {
			return c.Op == ast.CompareNe, nil
		}
		eq := attrval.Equal(left, right)
		if c.Op == ast.CompareNe {
			return !eq, nil
		}
		return eq, nil
	}

	// Ordering. A supplied constant of a non-orderable type is a caller
	// mistake; a missing or mismatched item attribute is just false.
	if _, isRef := c.Right.(ast.ValueRef); isRef && rightFound && !orderableKind(attrval.KindOf(right)) {
		return false, fmt.Errorf("incorrect operand type for operator; operator: %s, operand type: %s", c.Op, attrval.KindOf(right))
	}
	if _, isRef := c.Left.(ast.ValueRef); isRef && leftFound && !orderableKind(attrval.KindOf(left)) {
		return false, fmt.Errorf("incorrect operand type for operator; operator: %s, operand type: %s", c.Op, attrval.KindOf(left))
	}
	if !leftFound || !rightFound {
		return false, nil
	}
	cmp, ok, err := compareOrdered(left, right)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	switch c.Op {
	case ast.CompareLt:
		return cmp < 0, nil
	case ast.CompareLe:
		return cmp <= 0, nil
	case ast.CompareGt:
		return cmp > 0, nil
	case ast.CompareGe:
		return cmp >= 0, nil
	}
	return false, nil
}

// compareOrdered compares two values of the same orderable kind. ok is
// false on kind mismatch or non-orderable kinds.
func compareOrdered(a, b types.AttributeValue) (int, bool, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false, nil
		}
		return strings.Compare(av.Value, bv.Value), true, nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false, nil
		}
		cmp, err := attrval.CompareNumbers(av.Value, bv.Value)
		if err != nil {
			return 0, false, err
		}
		return cmp, true, nil
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		if !ok {
			return 0, false, nil
		}
		return bytes.Compare(av.Value, bv.Value), true, nil
	}
	return 0, false, nil
}

func evalBetween(c ast.Between, item map[string]types.AttributeValue, bindings Bindings) (bool, error) {
	low, lowFound, err := resolveOperand(c.Low, item, bindings)
	if err != nil {
		return false, err
	}
	high, highFound, err := resolveOperand(c.High, item, bindings)
	if err != nil {
		return false, err
	}
	if lowFound && highFound {
		cmp, ok, err := compareOrdered(low, high)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("the BETWEEN operator requires same data type for lower and upper bounds; lower bound type: %s, upper bound type: %s", attrval.KindOf(low), attrval.KindOf(high))
		}
		if cmp > 0 {
			return false, fmt.Errorf("the BETWEEN operator requires upper bound to be greater than or equal to lower bound; lower bound: %s, upper bound: %s", operandDisplay(low), operandDisplay(high))
		}
	}
	value, found, err := resolveOperand(c.Value, item, bindings)
	if err != nil {
		return false, err
	}
	if !found || !lowFound || !highFound {
		return false, nil
	}
	cmpLow, ok, err := compareOrdered(value, low)
	if err != nil || !ok {
		return false, err
	}
	cmpHigh, ok, err := compareOrdered(value, high)
	if err != nil || !ok {
		return false, err
	}
	return cmpLow >= 0 && cmpHigh <= 0, nil
}

func operandDisplay(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	case *types.AttributeValueMemberB:
		return fmt.Sprintf("%x", t.Value)
	}
	return string(attrval.KindOf(v))
}

func evalIn(c ast.In, item map[string]types.AttributeValue, bindings Bindings) (bool, error) {
	value, found, err := resolveOperand(c.Value, item, bindings)
	if err != nil {
		return false, err
	}
	for _, opt := range c.Options {
		candidate, optFound, err := resolveOperand(opt, item, bindings)
		if err != nil {
			return false, err
		}
		if !found || !optFound {
			continue
		}
		if attrval.Equal(value, candidate) {
			return true, nil
		}
	}
	return false, nil
}

func evalFunction(c ast.Function, item map[string]types.AttributeValue, bindings Bindings) (bool, error) {
	switch c.Name {
	case ast.FnAttributeExists, ast.FnAttributeNotExists:
		_, found, err := resolveOperand(c.Args[0], item, bindings)
		if err != nil {
			return false, err
		}
		if c.Name == ast.FnAttributeNotExists {
			return !found, nil
		}
		return found, nil

	case ast.FnAttributeType:
		want, _, err := resolveOperand(c.Args[1], item, bindings)
		if err != nil {
			return false, err
		}
		descriptor, ok := want.(*types.AttributeValueMemberS)
		if !ok {
			return false, fmt.Errorf("incorrect operand type for function; function: attribute_type, operand type: %s", attrval.KindOf(want))
		}
		if !attrval.ValidKindDescriptor(descriptor.Value) {
			return false, fmt.Errorf("invalid attribute type name found; type: %s, valid types: {B,NULL,SS,BOOL,L,BS,N,NS,S,M}", descriptor.Value)
		}
		subject, found, err := resolveOperand(c.Args[0], item, bindings)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		return string(attrval.KindOf(subject)) == descriptor.Value, nil

	case ast.FnBeginsWith:
		prefix, prefixFound, err := resolveOperand(c.Args[1], item, bindings)
		if err != nil {
			return false, err
		}
		if prefixFound {
			if k := attrval.KindOf(prefix); k != attrval.KindS && k != attrval.KindB {
				return false, fmt.Errorf("incorrect operand type for function; function: begins_with, operand type: %s", k)
			}
		}
		subject, found, err := resolveOperand(c.Args[0], item, bindings)
		if err != nil {
			return false, err
		}
		if !found || !prefixFound {
			return false, nil
		}
		switch s := subject.(type) {
		case *types.AttributeValueMemberS:
			p, ok := prefix.(*types.AttributeValueMemberS)
			return ok && strings.HasPrefix(s.Value, p.Value), nil
		case *types.AttributeValueMemberB:
			p, ok := prefix.(*types.AttributeValueMemberB)
			return ok && bytes.HasPrefix(s.Value, p.Value), nil
		}
		return false, nil

	case ast.FnContains:
		subject, found, err := resolveOperand(c.Args[0], item, bindings)
		if err != nil {
			return false, err
		}
		target, targetFound, err := resolveOperand(c.Args[1], item, bindings)
		if err != nil {
			return false, err
		}
		if !found || !targetFound {
			return false, nil
		}
		return evalContains(subject, target)
	}
	return false, fmt.Errorf("invalid function name; function: %s", c.Name)
}

func evalContains(subject, target types.AttributeValue) (bool, error) {
	switch s := subject.(type) {
	case *types.AttributeValueMemberS:
		t, ok := target.(*types.AttributeValueMemberS)
		return ok && strings.Contains(s.Value, t.Value), nil
	case *types.AttributeValueMemberSS:
		t, ok := target.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		for _, member := range s.Value {
			if member == t.Value {
				return true, nil
			}
		}
		return false, nil
	case *types.AttributeValueMemberNS:
		t, ok := target.(*types.AttributeValueMemberN)
		if !ok {
			return false, nil
		}
		for _, member := range s.Value {
			cmp, err := attrval.CompareNumbers(member, t.Value)
			if err != nil {
				return false, err
			}
			if cmp == 0 {
				return true, nil
			}
		}
		return false, nil
	case *types.AttributeValueMemberBS:
		t, ok := target.(*types.AttributeValueMemberB)
		if !ok {
			return false, nil
		}
		for _, member := range s.Value {
			if bytes.Equal(member, t.Value) {
				return true, nil
			}
		}
		return false, nil
	case *types.AttributeValueMemberL:
		for _, member := range s.Value {
			if attrval.Equal(member, target) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}
