package expression

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
)

var errInvalidUpdatePath = fmt.Errorf("the document path provided in the update expression is invalid for update")

// ApplyUpdate produces the updated item. Every clause reads the original
// item, so actions in one expression never observe each other's writes.
func ApplyUpdate(expr *ast.UpdateExpression, item map[string]types.AttributeValue, bindings Bindings) (map[string]types.AttributeValue, error) {
	snapshot := item
	result := attrval.CloneItem(item)
	if result == nil {
		result = make(map[string]types.AttributeValue)
	}

	// Apply SET actions in ascending order of their trailing list index so
	// consecutive appends to the same list land in the written order.
	setActions := append([]ast.SetAction(nil), expr.Set...)
	sort.SliceStable(setActions, func(i, j int) bool {
		return trailingIndex(setActions[i].Path) < trailingIndex(setActions[j].Path)
	})
	for _, action := range setActions {
		value, err := evalSetValue(action.Value, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		// Evaluated values may alias the snapshot; the result stores its
		// own copy.
		if err := setPath(result, action.Path, attrval.CloneValue(value), bindings); err != nil {
			return nil, err
		}
	}

	// List-element removals address positions in the original item, so they
	// are applied per list in descending index order after everything else.
	var indexRemovals []ast.Path
	for _, path := range expr.Remove {
		if _, ok := path.Elements[len(path.Elements)-1].(ast.Index); ok {
			indexRemovals = append(indexRemovals, path)
			continue
		}
		if err := removePath(result, path, bindings); err != nil {
			return nil, err
		}
	}
	if err := removeListElements(result, indexRemovals, bindings); err != nil {
		return nil, err
	}

	for _, action := range expr.Add {
		if err := applyAdd(result, snapshot, action, bindings); err != nil {
			return nil, err
		}
	}

	for _, action := range expr.Delete {
		if err := applyDelete(result, snapshot, action, bindings); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func trailingIndex(path ast.Path) int {
	if idx, ok := path.Elements[len(path.Elements)-1].(ast.Index); ok {
		return idx.Value
	}
	return -1
}

func evalSetValue(value ast.SetValue, snapshot map[string]types.AttributeValue, bindings Bindings) (types.AttributeValue, error) {
	switch v := value.(type) {
	case ast.OperandValue:
		resolved, found, err := resolveOperand(v.Operand, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
		}
		return resolved, nil

	case ast.IfNotExists:
		existing, found, err := resolvePath(v.Path, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		if found {
			return existing, nil
		}
		def, found, err := resolveOperand(v.Default, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
		}
		return def, nil

	case ast.ListAppend:
		first, err := resolveListOperand(v.First, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		second, err := resolveListOperand(v.Second, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		combined := make([]types.AttributeValue, 0, len(first)+len(second))
		combined = append(combined, first...)
		combined = append(combined, second...)
		return &types.AttributeValueMemberL{Value: combined}, nil

	case ast.Arithmetic:
		left, err := evalSetValue(v.Left, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		right, err := evalSetValue(v.Right, snapshot, bindings)
		if err != nil {
			return nil, err
		}
		leftN, ok := left.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("incorrect operand type for operator; operator: %s, operand type: %s", v.Op, attrval.KindOf(left))
		}
		rightN, ok := right.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("incorrect operand type for operator; operator: %s, operand type: %s", v.Op, attrval.KindOf(right))
		}
		sum, err := attrval.AddNumbers(leftN.Value, rightN.Value, v.Op == ast.ArithmeticMinus)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: sum}, nil
	}
	return nil, fmt.Errorf("unsupported set value %T", value)
}

func resolveListOperand(op ast.Operand, snapshot map[string]types.AttributeValue, bindings Bindings) ([]types.AttributeValue, error) {
	resolved, found, err := resolveOperand(op, snapshot, bindings)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	list, ok := resolved.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("incorrect operand type for function; function: list_append, operand type: %s", attrval.KindOf(resolved))
	}
	return list.Value, nil
}

// navigatePath walks all but the last path element inside item and returns
// the container holding the final element. Intermediate containers must
// already exist with the right shape.
func navigatePath(item map[string]types.AttributeValue, path ast.Path, bindings Bindings) (types.AttributeValue, ast.PathElement, error) {
	var current types.AttributeValue
	last := path.Elements[len(path.Elements)-1]
	for i := 0; i < len(path.Elements)-1; i++ {
		switch e := path.Elements[i].(type) {
		case ast.Attribute:
			name, err := bindings.resolveName(e.Name)
			if err != nil {
				return nil, nil, err
			}
			var v types.AttributeValue
			var ok bool
			if i == 0 {
				v, ok = item[name]
			} else {
				var m *types.AttributeValueMemberM
				m, ok = current.(*types.AttributeValueMemberM)
				if ok {
					v, ok = m.Value[name]
				}
			}
			if !ok {
				return nil, nil, errInvalidUpdatePath
			}
			current = v
		case ast.Index:
			l, ok := current.(*types.AttributeValueMemberL)
			if !ok || e.Value >= len(l.Value) {
				return nil, nil, errInvalidUpdatePath
			}
			current = l.Value[e.Value]
		}
	}
	return current, last, nil
}

func setPath(item map[string]types.AttributeValue, path ast.Path, value types.AttributeValue, bindings Bindings) error {
	if len(path.Elements) == 1 {
		name, err := bindings.resolveName(path.Elements[0].(ast.Attribute).Name)
		if err != nil {
			return err
		}
		item[name] = value
		return nil
	}
	parent, last, err := navigatePath(item, path, bindings)
	if err != nil {
		return err
	}
	switch e := last.(type) {
	case ast.Attribute:
		name, err := bindings.resolveName(e.Name)
		if err != nil {
			return err
		}
		m, ok := parent.(*types.AttributeValueMemberM)
		if !ok {
			return errInvalidUpdatePath
		}
		m.Value[name] = value
	case ast.Index:
		l, ok := parent.(*types.AttributeValueMemberL)
		if !ok {
			return errInvalidUpdatePath
		}
		if e.Value < len(l.Value) {
			l.Value[e.Value] = value
		} else {
			l.Value = append(l.Value, value)
		}
	}
	return nil
}

// removePath deletes the addressed attribute or list element. A path whose
// target is already absent is a no-op; removing a list element shifts the
// elements after it.
func removePath(item map[string]types.AttributeValue, path ast.Path, bindings Bindings) error {
	if len(path.Elements) == 1 {
		name, err := bindings.resolveName(path.Elements[0].(ast.Attribute).Name)
		if err != nil {
			return err
		}
		delete(item, name)
		return nil
	}
	parent, last, err := navigatePath(item, path, bindings)
	if err == errInvalidUpdatePath {
		return nil
	}
	if err != nil {
		return err
	}
	switch e := last.(type) {
	case ast.Attribute:
		name, err := bindings.resolveName(e.Name)
		if err != nil {
			return err
		}
		if m, ok := parent.(*types.AttributeValueMemberM); ok {
			delete(m.Value, name)
		}
	case ast.Index:
		if l, ok := parent.(*types.AttributeValueMemberL); ok && e.Value < len(l.Value) {
			l.Value = append(l.Value[:e.Value], l.Value[e.Value+1:]...)
		}
	}
	return nil
}

// removeListElements applies index-targeted removals grouped by their
// containing list, highest index first, so every index resolves against the
// list as it was before the update.
func removeListElements(item map[string]types.AttributeValue, paths []ast.Path, bindings Bindings) error {
	groups := make(map[string][]ast.Path)
	var order []string
	for _, path := range paths {
		sig, err := pathSignature(path.Elements[:len(path.Elements)-1], bindings)
		if err != nil {
			return err
		}
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], path)
	}
	for _, sig := range order {
		group := groups[sig]
		sort.SliceStable(group, func(i, j int) bool {
			a := group[i].Elements[len(group[i].Elements)-1].(ast.Index).Value
			b := group[j].Elements[len(group[j].Elements)-1].(ast.Index).Value
			return a > b
		})
		for _, path := range group {
			if err := removePath(item, path, bindings); err != nil {
				return err
			}
		}
	}
	return nil
}

// pathSignature renders path elements with name placeholders resolved, to
// identify paths addressing the same container.
func pathSignature(elems []ast.PathElement, bindings Bindings) (string, error) {
	var sb strings.Builder
	for i, e := range elems {
		switch e := e.(type) {
		case ast.Attribute:
			name, err := bindings.resolveName(e.Name)
			if err != nil {
				return "", err
			}
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(name)
		case ast.Index:
			fmt.Fprintf(&sb, "[%d]", e.Value)
		}
	}
	return sb.String(), nil
}

func applyAdd(result, snapshot map[string]types.AttributeValue, action ast.AddAction, bindings Bindings) error {
	delta, found, err := resolveOperand(action.Value, snapshot, bindings)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	existing, exists, err := resolvePath(action.Path, snapshot, bindings)
	if err != nil {
		return err
	}

	switch d := delta.(type) {
	case *types.AttributeValueMemberN:
		if !exists {
			return setPath(result, action.Path, attrval.CloneValue(d), bindings)
		}
		base, ok := existing.(*types.AttributeValueMemberN)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		sum, err := attrval.AddNumbers(base.Value, d.Value, false)
		if err != nil {
			return err
		}
		return setPath(result, action.Path, &types.AttributeValueMemberN{Value: sum}, bindings)

	case *types.AttributeValueMemberSS:
		if !exists {
			return setPath(result, action.Path, attrval.CloneValue(d), bindings)
		}
		base, ok := existing.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		merged := append([]string(nil), base.Value...)
		for _, member := range d.Value {
			if !containsString(merged, member) {
				merged = append(merged, member)
			}
		}
		return setPath(result, action.Path, &types.AttributeValueMemberSS{Value: merged}, bindings)

	case *types.AttributeValueMemberNS:
		if !exists {
			return setPath(result, action.Path, attrval.CloneValue(d), bindings)
		}
		base, ok := existing.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		merged := append([]string(nil), base.Value...)
		for _, member := range d.Value {
			found, err := containsNumber(merged, member)
			if err != nil {
				return err
			}
			if !found {
				merged = append(merged, member)
			}
		}
		return setPath(result, action.Path, &types.AttributeValueMemberNS{Value: merged}, bindings)

	case *types.AttributeValueMemberBS:
		if !exists {
			return setPath(result, action.Path, attrval.CloneValue(d), bindings)
		}
		base, ok := existing.(*types.AttributeValueMemberBS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		merged := make([][]byte, len(base.Value))
		copy(merged, base.Value)
		for _, member := range d.Value {
			if !containsBytes(merged, member) {
				merged = append(merged, member)
			}
		}
		return setPath(result, action.Path, &types.AttributeValueMemberBS{Value: merged}, bindings)
	}
	return fmt.Errorf("incorrect operand type for operator; operator: ADD, operand type: %s", attrval.KindOf(delta))
}

func applyDelete(result, snapshot map[string]types.AttributeValue, action ast.DeleteAction, bindings Bindings) error {
	delta, found, err := resolveOperand(action.Value, snapshot, bindings)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	existing, exists, err := resolvePath(action.Path, snapshot, bindings)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	switch d := delta.(type) {
	case *types.AttributeValueMemberSS:
		base, ok := existing.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		var kept []string
		for _, member := range base.Value {
			if !containsString(d.Value, member) {
				kept = append(kept, member)
			}
		}
		if len(kept) == 0 {
			return removePath(result, action.Path, bindings)
		}
		return setPath(result, action.Path, &types.AttributeValueMemberSS{Value: kept}, bindings)

	case *types.AttributeValueMemberNS:
		base, ok := existing.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		var kept []string
		for _, member := range base.Value {
			found, err := containsNumber(d.Value, member)
			if err != nil {
				return err
			}
			if !found {
				kept = append(kept, member)
			}
		}
		if len(kept) == 0 {
			return removePath(result, action.Path, bindings)
		}
		return setPath(result, action.Path, &types.AttributeValueMemberNS{Value: kept}, bindings)

	case *types.AttributeValueMemberBS:
		base, ok := existing.(*types.AttributeValueMemberBS)
		if !ok {
			return fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		var kept [][]byte
		for _, member := range base.Value {
			if !containsBytes(d.Value, member) {
				kept = append(kept, member)
			}
		}
		if len(kept) == 0 {
			return removePath(result, action.Path, bindings)
		}
		return setPath(result, action.Path, &types.AttributeValueMemberBS{Value: kept}, bindings)
	}
	return fmt.Errorf("incorrect operand type for operator; operator: DELETE, operand type: %s", attrval.KindOf(delta))
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsNumber(haystack []string, needle string) (bool, error) {
	for _, s := range haystack {
		cmp, err := attrval.CompareNumbers(s, needle)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

func containsBytes(haystack [][]byte, needle []byte) bool {
	for _, b := range haystack {
		if bytes.Equal(b, needle) {
			return true
		}
	}
	return false
}
