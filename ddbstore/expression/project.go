package expression

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynalocal/dynalocal/attrval"
	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
)

// pathTrie merges projection paths so shared prefixes are walked once and
// list elements keep their relative order.
type pathTrie struct {
	leaf    bool
	attrs   map[string]*pathTrie
	indexes map[int]*pathTrie
}

func newPathTrie() *pathTrie {
	return &pathTrie{
		attrs:   make(map[string]*pathTrie),
		indexes: make(map[int]*pathTrie),
	}
}

func (t *pathTrie) insert(path ast.Path, bindings Bindings) error {
	node := t
	for _, elem := range path.Elements {
		switch e := elem.(type) {
		case ast.Attribute:
			name, err := bindings.resolveName(e.Name)
			if err != nil {
				return err
			}
			child, ok := node.attrs[name]
			if !ok {
				child = newPathTrie()
				node.attrs[name] = child
			}
			node = child
		case ast.Index:
			child, ok := node.indexes[e.Value]
			if !ok {
				child = newPathTrie()
				node.indexes[e.Value] = child
			}
			node = child
		}
	}
	node.leaf = true
	return nil
}

// ApplyProjection keeps only the attributes addressed by the given paths.
// Paths that do not resolve on the item are skipped; projected list
// elements are compacted while preserving their order.
func ApplyProjection(paths []ast.Path, item map[string]types.AttributeValue, bindings Bindings) (map[string]types.AttributeValue, error) {
	trie := newPathTrie()
	for _, path := range paths {
		if err := trie.insert(path, bindings); err != nil {
			return nil, err
		}
	}
	result := make(map[string]types.AttributeValue)
	for name, child := range trie.attrs {
		val, ok := item[name]
		if !ok {
			continue
		}
		if projected, ok := projectValue(val, child); ok {
			result[name] = projected
		}
	}
	return result, nil
}

func projectValue(val types.AttributeValue, node *pathTrie) (types.AttributeValue, bool) {
	if node.leaf {
		return attrval.CloneValue(val), true
	}
	switch v := val.(type) {
	case *types.AttributeValueMemberM:
		out := make(map[string]types.AttributeValue)
		for name, child := range node.attrs {
			inner, ok := v.Value[name]
			if !ok {
				continue
			}
			if projected, ok := projectValue(inner, child); ok {
				out[name] = projected
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return &types.AttributeValueMemberM{Value: out}, true
	case *types.AttributeValueMemberL:
		wanted := make([]int, 0, len(node.indexes))
		for idx := range node.indexes {
			if idx < len(v.Value) {
				wanted = append(wanted, idx)
			}
		}
		sort.Ints(wanted)
		var out []types.AttributeValue
		for _, idx := range wanted {
			if projected, ok := projectValue(v.Value[idx], node.indexes[idx]); ok {
				out = append(out, projected)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return &types.AttributeValueMemberL{Value: out}, true
	}
	return nil, false
}
