package partitions

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynalocal/dynalocal/table"
)

var testKeys = table.PrimaryKeyDefinition{
	PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
	SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindN},
}

func numDoc(sort string, tie string) *Document {
	return &Document{
		Key: table.PrimaryKey{
			Definition: testKeys,
			Values:     table.PrimaryKeyValues{PartitionKey: "p", SortKey: sort},
		},
		Tie: tie,
		Item: map[string]types.AttributeValue{
			"sk": &types.AttributeValueMemberN{Value: sort},
		},
	}
}

func collectSorts(p *Partition) []string {
	var out []string
	p.Ascend(func(doc *Document) bool {
		out = append(out, doc.Key.Values.SortKey.(string))
		return true
	})
	return out
}

func TestPartitionOrdering(t *testing.T) {
	set := NewSet(testKeys.SortKey)
	p := set.GetOrCreate("p")
	for _, sort := range []string{"10", "2", "-3", "100", "2.5"} {
		p.Put(numDoc(sort, ""))
	}
	assert.Equal(t, []string{"-3", "2", "2.5", "10", "100"}, collectSorts(p))
}

func TestPartitionTieBreak(t *testing.T) {
	set := NewSet(testKeys.SortKey)
	p := set.GetOrCreate("p")
	p.Put(numDoc("1", "a"))
	p.Put(numDoc("1", "b"))
	p.Put(numDoc("2", "a"))
	require.Equal(t, 3, p.Len())

	// Same index key, distinct base keys coexist.
	var ties []string
	p.Ascend(func(doc *Document) bool {
		ties = append(ties, doc.Tie)
		return true
	})
	assert.Equal(t, []string{"a", "b", "a"}, ties)

	doc, ok := p.GetEntry(numDoc("1", "b").Key, "b")
	require.True(t, ok)
	assert.Equal(t, "b", doc.Tie)

	_, ok = p.DeleteEntry(numDoc("1", "a").Key, "a")
	require.True(t, ok)
	assert.Equal(t, 2, p.Len())
}

func TestAscendDescendFrom(t *testing.T) {
	set := NewSet(testKeys.SortKey)
	p := set.GetOrCreate("p")
	for _, sort := range []string{"1", "2", "3", "4"} {
		p.Put(numDoc(sort, ""))
	}

	var got []string
	p.AscendFrom("2", "", false, func(doc *Document) bool {
		got = append(got, doc.Key.Values.SortKey.(string))
		return true
	})
	assert.Equal(t, []string{"3", "4"}, got)

	got = nil
	p.AscendFrom("2", "", true, func(doc *Document) bool {
		got = append(got, doc.Key.Values.SortKey.(string))
		return true
	})
	assert.Equal(t, []string{"2", "3", "4"}, got)

	got = nil
	p.DescendFrom("3", "", false, func(doc *Document) bool {
		got = append(got, doc.Key.Values.SortKey.(string))
		return true
	})
	assert.Equal(t, []string{"2", "1"}, got)
}

func TestNoSortKeyPartition(t *testing.T) {
	set := NewSet(table.KeyDef{})
	p := set.GetOrCreate("p")

	doc := numDoc("", "")
	doc.Key.Definition = table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
	}
	doc.Key.Values = table.PrimaryKeyValues{PartitionKey: "p"}
	p.Put(doc)

	replaced := *doc
	_, had := p.Put(&replaced)
	assert.True(t, had)
	assert.Equal(t, 1, p.Len())
}

func TestSetIDs(t *testing.T) {
	set := NewSet(testKeys.SortKey)
	set.GetOrCreate("b")
	set.GetOrCreate("a")
	set.GetOrCreate("c")
	assert.Equal(t, []string{"a", "b", "c"}, set.IDs())

	p1 := set.GetOrCreate("a")
	p2, ok := set.Get("a")
	require.True(t, ok)
	assert.Same(t, p1, p2)
}
