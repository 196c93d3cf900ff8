package syntax

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTest(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse(context.Background(), SourceFile(1), []byte(src))
	require.NoError(t, err)
	return tree
}

func offsetOf(t *testing.T, src, needle string) uint32 {
	t.Helper()
	i := strings.Index(src, needle)
	require.GreaterOrEqual(t, i, 0, "needle %q not found", needle)
	return uint32(i)
}

// =============================================================================
// TextRange
// =============================================================================

func TestTextRange_ContainsIsInclusiveAtEnd(t *testing.T) {
	t.Parallel()
	r := TextRange{Start: 4, End: 8}
	assert.True(t, r.Contains(4))
	assert.True(t, r.Contains(8))
	assert.False(t, r.Contains(3))
	assert.False(t, r.Contains(9))
	assert.Equal(t, uint32(4), r.Len())
	assert.Equal(t, "4..8", r.String())
}

func TestTextRange_ContainsRange(t *testing.T) {
	t.Parallel()
	outer := TextRange{Start: 0, End: 10}
	assert.True(t, outer.ContainsRange(TextRange{Start: 2, End: 5}))
	assert.True(t, outer.ContainsRange(outer))
	assert.False(t, outer.ContainsRange(TextRange{Start: 5, End: 11}))
}

// =============================================================================
// FileID
// =============================================================================

func TestFileID_MacroFile(t *testing.T) {
	t.Parallel()
	f := MacroFile(7, FragmentExpr)
	assert.True(t, f.IsMacro())
	assert.Equal(t, "macro#7/expr", f.String())
	assert.False(t, SourceFile(3).IsMacro())
	assert.Equal(t, "file#3", SourceFile(3).String())
	assert.NotEqual(t, MacroFile(7, FragmentItems), f)
}

// =============================================================================
// Parsing & navigation
// =============================================================================

func TestParse_RootIsSourceFile(t *testing.T) {
	t.Parallel()
	tree := parseTest(t, "fn main() {}")
	assert.Equal(t, "source_file", tree.Root().Kind())
	assert.Equal(t, SourceFile(1), tree.File())
	assert.Equal(t, HashSource([]byte("fn main() {}")), tree.Hash())
}

func TestHashSource_StableAndContentSensitive(t *testing.T) {
	t.Parallel()
	a := HashSource([]byte("fn a() {}"))
	assert.Equal(t, a, HashSource([]byte("fn a() {}")))
	assert.NotEqual(t, a, HashSource([]byte("fn b() {}")))
}

func TestNodeAt_ReturnsSmallestNamedNode(t *testing.T) {
	t.Parallel()
	src := "fn main() { let x = 1; }"
	tree := parseTest(t, src)

	n, ok := tree.NodeAt(offsetOf(t, src, "x"))
	require.True(t, ok)
	assert.Equal(t, "identifier", n.Kind())
	assert.Equal(t, "x", n.Text())

	var kinds []string
	for a := range n.Ancestors() {
		kinds = append(kinds, a.Kind())
	}
	assert.Equal(t, []string{"identifier", "let_declaration", "block", "function_item", "source_file"}, kinds)
}

func TestNodeAt_Boundaries(t *testing.T) {
	t.Parallel()
	src := "fn main() { foo(x); }"
	tree := parseTest(t, src)

	tests := []struct {
		name   string
		offset uint32
		kind   string
		text   string
	}{
		{"start of identifier", offsetOf(t, src, "foo"), "identifier", "foo"},
		{"right node wins between nodes", offsetOf(t, src, "(x"), "arguments", "(x)"},
		{"end of identifier", offsetOf(t, src, ")"), "identifier", "x"},
		{"inside block braces", offsetOf(t, src, "}"), "block", "{ foo(x); }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := tree.NodeAt(tt.offset)
			require.True(t, ok)
			assert.Equal(t, tt.kind, n.Kind())
			assert.Equal(t, tt.text, n.Text())
		})
	}
}

func TestNodeAt_OutOfRange(t *testing.T) {
	t.Parallel()
	tree := parseTest(t, "fn a() {}")
	_, ok := tree.NodeAt(100)
	assert.False(t, ok)
}

func TestTokenAt_PrefersRightTokenBetweenTokens(t *testing.T) {
	t.Parallel()
	src := "fn main() { foo(x); }"
	tree := parseTest(t, src)

	tok, ok := tree.TokenAt(offsetOf(t, src, "x"))
	require.True(t, ok)
	assert.Equal(t, "x", tok.Text())
	assert.True(t, tok.IsToken())

	// Offset directly after "foo" is the start of "(".
	tok, ok = tree.TokenAt(offsetOf(t, src, "("))
	require.True(t, ok)
	assert.Equal(t, "(", tok.Text())
}

func TestTokenAt_FallsBackToLeftAtEndOfFile(t *testing.T) {
	t.Parallel()
	src := "fn a() {}"
	tree := parseTest(t, src)
	tok, ok := tree.TokenAt(uint32(len(src)))
	require.True(t, ok)
	assert.Equal(t, "}", tok.Text())
}

func TestResolve_RoundTripsNodePtr(t *testing.T) {
	t.Parallel()
	src := "struct Point { x: i32 }\nfn main() { let p = 1; }"
	tree := parseTest(t, src)

	n, ok := tree.NodeAt(offsetOf(t, src, "p ="))
	require.True(t, ok)
	ptr := n.Ptr()

	again, ok := tree.Resolve(ptr)
	require.True(t, ok)
	assert.True(t, n.Equal(again))

	_, ok = tree.Resolve(NodePtr{Kind: "identifier", Range: TextRange{Start: 0, End: 1}})
	assert.False(t, ok)
}

func TestTokenForRange(t *testing.T) {
	t.Parallel()
	src := "fn main() { bar(); }"
	tree := parseTest(t, src)
	start := offsetOf(t, src, "bar")
	tok, ok := tree.TokenForRange(TextRange{Start: start, End: start + 3})
	require.True(t, ok)
	assert.Equal(t, "bar", tok.Text())
}

func TestDescendants_PreOrderInclusive(t *testing.T) {
	t.Parallel()
	tree := parseTest(t, "fn a() {}")
	var first []string
	for n := range tree.Root().Descendants() {
		first = append(first, n.Kind())
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"source_file", "function_item", "fn"}, first)
}

func TestChildByField(t *testing.T) {
	t.Parallel()
	src := "fn answer() -> i32 { 42 }"
	tree := parseTest(t, src)
	fn := tree.Root().NamedChildren()[0]
	require.Equal(t, "function_item", fn.Kind())

	name, ok := fn.ChildByField("name")
	require.True(t, ok)
	assert.Equal(t, "answer", name.Text())

	body, ok := fn.ChildByField("body")
	require.True(t, ok)
	assert.Equal(t, "block", body.Kind())

	_, ok = fn.ChildByField("type_parameters")
	assert.False(t, ok)

	parent, ok := name.Parent()
	require.True(t, ok)
	assert.True(t, parent.Equal(fn))
	_, ok = tree.Root().Parent()
	assert.False(t, ok)
}

func TestKindClassification(t *testing.T) {
	t.Parallel()
	assert.True(t, IsExpr("call_expression"))
	assert.True(t, IsExpr("identifier"))
	assert.False(t, IsExpr("let_declaration"))
	assert.True(t, IsPattern("tuple_struct_pattern"))
	assert.False(t, IsPattern("block"))
	assert.True(t, IsPath("scoped_type_identifier"))
	assert.False(t, IsPath("field_identifier"))
}
