package scopebind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuery(t *testing.T) *QueryBuilder {
	t.Helper()
	e, _ := mainFixture(t)
	q, err := e.Query(context.Background())
	require.NoError(t, err)
	require.NotNil(t, q.Snapshot())
	return q
}

func TestLineCol(t *testing.T) {
	t.Parallel()
	src := []byte("ab\ncd\n")
	tests := []struct {
		offset    uint32
		line, col int
	}{
		{0, 0, 0},
		{2, 0, 2},
		{3, 1, 0},
		{4, 1, 1},
		{100, 2, 0},
	}
	for _, tt := range tests {
		line, col := lineCol(src, tt.offset)
		assert.Equal(t, tt.line, line, "offset %d", tt.offset)
		assert.Equal(t, tt.col, col, "offset %d", tt.offset)
	}
}

func TestQuery_NodeAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	info, err := q.NodeAt(ctx, "main.rs", offsetIn(t, mainSrc, "enum Shape", "Shape"))
	require.NoError(t, err)
	assert.Equal(t, "type_identifier", info.Kind)
	assert.Equal(t, "Shape", info.Text)

	_, err = q.NodeAt(ctx, "missing.rs", 0)
	require.ErrorIs(t, err, ErrNotIndexed)
}

func TestQuery_ScopeAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	info, err := q.ScopeAt(ctx, "main.rs", offsetIn(t, mainSrc, "let b = a", "a"))
	require.NoError(t, err)
	assert.False(t, info.Empty)
	assert.Contains(t, info.BodyOwner, "function main#")
	assert.Contains(t, info.Generic, "function main#")
	assert.Contains(t, info.Module, "module")
	assert.NotZero(t, info.Scope)

	info, err = q.ScopeAt(ctx, "main.rs", offsetIn(t, mainSrc, "x: T", "T"))
	require.NoError(t, err)
	assert.Empty(t, info.BodyOwner)
	assert.Contains(t, info.Generic, "struct Point#")
	assert.Zero(t, info.Scope)
}

func TestQuery_NamesAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)

	names, err := q.NamesAt(context.Background(), "main.rs", offsetIn(t, mainSrc, "p.get()", "p"))
	require.NoError(t, err)

	byName := make(map[string]Name)
	for _, n := range names {
		_, dup := byName[n.Name]
		require.False(t, dup, "%s listed twice", n.Name)
		byName[n.Name] = n
	}

	local := byName["a"]
	assert.Equal(t, "local", local.Kind)
	require.NotNil(t, local.Def)
	assert.Equal(t, 9, local.Def.StartLine)
	assert.Equal(t, 8, local.Def.StartCol)

	point := byName["Point"]
	assert.Equal(t, "item", point.Kind)
	assert.Contains(t, point.Target, "struct Point#")
	require.NotNil(t, point.Def)
	assert.Equal(t, 0, point.Def.StartLine)

	assert.Contains(t, byName["twice"].Target, "macro twice#")
	assert.NotContains(t, byName, "o")
}

func TestQuery_ResolveAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		anchor string
		sub    string
		kind   string
		def    string
		line   int
	}{
		{"local", "let b = a", "a", "local", "", 9},
		{"struct in literal", "Point { x: a }", "Point", "def", "struct Point#", 0},
		{"assoc function", "Point::origin", "origin", "assoc_item", "function origin#", 5},
		{"struct in impl header", "impl<T> Point<T>", "Point", "def", "struct Point#", 0},
		{"macro", "twice!(b)", "twice", "macro", "macro twice#", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := q.ResolveAt(ctx, "main.rs", offsetIn(t, mainSrc, tt.anchor, tt.sub))
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, tt.kind, res.Kind)
			if tt.def != "" {
				assert.Contains(t, res.Def, tt.def)
			}
			require.NotNil(t, res.Location)
			assert.Equal(t, "main.rs", res.Location.File)
			assert.Equal(t, tt.line, res.Location.StartLine)
		})
	}

	res, err := q.ResolveAt(ctx, "main.rs", offsetIn(t, mainSrc, "x: T", "T"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "generic_param", res.Kind)
	assert.Equal(t, "T", res.Param)
	assert.Contains(t, res.Def, "struct Point#")

	res, err = q.ResolveAt(ctx, "main.rs", offsetIn(t, mainSrc, "let a = 1", "1"))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestQuery_TypeAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	info, err := q.TypeAt(ctx, "main.rs", offsetIn(t, mainSrc, "p.get()", "get"))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "i32", info.Type)
	assert.Equal(t, "call_expression", info.Node)

	info, err = q.TypeAt(ctx, "main.rs", offsetIn(t, mainSrc, "let p", "p"))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Point<i32>", info.Type)

	info, err = q.TypeAt(ctx, "main.rs", offsetIn(t, mainSrc, "let a = 1", "1"))
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestQuery_ExpandAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	res, err := q.ExpandAt(ctx, "main.rs", offsetIn(t, mainSrc, "twice!(b)", "b"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "twice", res.Macro)
	assert.Equal(t, "statements", res.Fragment)
	assert.Equal(t, "b + b;", res.Text)
	require.NotNil(t, res.Mapped)
	assert.Equal(t, uint32(0), res.Mapped.Start)

	res, err = q.ExpandAt(ctx, "main.rs", offsetIn(t, mainSrc, "let b", "b"))
	require.NoError(t, err)
	assert.Nil(t, res, "not inside a macro call")
}

func TestQuery_ReferencesAt(t *testing.T) {
	t.Parallel()
	q := newTestQuery(t)
	ctx := context.Background()

	fromBinding, err := q.ReferencesAt(ctx, "main.rs", offsetIn(t, mainSrc, "let a", "a"))
	require.NoError(t, err)
	require.Len(t, fromBinding, 2)
	assert.Equal(t, 10, fromBinding[0].StartLine)
	assert.Equal(t, 11, fromBinding[1].StartLine)

	fromUse, err := q.ReferencesAt(ctx, "main.rs", offsetIn(t, mainSrc, "x: a", "a"))
	require.NoError(t, err)
	assert.Equal(t, fromBinding, fromUse)

	none, err := q.ReferencesAt(ctx, "main.rs", offsetIn(t, mainSrc, "enum Shape", "Shape"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
