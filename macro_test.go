package scopebind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

func TestExpand_PersistedCall(t *testing.T) {
	t.Parallel()
	_, snap := mainFixture(t)

	arg := nodeAt(t, snap, "main.rs", offsetIn(t, mainSrc, "twice!(b)", "b"))
	call := enclosing(t, arg, "macro_invocation")
	a := Analyze(snap, call)

	def, ok := a.ResolveMacroCall(call)
	require.True(t, ok)
	assert.Equal(t, hir.DefMacro, def.Kind)
	assert.Equal(t, "twice", def.Name)

	exp, ok := a.Expand(call)
	require.True(t, ok)
	assert.Positive(t, int64(exp.Call), "calls known to facts keep their id")
	assert.Equal(t, syntax.FragmentStatements, exp.Fragment)

	again, ok := a.Expand(call)
	require.True(t, ok)
	assert.Equal(t, exp.Call, again.Call)

	tree, ok := snap.ParseOrExpand(exp.FileID())
	require.True(t, ok)
	assert.Equal(t, "b + b;", string(tree.Source()))

	tok, ok := call.Tree().TokenAt(arg.Range().Start)
	require.True(t, ok)
	down, ok := exp.MapTokenDown(snap, tok)
	require.True(t, ok)
	assert.Equal(t, syntax.TextRange{Start: 0, End: 1}, down.Range())
	assert.Equal(t, exp.FileID(), down.File())

	up, ok := exp.MapTokenUp(snap, down)
	require.True(t, ok)
	assert.Equal(t, tok.Range(), up.Range())

	name := nodeAt(t, snap, "main.rs", offsetIn(t, mainSrc, "twice!(b)", "twice"))
	_, ok = exp.MapTokenDown(snap, name)
	assert.False(t, ok, "the macro name is outside the argument")
}

func TestExpand_UnknownCall(t *testing.T) {
	t.Parallel()
	const src = "macro_rules! m { () => {} }\nfn f() { m!(); m!(); }\n"
	_, snap := indexFixture(t, map[string]string{"m.rs": src}, "")

	first := enclosing(t, nodeAt(t, snap, "m.rs", offsetIn(t, src, "m!(); m", "m")), "macro_invocation")
	a := Analyze(snap, first)
	exp, ok := a.Expand(first)
	require.True(t, ok)
	assert.Negative(t, int64(exp.Call))

	_, ok = snap.ParseOrExpand(exp.FileID())
	assert.False(t, ok, "nothing materialized")
	_, ok = exp.MapTokenDown(snap, first)
	assert.False(t, ok)

	second := enclosing(t, nodeAt(t, snap, "m.rs", offsetIn(t, src, "; m!()", "m")), "macro_invocation")
	other, ok := a.Expand(second)
	require.True(t, ok)
	assert.NotEqual(t, exp.Call, other.Call)
}

func TestExpand_UnresolvedMacro(t *testing.T) {
	t.Parallel()
	const src = "fn f() { missing!(1); }\n"
	_, snap := indexFixture(t, map[string]string{"m.rs": src}, "")
	call := enclosing(t, nodeAt(t, snap, "m.rs", offsetIn(t, src, "missing", "missing")), "macro_invocation")
	_, ok := Analyze(snap, call).Expand(call)
	assert.False(t, ok)
}

func TestFragmentFor(t *testing.T) {
	t.Parallel()
	const src = `macro_rules! m { () => {} }
impl S { m!(); }
fn f() {
    let x = m!();
    g(m!());
    let y = m!()?;
    { m!() }
    let z = [m!()];
}
`
	tree, err := syntax.Parse(context.Background(), syntax.SourceFile(1), []byte(src))
	require.NoError(t, err)

	var calls []syntax.Node
	for n := range tree.Root().Descendants() {
		if n.Kind() == "macro_invocation" {
			calls = append(calls, n)
		}
	}
	want := []syntax.Fragment{
		syntax.FragmentItems,      // impl body
		syntax.FragmentExpr,       // let initializer
		syntax.FragmentExpr,       // call argument
		syntax.FragmentExpr,       // operand of ?
		syntax.FragmentStatements, // block tail
		syntax.FragmentItems,      // anything else
	}
	require.Len(t, calls, len(want))
	for i, call := range calls {
		assert.Equal(t, want[i], fragmentFor(call), call.Text())
	}

	// A detached node has no context to go by.
	assert.Equal(t, syntax.FragmentExpr, fragmentFor(tree.Root()))
}
