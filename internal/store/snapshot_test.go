package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

const mainSrc = "fn main() { m!(a); }\n"

// crateFixture is a hand-lowered two-file crate graph:
//
//	main.rs: struct Point { x }, struct Wrapper<T>, trait Draw { fn draw(&self) },
//	         impl Point { fn len(&self) }, impl Draw for Point { fn draw(&self) },
//	         fn main, macro m; extern crate std with prelude std::prelude
//	std.rs:  mod future { trait Future }, mod prelude { trait Clone }
type crateFixture struct {
	mainFile, stdFile *File

	root, point, x, wrapper, draw, drawDecl   int64
	inherent, length, traitImpl, drawImpl     int64
	mainFn, macro                             int64
	stdRoot, future, futureTrait, clone, prel int64
	callID                                    int64
}

func seedCrate(t *testing.T, s *Store) *crateFixture {
	t.Helper()
	fx := &crateFixture{}
	fx.mainFile = insertTestFile(t, s, "/main.rs", mainSrc)
	fx.stdFile = insertTestFile(t, s, "/std.rs", "")
	m := fx.mainFile.ID

	def := func(d Def) int64 {
		if d.FileID == 0 {
			d.FileID = m
		}
		return insertTestDef(t, s, d).ID
	}
	item := func(module int64, name, ns string, id int64) {
		_, err := s.InsertModuleItem(&ModuleItem{ModuleID: module, Name: name, Namespace: ns, DefID: id})
		require.NoError(t, err)
	}

	fx.root = def(Def{Kind: "module", NodeKind: "source_file", EndByte: uint32(len(mainSrc))})
	fx.point = def(Def{Kind: "struct", Name: "Point", NodeKind: "struct_item", StartByte: 100, EndByte: 120, ModuleID: &fx.root})
	fx.x = def(Def{Kind: "field", Name: "x", ModuleID: &fx.root, ParentID: &fx.point})
	fx.wrapper = def(Def{Kind: "struct", Name: "Wrapper", ModuleID: &fx.root})
	fx.draw = def(Def{Kind: "trait", Name: "Draw", ModuleID: &fx.root})
	fx.drawDecl = def(Def{Kind: "function", Name: "draw", HasSelf: true, ModuleID: &fx.root, ParentID: &fx.draw})
	fx.inherent = def(Def{Kind: "impl", SelfTy: "Point", ModuleID: &fx.root})
	fx.length = def(Def{Kind: "function", Name: "len", HasSelf: true, ModuleID: &fx.root, ParentID: &fx.inherent})
	fx.traitImpl = def(Def{Kind: "impl", SelfTy: "Point", Trait: "Draw", ModuleID: &fx.root})
	fx.drawImpl = def(Def{Kind: "function", Name: "draw", HasSelf: true, ModuleID: &fx.root, ParentID: &fx.traitImpl})
	fx.mainFn = def(Def{Kind: "function", Name: "main", NodeKind: "function_item", StartByte: 0, EndByte: 20, ModuleID: &fx.root})
	fx.macro = def(Def{Kind: "macro", Name: "m", ModuleID: &fx.root})

	item(fx.root, "Point", NamespaceTypes, fx.point)
	item(fx.root, "Wrapper", NamespaceTypes, fx.wrapper)
	item(fx.root, "Draw", NamespaceTypes, fx.draw)
	item(fx.root, "main", NamespaceValues, fx.mainFn)
	item(fx.root, "m", NamespaceMacros, fx.macro)
	_, err := s.InsertGenericParam(&GenericParam{DefID: fx.wrapper, Ordinal: 0, Name: "T"})
	require.NoError(t, err)

	std := fx.stdFile.ID
	fx.stdRoot = def(Def{FileID: std, Kind: "module"})
	fx.future = def(Def{FileID: std, Kind: "module", Name: "future", ModuleID: &fx.stdRoot})
	fx.futureTrait = def(Def{FileID: std, Kind: "trait", Name: "Future", ModuleID: &fx.future})
	fx.prel = def(Def{FileID: std, Kind: "module", Name: "prelude", ModuleID: &fx.stdRoot})
	fx.clone = def(Def{FileID: std, Kind: "trait", Name: "Clone", ModuleID: &fx.prel})
	item(fx.stdRoot, "future", NamespaceTypes, fx.future)
	item(fx.stdRoot, "prelude", NamespaceTypes, fx.prel)
	item(fx.future, "Future", NamespaceTypes, fx.futureTrait)
	item(fx.prel, "Clone", NamespaceTypes, fx.clone)

	// Body of main: expr 0 is the block, expr 1 the call; pat 0 binds p.
	for i, r := range [][2]uint32{{10, 20}, {12, 17}} {
		_, err := s.InsertExpr(&Expr{OwnerID: fx.mainFn, Idx: uint32(i), FileID: m, Kind: "block", StartByte: r[0], EndByte: r[1]})
		require.NoError(t, err)
	}
	_, err = s.InsertPat(&Pat{OwnerID: fx.mainFn, Idx: 0, FileID: m, Kind: "identifier", StartByte: 14, EndByte: 15})
	require.NoError(t, err)
	for _, bs := range []BodyScope{{ScopeID: 1}, {ScopeID: 2, ParentScopeID: 1}} {
		bs.OwnerID = fx.mainFn
		_, err := s.InsertBodyScope(&bs)
		require.NoError(t, err)
	}
	_, err = s.InsertScopeEntry(&ScopeEntry{OwnerID: fx.mainFn, ScopeID: 2, Name: "p", PatIdx: 0})
	require.NoError(t, err)
	for _, es := range []ExprScope{{ExprIdx: 0, ScopeID: 1}, {ExprIdx: 1, ScopeID: 2}} {
		es.OwnerID = fx.mainFn
		_, err := s.InsertExprScope(&es)
		require.NoError(t, err)
	}

	require.NoError(t, s.WithFacts(func(ft *FactsTx) error {
		for _, inf := range []Inference{
			{Target: TargetExpr, Idx: 1, Key: KeyType, Value: "Wrapper<Point>"},
			{Target: TargetPat, Idx: 0, Key: KeyType, Value: "&Point"},
			{Target: TargetExpr, Idx: 1, Key: KeyMethod, Value: "Point::len"},
			{Target: TargetExpr, Idx: 0, Key: KeyField, Value: "Point::x"},
			{Target: TargetExpr, Idx: 0, Key: KeyAssoc, Value: "Draw::draw"},
			{Target: TargetPat, Idx: 0, Key: KeyVariant, Value: "Nope::Missing"},
		} {
			inf.OwnerID = fx.mainFn
			if _, err := ft.InsertInference(&inf); err != nil {
				return err
			}
		}
		if _, err := ft.InsertDerefRule(&DerefRule{FileID: m, TypePath: "Wrapper", Target: "T"}); err != nil {
			return err
		}
		if _, err := ft.InsertExternCrate(&ExternCrate{FileID: m, Name: "std", TargetFileID: std}); err != nil {
			return err
		}
		if _, err := ft.UpsertPrelude(&Prelude{FileID: m, TargetFileID: std, ModulePath: "prelude"}); err != nil {
			return err
		}
		id, err := ft.InsertMacroCall(&MacroCall{FileID: m, NodeKind: "macro_invocation", StartByte: 12, EndByte: 17})
		if err != nil {
			return err
		}
		fx.callID = id
		return ft.SetExpansion(&Expansion{CallID: id, Text: "a + 1;"}, nil)
	}))
	return fx
}

func newTestSnapshot(t *testing.T) (*Snapshot, *crateFixture) {
	t.Helper()
	s := newTestStore(t)
	fx := seedCrate(t, s)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap, fx
}

func id(v int64) hir.DefID { return hir.DefID(v) }

// =============================================================================
// Items
// =============================================================================

func TestSnapshot_ItemsAndChildren(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	root, ok := snap.ModuleForFile(fx.mainFile.ID)
	require.True(t, ok)
	assert.Equal(t, id(fx.root), root)

	per, ok := snap.ItemScope(root).Get("Point")
	require.True(t, ok)
	assert.Equal(t, hir.PerNs{Types: id(fx.point)}, per)

	per, ok = snap.ItemScope(root).Get("m")
	require.True(t, ok)
	assert.Equal(t, id(fx.macro), per.Macros)

	children := snap.Children(id(fx.point))
	require.Len(t, children, 1)
	assert.Equal(t, "x", children[0].Name)
	assert.Equal(t, hir.DefField, children[0].Kind)

	params := snap.GenericParams(id(fx.wrapper))
	require.Len(t, params, 1)
	assert.Equal(t, "T", params[0].Name)

	d, ok := snap.DefForSource(hir.Source{
		File: syntax.SourceFile(fx.mainFile.ID),
		Ptr:  syntax.NodePtr{Kind: "struct_item", Range: syntax.TextRange{Start: 100, End: 120}},
	})
	require.True(t, ok)
	assert.Equal(t, "Point", d.Name)

	b, ok := snap.Def(-1)
	require.True(t, ok)
	assert.Equal(t, hir.DefBuiltin, b.Kind)
}

func TestSnapshot_CratesAndPrelude(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	assert.Equal(t, id(fx.root), snap.CrateRoot(id(fx.mainFn)))
	assert.Equal(t, id(fx.root), snap.CrateRoot(id(fx.root)))
	assert.Equal(t, id(fx.stdRoot), snap.CrateRoot(id(fx.futureTrait)))

	per, ok := snap.ExternPrelude(id(fx.root)).Get("std")
	require.True(t, ok)
	assert.Equal(t, id(fx.stdRoot), per.Types)

	prelude, ok := snap.Prelude(id(fx.root))
	require.True(t, ok)
	assert.Equal(t, id(fx.prel), prelude)

	_, ok = snap.Prelude(id(fx.stdRoot))
	assert.False(t, ok)
}

func TestSnapshot_Paths(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	assert.Equal(t, []string{"/main.rs", "/std.rs"}, snap.Paths())
	fid, ok := snap.FileID("/std.rs")
	require.True(t, ok)
	assert.Equal(t, fx.stdFile.ID, fid)
	path, ok := snap.FilePath(fx.mainFile.ID)
	require.True(t, ok)
	assert.Equal(t, "/main.rs", path)
}

// =============================================================================
// Bodies
// =============================================================================

func TestSnapshot_BodyIndexes(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)
	owner := id(fx.mainFn)

	sm := snap.BodySourceMap(owner)
	require.NotNil(t, sm)
	src, ok := sm.ExprSyntax(1)
	require.True(t, ok)
	assert.Equal(t, syntax.TextRange{Start: 12, End: 17}, src.Ptr.Range)
	pat, ok := sm.NodePat(hir.Source{
		File: syntax.SourceFile(fx.mainFile.ID),
		Ptr:  syntax.NodePtr{Kind: "identifier", Range: syntax.TextRange{Start: 14, End: 15}},
	})
	require.True(t, ok)
	assert.Equal(t, hir.PatID(0), pat)

	scopes := snap.ExprScopes(owner)
	require.NotNil(t, scopes)
	scope, ok := scopes.ScopeFor(1)
	require.True(t, ok)
	assert.Equal(t, hir.ScopeID(2), scope)
	assert.Equal(t, hir.ScopeID(1), scopes.Parent(scope))
	entry, ok := scopes.ResolveNameInScope(scope, "p")
	require.True(t, ok)
	assert.Equal(t, hir.PatID(0), entry.Pat)

	assert.Same(t, scopes, snap.ExprScopes(owner), "memoized")
	assert.Nil(t, snap.ExprScopes(id(fx.point)))
}

func TestSnapshot_InferResolvesFacts(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	res := snap.Infer(id(fx.mainFn))
	require.NotNil(t, res)

	ty, ok := res.TypeOfExpr(1)
	require.True(t, ok)
	assert.Equal(t, "Wrapper<Point>", ty.String())
	assert.Equal(t, id(fx.wrapper), ty.Def)

	pty, ok := res.TypeOfPat(0)
	require.True(t, ok)
	assert.Equal(t, hir.TyRef, pty.Kind)

	m, ok := res.MethodResolution(1)
	require.True(t, ok)
	assert.Equal(t, id(fx.length), m)

	f, ok := res.FieldResolution(0)
	require.True(t, ok)
	assert.Equal(t, id(fx.x), f)

	a, ok := res.AssocResolutionForExpr(0)
	require.True(t, ok)
	assert.Equal(t, id(fx.drawDecl), a)

	_, ok = res.VariantResolutionForPat(0)
	assert.False(t, ok, "unresolvable fact targets are dropped")
}

func TestSnapshot_InferWithoutBody(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	assert.Nil(t, snap.Infer(id(fx.point)))

	res := snap.Infer(id(fx.length))
	require.NotNil(t, res, "body owners without facts get an empty result")
	_, ok := res.TypeOfExpr(0)
	assert.False(t, ok)
}

// =============================================================================
// Types
// =============================================================================

func TestSnapshot_ImplsAndTraits(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)
	point := hir.Ty{Kind: hir.TyAdt, Def: id(fx.point), Name: "Point"}

	impls := snap.Impls(point)
	require.Len(t, impls, 2)
	assert.Equal(t, id(fx.inherent), impls[0].ID)
	assert.Zero(t, impls[0].Trait)
	assert.Equal(t, id(fx.draw), impls[1].Trait)

	assert.True(t, snap.ImplementsTrait(point, id(fx.draw)))
	assert.False(t, snap.ImplementsTrait(point, id(fx.futureTrait)))
	assert.True(t, snap.ImplementsTrait(hir.Ty{Kind: hir.TyOpaque, Def: id(fx.futureTrait)}, id(fx.futureTrait)))
	assert.Empty(t, snap.Impls(hir.Ty{Kind: hir.TyAdt, Def: id(fx.wrapper)}))
}

func TestSnapshot_AutoderefSubstitutesGenerics(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)
	point := hir.Ty{Kind: hir.TyAdt, Def: id(fx.point), Name: "Point"}
	wrapped := hir.Ty{Kind: hir.TyAdt, Def: id(fx.wrapper), Name: "Wrapper", Args: []hir.Ty{point}}

	chain := snap.Autoderef(hir.RefTo(wrapped, false))
	require.Len(t, chain, 3)
	assert.Equal(t, "&Wrapper<Point>", chain[0].String())
	assert.Equal(t, "Wrapper<Point>", chain[1].String())
	assert.True(t, chain[2].Equal(point))

	assert.Len(t, snap.Autoderef(point), 1)
	assert.Empty(t, snap.Autoderef(hir.Unknown))
}

// =============================================================================
// Macros
// =============================================================================

func TestSnapshot_InternMacro(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)
	file := syntax.SourceFile(fx.mainFile.ID)

	persisted := hir.MacroCallLoc{Def: id(fx.macro), AstID: hir.Source{
		File: file,
		Ptr:  syntax.NodePtr{Kind: "macro_invocation", Range: syntax.TextRange{Start: 12, End: 17}},
	}}
	other := hir.MacroCallLoc{Def: id(fx.macro), AstID: hir.Source{
		File: file,
		Ptr:  syntax.NodePtr{Kind: "macro_invocation", Range: syntax.TextRange{Start: 1, End: 2}},
	}}

	assert.Equal(t, hir.MacroCallID(fx.callID), snap.InternMacro(persisted))
	fresh := snap.InternMacro(other)
	assert.Negative(t, int64(fresh))
	assert.Equal(t, fresh, snap.InternMacro(other), "interning is idempotent")

	loc, ok := snap.MacroCall(fresh)
	require.True(t, ok)
	assert.Equal(t, other, loc)

	_, ok = snap.ParseOrExpand(syntax.MacroFile(int64(fresh), syntax.FragmentExpr))
	assert.False(t, ok, "no expansion recorded for the call")
}

func TestSnapshot_ExpansionInfoAutoMapsTokens(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)
	file := syntax.MacroFile(fx.callID, syntax.FragmentStatements)

	expanded, ok := snap.ParseOrExpand(file)
	require.True(t, ok)
	assert.Equal(t, "a + 1;", string(expanded.Source()))
	assert.Equal(t, file, expanded.File())

	info, ok := snap.ExpansionInfo(file)
	require.True(t, ok)
	assert.Equal(t, syntax.TextRange{Start: 14, End: 17}, info.Arg)
	require.Len(t, info.Tokens, 1)

	callTree, ok := snap.ParseOrExpand(syntax.SourceFile(fx.mainFile.ID))
	require.True(t, ok)
	tok, ok := callTree.TokenAt(15)
	require.True(t, ok)
	require.Equal(t, "a", tok.Text())

	down, ok := info.MapTokenDown(tok)
	require.True(t, ok)
	assert.Equal(t, "a", down.Text())
	assert.Equal(t, file, down.File())

	up, ok := info.MapTokenUp(down)
	require.True(t, ok)
	assert.True(t, up.Equal(tok))

	_, ok = snap.ExpansionInfo(syntax.SourceFile(fx.mainFile.ID))
	assert.False(t, ok)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	snap, fx := newTestSnapshot(t)

	var wg sync.WaitGroup
	results := make([]*hir.InferenceResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = snap.Infer(id(fx.mainFn))
			snap.ExprScopes(id(fx.mainFn))
			snap.ParseOrExpand(syntax.SourceFile(fx.mainFile.ID))
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
