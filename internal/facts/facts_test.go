package facts

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/lower"
	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

const mainSrc = `struct Point { x: i32 }
impl Point { fn len(&self) -> i32 { self.x } }
fn main() {
    let p = Point { x: 1 };
    p.len();
    m!(p);
}
`

const stdSrc = `pub mod prelude { pub trait Clone {} }
`

func newIndexedStore(t *testing.T, files map[string]string) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	for _, path := range []string{"main.rs", "std.rs"} {
		src, ok := files[path]
		if !ok {
			continue
		}
		id, err := s.InsertFile(&store.File{Path: path, Hash: "h", Content: []byte(src), LastIndexed: time.Now()})
		require.NoError(t, err)
		tree, err := syntax.Parse(context.Background(), syntax.SourceFile(id), []byte(src))
		require.NoError(t, err)
		b := store.NewBatchedStore()
		require.NoError(t, lower.File(context.Background(), b, tree, id))
		require.NoError(t, s.CommitBatch(b))
	}
	return s
}

func TestLoad_Inference(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t, map[string]string{"main.rs": mainSrc})
	doc := `
types:
  - at: {file: main.rs, text: "p", nth: 1}
    type: Point
  - at: {file: main.rs, text: "p", nth: 2}
    type: Point
inference:
  - at: {file: main.rs, text: "p.len()"}
    type: i32
    method: Point::len
`
	require.NoError(t, Load(context.Background(), s, strings.NewReader(doc)))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	fileID, ok := snap.FileID("main.rs")
	require.True(t, ok)
	root, ok := snap.ModuleForFile(fileID)
	require.True(t, ok)
	ns, ok := snap.ItemScope(root).Get("main")
	require.True(t, ok)

	res := snap.Infer(ns.Values)
	require.NotNil(t, res)
	assert.Len(t, res.Methods, 1)
	for _, def := range res.Methods {
		d, ok := snap.Def(def)
		require.True(t, ok)
		assert.Equal(t, "len", d.Name)
	}
	var intTypes, pointTypes int
	for _, ty := range res.ExprTypes {
		switch ty.String() {
		case "i32":
			intTypes++
		case "Point":
			pointTypes++
		}
	}
	assert.Equal(t, 1, intTypes)
	assert.Equal(t, 1, pointTypes, "the receiver p is an expression")
	require.Len(t, res.PatTypes, 1, "the let binding p is a pattern")
}

func TestLoad_CratesImplsDerefs(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t, map[string]string{"main.rs": mainSrc, "std.rs": stdSrc})
	doc := `
extern_crates:
  - {file: main.rs, name: std, target: std.rs}
preludes:
  - {file: main.rs, target: std.rs, module: prelude}
impls:
  - {file: main.rs, self: Point, trait: Clone}
derefs:
  - {file: main.rs, type: Point, target: i32}
`
	require.NoError(t, Load(context.Background(), s, strings.NewReader(doc)))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	mainID, _ := snap.FileID("main.rs")
	root, ok := snap.ModuleForFile(mainID)
	require.True(t, ok)

	_, ok = snap.ExternPrelude(root).Get("std")
	assert.True(t, ok)
	prelude, ok := snap.Prelude(root)
	require.True(t, ok)
	pd, ok := snap.Def(prelude)
	require.True(t, ok)
	assert.Equal(t, "prelude", pd.Name)

	pointNs, ok := snap.ItemScope(root).Get("Point")
	require.True(t, ok)
	point := hir.Ty{Kind: hir.TyAdt, Def: pointNs.Types}
	var traitImpls int
	for _, im := range snap.Impls(point) {
		if im.Trait != 0 {
			traitImpls++
		}
	}
	assert.Equal(t, 1, traitImpls)

	chain := snap.Autoderef(point)
	require.Len(t, chain, 2)
	assert.Equal(t, "i32", chain[1].String())
}

func TestLoad_MacroExpansion(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t, map[string]string{"main.rs": mainSrc})
	start := uint32(strings.Index(mainSrc, "m!(p)"))
	doc := `
macro_calls:
  - at: {file: main.rs, text: "m!(p)"}
    expansion: "p.len();"
    tokens:
      - {call: [` + strconv.Itoa(int(start)+3) + `, ` + strconv.Itoa(int(start)+4) + `], expanded: [0, 1]}
`
	require.NoError(t, Load(context.Background(), s, strings.NewReader(doc)))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	fileID, _ := snap.FileID("main.rs")
	loc := hir.MacroCallLoc{AstID: hir.Source{
		File: syntax.SourceFile(fileID),
		Ptr:  syntax.NodePtr{Kind: "macro_invocation", Range: syntax.TextRange{Start: start, End: start + 5}},
	}}
	id := snap.InternMacro(loc)
	assert.Positive(t, int64(id), "recorded calls keep their persisted id")

	file := syntax.MacroFile(int64(id), syntax.FragmentStatements)
	tree, ok := snap.ParseOrExpand(file)
	require.True(t, ok)
	assert.Equal(t, "p.len();", string(tree.Source()))

	info, ok := snap.ExpansionInfo(file)
	require.True(t, ok)
	require.Len(t, info.Tokens, 1)
	assert.Equal(t, syntax.TextRange{Start: 0, End: 1}, info.Tokens[0].Expanded)
}

func TestLoad_ExpansionsSection(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t, map[string]string{"main.rs": mainSrc})
	doc := `
expansions:
  - call: {file: main.rs, text: "m!(p)"}
    text: "p;"
`
	require.NoError(t, Load(context.Background(), s, strings.NewReader(doc)))
	// Loading again replaces the expansion of the same call.
	doc2 := strings.Replace(doc, `"p;"`, `"p.x;"`, 1)
	require.NoError(t, Load(context.Background(), s, strings.NewReader(doc2)))

	var calls, expansions int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM macro_calls").Scan(&calls))
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM expansions").Scan(&expansions))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, expansions)

	var text string
	require.NoError(t, s.DB().QueryRow("SELECT text FROM expansions").Scan(&text))
	assert.Equal(t, "p.x;", text)
}

func TestLoad_ErrorsRollBack(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t, map[string]string{"main.rs": mainSrc})

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown file",
			doc:  "derefs:\n  - {file: other.rs, type: Point, target: i32}\n",
			want: "derefs[0]",
		},
		{
			name: "missing text",
			doc:  "types:\n  - {at: {file: main.rs, text: nowhere}, type: i32}\n",
			want: "text not found",
		},
		{
			name: "no expression",
			doc:  "types:\n  - {at: {file: main.rs, start: 0, end: 6}, type: i32}\n",
			want: "no expression or pattern",
		},
		{
			name: "unknown key",
			doc:  "typos: []\n",
			want: "decode facts",
		},
		{
			name: "empty resolution",
			doc:  "inference:\n  - at: {file: main.rs, text: \"p.len()\"}\n",
			want: "no resolution given",
		},
		{
			name: "bad token range",
			doc:  "macro_calls:\n  - at: {file: main.rs, text: \"m!(p)\"}\n    expansion: p\n    tokens:\n      - {call: [0, 1], expanded: [0, 1]}\n",
			want: "outside the macro call",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Every case starts with a valid fact that must not survive.
			doc := "derefs:\n  - {file: main.rs, type: Point, target: i32}\n" + tt.doc
			if strings.HasPrefix(tt.doc, "derefs") {
				doc = tt.doc
			}
			err := Load(context.Background(), s, strings.NewReader(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var n int
			require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM deref_rules").Scan(&n))
			assert.Zero(t, n)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()
	doc, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Types)
}
