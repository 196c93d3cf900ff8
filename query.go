package scopebind

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

// QueryBuilder answers position queries against one snapshot. It is the
// surface the CLI and scripts use; every answer is plain data.
type QueryBuilder struct {
	engine *Engine
	snap   *Snapshot
}

// Query takes a snapshot and returns a QueryBuilder over it.
func (e *Engine) Query(ctx context.Context) (*QueryBuilder, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &QueryBuilder{engine: e, snap: snap}, nil
}

// Snapshot returns the snapshot queries run against.
func (q *QueryBuilder) Snapshot() *Snapshot { return q.snap }

// Location is a source range. Lines and columns are zero-based; columns
// count bytes.
type Location struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
}

func lineCol(src []byte, offset uint32) (int, int) {
	if int(offset) > len(src) {
		offset = uint32(len(src))
	}
	before := src[:offset]
	line := bytes.Count(before, []byte{'\n'})
	col := len(before) - (bytes.LastIndexByte(before, '\n') + 1)
	return line, col
}

// location converts a range of an authored file.
func (q *QueryBuilder) location(file int64, r syntax.TextRange) *Location {
	path, ok := q.snap.FilePath(file)
	if !ok {
		return nil
	}
	tree, ok := q.snap.ParseOrExpand(syntax.SourceFile(file))
	if !ok {
		return nil
	}
	loc := &Location{File: path, StartByte: r.Start, EndByte: r.End}
	loc.StartLine, loc.StartCol = lineCol(tree.Source(), r.Start)
	loc.EndLine, loc.EndCol = lineCol(tree.Source(), r.End)
	return loc
}

func (q *QueryBuilder) defLocation(def hir.Def) *Location {
	if def.File == 0 || def.Ptr.Kind == "" {
		return nil
	}
	return q.location(def.File, def.Ptr.Range)
}

func (q *QueryBuilder) defString(id hir.DefID) string {
	def, ok := q.snap.Def(id)
	if !ok {
		return ""
	}
	return def.String()
}

// NodeInfo describes the syntax node at a position.
type NodeInfo struct {
	Kind  string           `json:"kind"`
	Text  string           `json:"text"`
	Range syntax.TextRange `json:"range"`
}

// NodeAt returns the smallest named node at offset.
func (q *QueryBuilder) NodeAt(ctx context.Context, path string, offset uint32) (*NodeInfo, error) {
	_, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	return &NodeInfo{Kind: node.Kind(), Text: node.Text(), Range: node.Range()}, nil
}

// ScopeInfo describes the environment at a position.
type ScopeInfo struct {
	Node      string `json:"node"`
	Module    string `json:"module,omitempty"`
	Generic   string `json:"generic_def,omitempty"`
	BodyOwner string `json:"body_owner,omitempty"`
	Scope     uint32 `json:"scope,omitempty"`
	Empty     bool   `json:"empty"`
}

// ScopeAt reports the owner and expression scope in effect at offset.
func (q *QueryBuilder) ScopeAt(ctx context.Context, path string, offset uint32) (*ScopeInfo, error) {
	a, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	r := a.Resolver()
	info := &ScopeInfo{Node: node.Kind(), Empty: r.IsEmpty()}
	if m, ok := r.Module(); ok {
		info.Module = q.defString(m)
	}
	if g, ok := r.GenericDef(); ok {
		info.Generic = q.defString(g)
	}
	if owner, ok := a.BodyOwner(); ok {
		info.BodyOwner = q.defString(owner)
	}
	if s, ok := r.ScopeID(); ok {
		info.Scope = uint32(s)
	}
	return info, nil
}

// Name is one name visible at a position.
type Name struct {
	Name   string    `json:"name"`
	Kind   string    `json:"kind"`
	Target string    `json:"target,omitempty"`
	Def    *Location `json:"location,omitempty"`
}

// NamesAt lists the names visible at offset, innermost first. A shadowed
// name is listed once, with its innermost meaning.
func (q *QueryBuilder) NamesAt(ctx context.Context, path string, offset uint32) ([]Name, error) {
	a, _, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []Name
	a.ProcessAllNames(func(name string, def ScopeDef) {
		if seen[name] {
			return
		}
		seen[name] = true
		n := Name{Name: name, Kind: def.Kind.String()}
		switch def.Kind {
		case ScopePerNs:
			for _, id := range []hir.DefID{def.PerNs.Types, def.PerNs.Values, def.PerNs.Macros} {
				if d, ok := q.snap.Def(id); ok {
					n.Target = d.String()
					n.Def = q.defLocation(d)
					break
				}
			}
		case ScopeImplSelfType, ScopeAdtSelfType:
			if d, ok := q.snap.Def(def.Def); ok {
				n.Target = d.String()
				n.Def = q.defLocation(d)
			}
		case ScopeGenericParam:
			n.Target = q.defString(def.Param.Def)
		case ScopeLocal:
			n.Def = q.patLocation(def.Local)
		}
		names = append(names, n)
	})
	return names, nil
}

func (q *QueryBuilder) patLocation(l Local) *Location {
	src, ok := q.snap.BodySourceMap(l.Owner).PatSyntax(l.Pat)
	if !ok || src.File.IsMacro() {
		return nil
	}
	return q.location(src.File.File, src.Ptr.Range)
}

// Resolution is what the path at a position denotes.
type Resolution struct {
	Kind     string    `json:"kind"`
	Def      string    `json:"def,omitempty"`
	Param    string    `json:"param,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// ResolveAt resolves the path at offset. It returns nil when nothing
// resolves.
func (q *QueryBuilder) ResolveAt(ctx context.Context, path string, offset uint32) (*Resolution, error) {
	a, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	res, ok := a.ResolvePath(node)
	if !ok {
		return nil, nil
	}
	out := &Resolution{Kind: res.Kind.String()}
	switch res.Kind {
	case ResolvedLocal:
		out.Location = q.patLocation(res.Local)
	case ResolvedGenericParam:
		out.Param = res.Param.Name
		out.Def = q.defString(res.Param.Def)
	default:
		out.Def = res.Def.String()
		out.Location = q.defLocation(res.Def)
	}
	return out, nil
}

// TypeInfo is the inferred type of the expression or pattern at a position.
type TypeInfo struct {
	Type  string           `json:"type"`
	Node  string           `json:"node"`
	Range syntax.TextRange `json:"range"`
}

// TypeAt returns the type of the innermost typed expression or pattern
// enclosing offset, or nil when inference recorded none.
func (q *QueryBuilder) TypeAt(ctx context.Context, path string, offset uint32) (*TypeInfo, error) {
	a, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	for anc := range node.Ancestors() {
		ty, ok := a.TypeOf(anc)
		if !ok {
			ty, ok = a.TypeOfPat(anc)
		}
		if ok {
			return &TypeInfo{Type: ty.String(), Node: anc.Kind(), Range: anc.Range()}, nil
		}
	}
	return nil, nil
}

// ExpansionResult describes the expansion of the macro call at a position.
type ExpansionResult struct {
	Macro    string `json:"macro"`
	Call     int64  `json:"call"`
	Fragment string `json:"fragment"`
	// Text is empty when the expansion was never materialized.
	Text string `json:"text,omitempty"`
	// Mapped is the range in the expansion of the argument token at the
	// queried offset, if it maps.
	Mapped *syntax.TextRange `json:"mapped,omitempty"`
}

// ExpandAt expands the innermost macro call enclosing offset. It returns
// nil when there is no call or the macro does not resolve.
func (q *QueryBuilder) ExpandAt(ctx context.Context, path string, offset uint32) (*ExpansionResult, error) {
	a, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	var call syntax.Node
	for anc := range node.Ancestors() {
		if anc.Kind() == "macro_invocation" {
			call = anc
			break
		}
	}
	if call.IsNil() {
		return nil, nil
	}
	def, ok := a.ResolveMacroCall(call)
	if !ok {
		return nil, nil
	}
	exp, ok := a.Expand(call)
	if !ok {
		return nil, nil
	}
	out := &ExpansionResult{Macro: def.Name, Call: int64(exp.Call), Fragment: exp.Fragment.String()}
	if tree, ok := q.snap.ParseOrExpand(exp.FileID()); ok {
		out.Text = string(tree.Source())
	}
	if tok, ok := node.Tree().TokenAt(offset); ok {
		if down, ok := exp.MapTokenDown(q.snap, tok); ok {
			r := down.Range()
			out.Mapped = &r
		}
	}
	return out, nil
}

// ReferencesAt returns the uses of the local binding at offset, where the
// offset may point at the binding or at any use of it.
func (q *QueryBuilder) ReferencesAt(ctx context.Context, path string, offset uint32) ([]Location, error) {
	a, node, err := q.engine.AnalyzeOffset(ctx, q.snap, path, offset)
	if err != nil {
		return nil, err
	}
	pat := node
	if _, ok := a.patID(node); !ok {
		entry, ok := a.ResolveLocalName(node)
		if !ok {
			return nil, nil
		}
		pat, ok = node.Tree().Resolve(entry.Source.Ptr)
		if !ok {
			return nil, nil
		}
	}
	var locs []Location
	for _, ref := range a.FindAllRefs(pat) {
		if loc := q.location(node.File().File, ref.Range); loc != nil {
			locs = append(locs, *loc)
		}
	}
	return locs, nil
}
