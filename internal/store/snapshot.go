package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/resolver"
	"github.com/jward/scopebind/internal/syntax"
)

// Snapshot is a read-only, in-memory copy of the database taken in one
// transaction. It implements hir.Database. Item-level tables are indexed at
// load time; per-body indexes, inference results, parsed trees and macro
// call ids are built on first use and memoized. A Snapshot is safe for
// concurrent use.
type Snapshot struct {
	files      map[int64]*File
	fileByPath map[string]int64

	defs     map[hir.DefID]hir.Def
	bySource map[hir.Source]hir.DefID
	roots    map[int64]hir.DefID
	items    map[hir.DefID]*hir.ItemScope
	children map[hir.DefID][]hir.Def
	generics map[hir.DefID][]hir.GenericParam
	externs  map[hir.DefID]*hir.ItemScope
	preludes map[hir.DefID]hir.DefID
	implIDs  []hir.DefID

	bodies map[hir.DefID]*bodyRows
	derefs map[hir.DefID]string

	calls      map[int64]*MacroCall
	callBySrc  map[hir.Source]int64
	expansions map[int64]string
	tokenMaps  map[int64][]hir.TokenMapping

	implsOnce sync.Once
	impls     []hir.Impl

	mu         sync.Mutex
	trees      map[syntax.FileID]*syntax.Tree
	sourceMaps map[hir.DefID]*hir.BodySourceMap
	exprScopes map[hir.DefID]*hir.ExprScopes
	infer      map[hir.DefID]*hir.InferenceResult
	expInfo    map[syntax.FileID]*hir.ExpansionInfo
	interned   map[hir.MacroCallLoc]hir.MacroCallID
	locs       map[hir.MacroCallID]hir.MacroCallLoc
	nextCall   hir.MacroCallID
}

// Compile-time check: *Snapshot satisfies hir.Database.
var _ hir.Database = (*Snapshot)(nil)

type bodyRows struct {
	exprs      []Expr
	pats       []Pat
	scopes     []BodyScope
	entries    []ScopeEntry
	exprScopes []ExprScope
	inference  []Inference
}

func (s *Snapshot) body(owner hir.DefID) *bodyRows {
	b, ok := s.bodies[owner]
	if !ok {
		b = &bodyRows{}
		s.bodies[owner] = b
	}
	return b
}

// Snapshot reads the whole database in one transaction.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{
		files:      make(map[int64]*File),
		fileByPath: make(map[string]int64),
		defs:       make(map[hir.DefID]hir.Def),
		bySource:   make(map[hir.Source]hir.DefID),
		roots:      make(map[int64]hir.DefID),
		items:      make(map[hir.DefID]*hir.ItemScope),
		children:   make(map[hir.DefID][]hir.Def),
		generics:   make(map[hir.DefID][]hir.GenericParam),
		externs:    make(map[hir.DefID]*hir.ItemScope),
		preludes:   make(map[hir.DefID]hir.DefID),
		bodies:     make(map[hir.DefID]*bodyRows),
		derefs:     make(map[hir.DefID]string),
		calls:      make(map[int64]*MacroCall),
		callBySrc:  make(map[hir.Source]int64),
		expansions: make(map[int64]string),
		tokenMaps:  make(map[int64][]hir.TokenMapping),
		trees:      make(map[syntax.FileID]*syntax.Tree),
		sourceMaps: make(map[hir.DefID]*hir.BodySourceMap),
		exprScopes: make(map[hir.DefID]*hir.ExprScopes),
		infer:      make(map[hir.DefID]*hir.InferenceResult),
		expInfo:    make(map[syntax.FileID]*hir.ExpansionInfo),
		interned:   make(map[hir.MacroCallLoc]hir.MacroCallID),
		locs:       make(map[hir.MacroCallID]hir.MacroCallLoc),
		nextCall:   -1,
	}

	loaders := []struct {
		name string
		load func(*sql.Tx) error
	}{
		{"files", snap.loadFiles},
		{"defs", snap.loadDefs},
		{"module items", snap.loadModuleItems},
		{"generic params", snap.loadGenericParams},
		{"bodies", snap.loadBodies},
		{"inference", snap.loadInference},
		{"crates", snap.loadCrates},
		{"deref rules", snap.loadDerefRules},
		{"macro calls", snap.loadMacroCalls},
	}
	for _, l := range loaders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.load(tx); err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", l.name, err)
		}
	}
	return snap, nil
}

func (snap *Snapshot) loadFiles(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT " + fileCols + " FROM files")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return err
		}
		snap.files[f.ID] = f
		snap.fileByPath[f.Path] = f.ID
	}
	return rows.Err()
}

func (snap *Snapshot) loadDefs(tx *sql.Tx) error {
	rows, err := queryDefs(tx, "SELECT "+defCols+" FROM defs ORDER BY id")
	if err != nil {
		return err
	}
	for _, row := range rows {
		kind, ok := hir.ParseDefKind(row.Kind)
		if !ok {
			return fmt.Errorf("def %d: unknown kind %q", row.ID, row.Kind)
		}
		d := hir.Def{
			ID:      hir.DefID(row.ID),
			Kind:    kind,
			Name:    row.Name,
			File:    row.FileID,
			HasSelf: row.HasSelf,
			SelfTy:  row.SelfTy,
			Trait:   row.Trait,
		}
		if row.NodeKind != "" {
			d.Ptr = syntax.NodePtr{Kind: row.NodeKind, Range: syntax.TextRange{Start: row.StartByte, End: row.EndByte}}
			snap.bySource[hir.Source{File: syntax.SourceFile(row.FileID), Ptr: d.Ptr}] = d.ID
		}
		if row.ModuleID != nil {
			d.Module = hir.DefID(*row.ModuleID)
		}
		if row.ParentID != nil {
			d.Parent = hir.DefID(*row.ParentID)
		}
		snap.defs[d.ID] = d

		switch {
		case kind == hir.DefModule:
			snap.items[d.ID] = hir.NewItemScope()
			if d.Module == 0 {
				snap.roots[d.File] = d.ID
			} else {
				snap.children[d.Module] = append(snap.children[d.Module], d)
			}
		case kind == hir.DefImpl:
			snap.implIDs = append(snap.implIDs, d.ID)
			if d.Module != 0 {
				snap.children[d.Module] = append(snap.children[d.Module], d)
			}
		case d.Parent != 0:
			snap.children[d.Parent] = append(snap.children[d.Parent], d)
		case d.Module != 0:
			snap.children[d.Module] = append(snap.children[d.Module], d)
		}
	}
	return nil
}

func (snap *Snapshot) loadModuleItems(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT module_id, name, namespace, def_id FROM module_items ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var mi ModuleItem
		if err := rows.Scan(&mi.ModuleID, &mi.Name, &mi.Namespace, &mi.DefID); err != nil {
			return err
		}
		scope, ok := snap.items[hir.DefID(mi.ModuleID)]
		if !ok {
			continue
		}
		id := hir.DefID(mi.DefID)
		switch mi.Namespace {
		case NamespaceTypes:
			scope.Add(mi.Name, hir.PerNs{Types: id})
		case NamespaceValues:
			scope.Add(mi.Name, hir.PerNs{Values: id})
		case NamespaceMacros:
			scope.Add(mi.Name, hir.PerNs{Macros: id})
		default:
			return fmt.Errorf("module item %q: unknown namespace %q", mi.Name, mi.Namespace)
		}
	}
	return rows.Err()
}

func (snap *Snapshot) loadGenericParams(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT def_id, ordinal, name FROM generic_params ORDER BY def_id, ordinal")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var gp GenericParam
		if err := rows.Scan(&gp.DefID, &gp.Ordinal, &gp.Name); err != nil {
			return err
		}
		def := hir.DefID(gp.DefID)
		snap.generics[def] = append(snap.generics[def], hir.GenericParam{Def: def, Index: gp.Ordinal, Name: gp.Name})
	}
	return rows.Err()
}

func (snap *Snapshot) loadBodies(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT owner_id, idx, file_id, kind, start_byte, end_byte FROM exprs ORDER BY owner_id, idx")
	if err != nil {
		return err
	}
	for rows.Next() {
		var e Expr
		if err := rows.Scan(&e.OwnerID, &e.Idx, &e.FileID, &e.Kind, &e.StartByte, &e.EndByte); err != nil {
			rows.Close()
			return err
		}
		b := snap.body(hir.DefID(e.OwnerID))
		b.exprs = append(b.exprs, e)
	}
	rows.Close()

	rows, err = tx.Query("SELECT owner_id, idx, file_id, kind, start_byte, end_byte FROM pats ORDER BY owner_id, idx")
	if err != nil {
		return err
	}
	for rows.Next() {
		var p Pat
		if err := rows.Scan(&p.OwnerID, &p.Idx, &p.FileID, &p.Kind, &p.StartByte, &p.EndByte); err != nil {
			rows.Close()
			return err
		}
		b := snap.body(hir.DefID(p.OwnerID))
		b.pats = append(b.pats, p)
	}
	rows.Close()

	rows, err = tx.Query("SELECT owner_id, scope_id, parent_scope_id FROM scopes ORDER BY owner_id, scope_id")
	if err != nil {
		return err
	}
	for rows.Next() {
		var bs BodyScope
		if err := rows.Scan(&bs.OwnerID, &bs.ScopeID, &bs.ParentScopeID); err != nil {
			rows.Close()
			return err
		}
		b := snap.body(hir.DefID(bs.OwnerID))
		b.scopes = append(b.scopes, bs)
	}
	rows.Close()

	rows, err = tx.Query("SELECT owner_id, scope_id, name, pat_idx FROM scope_entries ORDER BY owner_id, id")
	if err != nil {
		return err
	}
	for rows.Next() {
		var se ScopeEntry
		if err := rows.Scan(&se.OwnerID, &se.ScopeID, &se.Name, &se.PatIdx); err != nil {
			rows.Close()
			return err
		}
		b := snap.body(hir.DefID(se.OwnerID))
		b.entries = append(b.entries, se)
	}
	rows.Close()

	rows, err = tx.Query("SELECT owner_id, expr_idx, scope_id FROM expr_scopes ORDER BY owner_id, expr_idx")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var es ExprScope
		if err := rows.Scan(&es.OwnerID, &es.ExprIdx, &es.ScopeID); err != nil {
			return err
		}
		b := snap.body(hir.DefID(es.OwnerID))
		b.exprScopes = append(b.exprScopes, es)
	}
	return rows.Err()
}

func (snap *Snapshot) loadInference(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT owner_id, target, idx, key, value FROM inference ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var inf Inference
		if err := rows.Scan(&inf.OwnerID, &inf.Target, &inf.Idx, &inf.Key, &inf.Value); err != nil {
			return err
		}
		b := snap.body(hir.DefID(inf.OwnerID))
		b.inference = append(b.inference, inf)
	}
	return rows.Err()
}

// loadCrates wires extern crate names and preludes. Each authored file is
// the root of its own crate.
func (snap *Snapshot) loadCrates(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT file_id, name, target_file_id FROM extern_crates ORDER BY id")
	if err != nil {
		return err
	}
	for rows.Next() {
		var ec ExternCrate
		if err := rows.Scan(&ec.FileID, &ec.Name, &ec.TargetFileID); err != nil {
			rows.Close()
			return err
		}
		from, ok1 := snap.roots[ec.FileID]
		to, ok2 := snap.roots[ec.TargetFileID]
		if !ok1 || !ok2 {
			continue
		}
		scope, ok := snap.externs[from]
		if !ok {
			scope = hir.NewItemScope()
			snap.externs[from] = scope
		}
		scope.Add(ec.Name, hir.TypesOnly(to))
	}
	rows.Close()

	rows, err = tx.Query("SELECT file_id, target_file_id, module_path FROM preludes")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p Prelude
		if err := rows.Scan(&p.FileID, &p.TargetFileID, &p.ModulePath); err != nil {
			return err
		}
		from, ok1 := snap.roots[p.FileID]
		to, ok2 := snap.roots[p.TargetFileID]
		if !ok1 || !ok2 {
			continue
		}
		if module, ok := snap.submodule(to, p.ModulePath); ok {
			snap.preludes[from] = module
		}
	}
	return rows.Err()
}

// submodule walks a "::"-separated module path down from root.
func (snap *Snapshot) submodule(root hir.DefID, path string) (hir.DefID, bool) {
	cur := root
	path = strings.TrimPrefix(path, "crate::")
	if path == "" || path == "crate" {
		return cur, true
	}
	for _, seg := range strings.Split(path, "::") {
		per, ok := snap.items[cur].Get(seg)
		if !ok {
			return 0, false
		}
		def, ok := snap.defs[per.Types]
		if !ok || def.Kind != hir.DefModule {
			return 0, false
		}
		cur = def.ID
	}
	return cur, true
}

// loadDerefRules resolves each rule's type in its file's root module. The
// target stays as written and is parsed in the ADT's environment on use.
func (snap *Snapshot) loadDerefRules(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT file_id, type_path, target FROM deref_rules ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var dr DerefRule
		if err := rows.Scan(&dr.FileID, &dr.TypePath, &dr.Target); err != nil {
			return err
		}
		root, ok := snap.roots[dr.FileID]
		if !ok {
			continue
		}
		ty, ok := resolver.ForModule(snap, root).ResolvePathInTypeNSFully(hir.ParsePath(dr.TypePath))
		if !ok || ty.Kind != resolver.TypeAdt {
			continue
		}
		snap.derefs[ty.Def] = dr.Target
	}
	return rows.Err()
}

func (snap *Snapshot) loadMacroCalls(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT id, file_id, node_kind, start_byte, end_byte FROM macro_calls ORDER BY id")
	if err != nil {
		return err
	}
	for rows.Next() {
		mc := &MacroCall{}
		if err := rows.Scan(&mc.ID, &mc.FileID, &mc.NodeKind, &mc.StartByte, &mc.EndByte); err != nil {
			rows.Close()
			return err
		}
		snap.calls[mc.ID] = mc
		snap.callBySrc[mc.source()] = mc.ID
	}
	rows.Close()

	rows, err = tx.Query("SELECT call_id, text FROM expansions")
	if err != nil {
		return err
	}
	for rows.Next() {
		var e Expansion
		if err := rows.Scan(&e.CallID, &e.Text); err != nil {
			rows.Close()
			return err
		}
		snap.expansions[e.CallID] = e.Text
	}
	rows.Close()

	rows, err = tx.Query("SELECT call_id, call_start, call_end, exp_start, exp_end FROM token_maps ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tm TokenMap
		if err := rows.Scan(&tm.CallID, &tm.CallStart, &tm.CallEnd, &tm.ExpStart, &tm.ExpEnd); err != nil {
			return err
		}
		snap.tokenMaps[tm.CallID] = append(snap.tokenMaps[tm.CallID], hir.TokenMapping{
			Call:     syntax.TextRange{Start: tm.CallStart, End: tm.CallEnd},
			Expanded: syntax.TextRange{Start: tm.ExpStart, End: tm.ExpEnd},
		})
	}
	return rows.Err()
}

func (mc *MacroCall) source() hir.Source {
	return hir.Source{
		File: syntax.SourceFile(mc.FileID),
		Ptr:  syntax.NodePtr{Kind: mc.NodeKind, Range: syntax.TextRange{Start: mc.StartByte, End: mc.EndByte}},
	}
}

// memoize returns m[k], building and storing it on a miss. build runs
// without the lock held so it may call back into the snapshot; when two
// callers race the first stored value wins.
func memoize[K comparable, V any](mu *sync.Mutex, m map[K]V, k K, build func() V) V {
	mu.Lock()
	v, ok := m[k]
	mu.Unlock()
	if ok {
		return v
	}
	v = build()
	mu.Lock()
	defer mu.Unlock()
	if prev, ok := m[k]; ok {
		return prev
	}
	m[k] = v
	return v
}

// --- Files ---

// FileID returns the id of an indexed path.
func (snap *Snapshot) FileID(path string) (int64, bool) {
	id, ok := snap.fileByPath[path]
	return id, ok
}

// FilePath returns the path of an indexed file.
func (snap *Snapshot) FilePath(id int64) (string, bool) {
	f, ok := snap.files[id]
	if !ok {
		return "", false
	}
	return f.Path, true
}

// Paths returns the indexed paths in file id order.
func (snap *Snapshot) Paths() []string {
	ids := make([]int64, 0, len(snap.files))
	for id := range snap.files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = snap.files[id].Path
	}
	return out
}

// --- Items ---

func (snap *Snapshot) Def(id hir.DefID) (hir.Def, bool) {
	if id.IsBuiltin() {
		return hir.BuiltinDef(id)
	}
	d, ok := snap.defs[id]
	return d, ok
}

func (snap *Snapshot) DefForSource(src hir.Source) (hir.Def, bool) {
	id, ok := snap.bySource[src]
	if !ok {
		return hir.Def{}, false
	}
	return snap.defs[id], true
}

func (snap *Snapshot) ModuleForFile(file int64) (hir.DefID, bool) {
	id, ok := snap.roots[file]
	return id, ok
}

func (snap *Snapshot) ItemScope(module hir.DefID) *hir.ItemScope {
	return snap.items[module]
}

func (snap *Snapshot) Children(def hir.DefID) []hir.Def {
	return snap.children[def]
}

func (snap *Snapshot) GenericParams(def hir.DefID) []hir.GenericParam {
	return snap.generics[def]
}

func (snap *Snapshot) CrateRoot(def hir.DefID) hir.DefID {
	d, ok := snap.defs[def]
	if !ok {
		return 0
	}
	for d.Module != 0 {
		next, ok := snap.defs[d.Module]
		if !ok {
			return 0
		}
		d = next
	}
	if d.Kind != hir.DefModule {
		return 0
	}
	return d.ID
}

func (snap *Snapshot) ExternPrelude(krate hir.DefID) *hir.ItemScope {
	return snap.externs[krate]
}

func (snap *Snapshot) Prelude(krate hir.DefID) (hir.DefID, bool) {
	id, ok := snap.preludes[krate]
	return id, ok
}
