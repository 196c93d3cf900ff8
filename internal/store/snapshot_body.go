package store

import (
	"strings"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/resolver"
	"github.com/jward/scopebind/internal/syntax"
)

// autoderefLimit bounds deref chains.
const autoderefLimit = 10

func (snap *Snapshot) BodySourceMap(owner hir.DefID) *hir.BodySourceMap {
	b, ok := snap.bodies[owner]
	if !ok {
		return nil
	}
	return memoize(&snap.mu, snap.sourceMaps, owner, func() *hir.BodySourceMap {
		m := hir.NewBodySourceMap()
		for _, e := range b.exprs {
			m.AddExpr(hir.ExprID(e.Idx), rowSource(e.FileID, e.Kind, e.StartByte, e.EndByte))
		}
		for _, p := range b.pats {
			m.AddPat(hir.PatID(p.Idx), rowSource(p.FileID, p.Kind, p.StartByte, p.EndByte))
		}
		return m
	})
}

func rowSource(file int64, kind string, start, end uint32) hir.Source {
	return hir.Source{
		File: syntax.SourceFile(file),
		Ptr:  syntax.NodePtr{Kind: kind, Range: syntax.TextRange{Start: start, End: end}},
	}
}

func (snap *Snapshot) ExprScopes(owner hir.DefID) *hir.ExprScopes {
	b, ok := snap.bodies[owner]
	if !ok {
		return nil
	}
	return memoize(&snap.mu, snap.exprScopes, owner, func() *hir.ExprScopes {
		scopes := hir.NewExprScopes()
		for _, bs := range b.scopes {
			scopes.EnsureScope(hir.ScopeID(bs.ScopeID), hir.ScopeID(bs.ParentScopeID))
		}
		for _, se := range b.entries {
			scopes.EnsureScope(hir.ScopeID(se.ScopeID), scopes.Parent(hir.ScopeID(se.ScopeID)))
			scopes.AddEntry(hir.ScopeID(se.ScopeID), se.Name, hir.PatID(se.PatIdx))
		}
		for _, es := range b.exprScopes {
			scopes.SetScope(hir.ExprID(es.ExprIdx), hir.ScopeID(es.ScopeID))
		}
		return scopes
	})
}

// Infer returns the inference result of a body owner. Bodies without facts
// get an empty result; definitions without a body get nil.
func (snap *Snapshot) Infer(owner hir.DefID) *hir.InferenceResult {
	def, ok := snap.defs[owner]
	if !ok || !def.Kind.HasBody() {
		return nil
	}
	return memoize(&snap.mu, snap.infer, owner, func() *hir.InferenceResult {
		res := hir.NewInferenceResult()
		b, ok := snap.bodies[owner]
		if !ok || len(b.inference) == 0 {
			return res
		}
		r := resolver.ForDef(snap, owner)
		for _, inf := range b.inference {
			snap.applyInference(res, r, inf)
		}
		return res
	})
}

func (snap *Snapshot) applyInference(res *hir.InferenceResult, r *resolver.Resolver, inf Inference) {
	if inf.Key == KeyType {
		ty := hir.ParseTy(inf.Value, snap.tyLookup(r))
		switch inf.Target {
		case TargetExpr:
			res.ExprTypes[hir.ExprID(inf.Idx)] = ty
		case TargetPat:
			res.PatTypes[hir.PatID(inf.Idx)] = ty
		}
		return
	}

	def, ok := snap.resolveDefPath(r, inf.Value)
	if !ok {
		return
	}
	expr, pat := hir.ExprID(inf.Idx), hir.PatID(inf.Idx)
	switch inf.Target + "/" + inf.Key {
	case TargetExpr + "/" + KeyMethod:
		res.Methods[expr] = def
	case TargetExpr + "/" + KeyField:
		res.Fields[expr] = def
	case TargetExpr + "/" + KeyRecordField:
		res.RecordFields[expr] = def
	case TargetExpr + "/" + KeyVariant:
		res.ExprVariants[expr] = def
	case TargetPat + "/" + KeyVariant:
		res.PatVariants[pat] = def
	case TargetExpr + "/" + KeyAssoc:
		res.AssocExprs[expr] = def
	case TargetPat + "/" + KeyAssoc:
		res.AssocPats[pat] = def
	}
}

// tyLookup resolves the paths of written types in r's environment. Generic
// parameters stay unresolved so ParseTy turns them into TyParam.
func (snap *Snapshot) tyLookup(r *resolver.Resolver) hir.TyLookup {
	return func(path string) (hir.Def, bool) {
		ty, ok := r.ResolvePathInTypeNSFully(hir.ParsePath(path))
		if !ok {
			return hir.Def{}, false
		}
		switch ty.Kind {
		case resolver.TypeGenericParam:
			return hir.Def{}, false
		case resolver.TypeSelfType:
			self := snap.implSelfTy(ty.Def)
			if self.Kind != hir.TyAdt {
				return hir.Def{}, false
			}
			return snap.Def(self.Def)
		}
		return snap.Def(ty.Def)
	}
}

// implSelfTy parses an impl's self type. Self inside the header itself is
// left unresolved.
func (snap *Snapshot) implSelfTy(impl hir.DefID) hir.Ty {
	def, ok := snap.defs[impl]
	if !ok {
		return hir.Unknown
	}
	r := resolver.ForDef(snap, impl)
	return hir.ParseTy(def.SelfTy, func(path string) (hir.Def, bool) {
		ty, ok := r.ResolvePathInTypeNSFully(hir.ParsePath(path))
		if !ok || ty.Kind == resolver.TypeGenericParam || ty.Kind == resolver.TypeSelfType {
			return hir.Def{}, false
		}
		return snap.Def(ty.Def)
	})
}

// resolveDefPath resolves the written target of a resolution fact: first as
// a value, then as a type, then as a macro, and finally as an associated
// item, field or variant under a resolved type prefix.
func (snap *Snapshot) resolveDefPath(r *resolver.Resolver, text string) (hir.DefID, bool) {
	path := hir.ParsePath(text)
	if len(path.Segments) == 0 {
		return 0, false
	}
	if v, ok := r.ResolvePathInValueNSFully(path); ok && v.Kind != resolver.ValueLocalBinding {
		return v.Def, true
	}
	ty, idx, ok := r.ResolvePathInTypeNS(path)
	if ok && idx < 0 {
		return ty.Def, true
	}
	if m, ok := r.ResolvePathAsMacro(path); ok {
		return m, true
	}
	if !ok || idx != len(path.Segments)-1 {
		return 0, false
	}

	owner := ty.Def
	if ty.Kind == resolver.TypeSelfType {
		self := snap.implSelfTy(ty.Def)
		if self.Kind != hir.TyAdt {
			return 0, false
		}
		owner = self.Def
	}
	name := path.Segments[idx]
	for _, c := range snap.children[owner] {
		if c.Name == name {
			return c.ID, true
		}
	}
	if ty.Kind == resolver.TypeSelfType {
		for _, c := range snap.children[ty.Def] {
			if c.Name == name {
				return c.ID, true
			}
		}
	}
	for _, impl := range snap.Impls(hir.Ty{Kind: hir.TyAdt, Def: owner}) {
		for _, c := range snap.children[impl.ID] {
			if c.Name == name {
				return c.ID, true
			}
		}
	}
	return 0, false
}

func (snap *Snapshot) allImpls() []hir.Impl {
	snap.implsOnce.Do(func() {
		for _, id := range snap.implIDs {
			def := snap.defs[id]
			impl := hir.Impl{ID: id, SelfTy: snap.implSelfTy(id)}
			if def.Trait != "" {
				traitPath, _, _ := strings.Cut(def.Trait, "<")
				if trait, ok := resolver.ForDef(snap, id).ResolveKnownTrait(hir.ParsePath(strings.TrimSpace(traitPath))); ok {
					impl.Trait = trait
				}
			}
			snap.impls = append(snap.impls, impl)
		}
	})
	return snap.impls
}

// sameType reports whether an impl for self covers ty. ADTs match by
// definition regardless of generic arguments.
func sameType(self, ty hir.Ty) bool {
	if self.Kind == hir.TyAdt && ty.Kind == hir.TyAdt {
		return self.Def == ty.Def
	}
	if self.Kind == hir.TyBuiltin && ty.Kind == hir.TyBuiltin {
		return self.Def == ty.Def
	}
	return !self.IsUnknown() && self.Equal(ty)
}

func (snap *Snapshot) Impls(ty hir.Ty) []hir.Impl {
	var out []hir.Impl
	for _, impl := range snap.allImpls() {
		if sameType(impl.SelfTy, ty) {
			out = append(out, impl)
		}
	}
	return out
}

// ImplementsTrait reports whether some impl of trait covers ty. A blanket
// impl over a bare type parameter covers every type, and an opaque type
// implements the trait it names.
func (snap *Snapshot) ImplementsTrait(ty hir.Ty, trait hir.DefID) bool {
	if trait == 0 || ty.IsUnknown() {
		return false
	}
	if ty.Kind == hir.TyOpaque && ty.Def == trait {
		return true
	}
	for _, impl := range snap.allImpls() {
		if impl.Trait != trait {
			continue
		}
		if impl.SelfTy.Kind == hir.TyParam || sameType(impl.SelfTy, ty) {
			return true
		}
	}
	return false
}

// Autoderef returns ty followed by the types reachable through references
// and deref rules, stopping at a repeated type or after autoderefLimit
// steps.
func (snap *Snapshot) Autoderef(ty hir.Ty) []hir.Ty {
	if ty.IsUnknown() {
		return nil
	}
	chain := []hir.Ty{ty}
	seen := map[string]bool{ty.String(): true}
	cur := ty
	for range autoderefLimit {
		next, ok := snap.derefOnce(cur)
		if !ok || next.IsUnknown() || seen[next.String()] {
			break
		}
		seen[next.String()] = true
		chain = append(chain, next)
		cur = next
	}
	return chain
}

func (snap *Snapshot) derefOnce(ty hir.Ty) (hir.Ty, bool) {
	switch ty.Kind {
	case hir.TyRef:
		if len(ty.Args) == 0 {
			return hir.Unknown, false
		}
		return ty.Args[0], true
	case hir.TyAdt:
		target, ok := snap.derefs[ty.Def]
		if !ok {
			return hir.Unknown, false
		}
		next := hir.ParseTy(target, snap.tyLookup(resolver.ForDef(snap, ty.Def)))
		params := snap.generics[ty.Def]
		subst := make(map[string]hir.Ty, len(params))
		for i, p := range params {
			if i < len(ty.Args) {
				subst[p.Name] = ty.Args[i]
			}
		}
		return next.Substitute(subst), true
	}
	return hir.Unknown, false
}
