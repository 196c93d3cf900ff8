package resolver

import (
	"slices"

	"github.com/jward/scopebind/internal/hir"
)

type TypeNsKind uint8

const (
	TypeSelfType TypeNsKind = iota + 1
	TypeGenericParam
	TypeAdtSelfType
	TypeAdt
	TypeEnumVariant
	TypeAlias
	TypeBuiltin
	TypeTrait
)

// TypeNs is a resolution in the type namespace.
type TypeNs struct {
	Kind  TypeNsKind
	Def   hir.DefID
	Param hir.GenericParam
}

type ValueNsKind uint8

const (
	ValueLocalBinding ValueNsKind = iota + 1
	ValueFunction
	ValueConst
	ValueStatic
	ValueStruct
	ValueEnumVariant
)

// ValueNs is a resolution in the value namespace. Local bindings carry the
// body owner in Def and the binding pattern in Pat.
type ValueNs struct {
	Kind ValueNsKind
	Def  hir.DefID
	Pat  hir.PatID
}

// ValueResult is either a full value resolution or, when only a prefix of
// the path resolved, a type resolution of that prefix together with the
// index of the first unresolved segment.
type ValueResult struct {
	Value      ValueNs
	Partial    TypeNs
	Unresolved int
}

// IsFull reports whether the whole path resolved to a value.
func (v ValueResult) IsFull() bool { return v.Unresolved < 0 }

func (r *Resolver) def(id hir.DefID) (hir.Def, bool) {
	if id.IsBuiltin() {
		return hir.BuiltinDef(id)
	}
	if r.db == nil || id == 0 {
		return hir.Def{}, false
	}
	return r.db.Def(id)
}

func typeNsFromDef(def hir.Def) (TypeNs, bool) {
	switch def.Kind {
	case hir.DefStruct, hir.DefEnum:
		return TypeNs{Kind: TypeAdt, Def: def.ID}, true
	case hir.DefVariant:
		return TypeNs{Kind: TypeEnumVariant, Def: def.ID}, true
	case hir.DefTypeAlias:
		return TypeNs{Kind: TypeAlias, Def: def.ID}, true
	case hir.DefBuiltin:
		return TypeNs{Kind: TypeBuiltin, Def: def.ID}, true
	case hir.DefTrait:
		return TypeNs{Kind: TypeTrait, Def: def.ID}, true
	}
	return TypeNs{}, false
}

func valueNsFromDef(def hir.Def) (ValueNs, bool) {
	switch def.Kind {
	case hir.DefFunction:
		return ValueNs{Kind: ValueFunction, Def: def.ID}, true
	case hir.DefConst:
		return ValueNs{Kind: ValueConst, Def: def.ID}, true
	case hir.DefStatic:
		return ValueNs{Kind: ValueStatic, Def: def.ID}, true
	case hir.DefStruct:
		return ValueNs{Kind: ValueStruct, Def: def.ID}, true
	case hir.DefVariant:
		return ValueNs{Kind: ValueEnumVariant, Def: def.ID}, true
	}
	return ValueNs{}, false
}

func findParam(params []hir.GenericParam, name string) (hir.GenericParam, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return hir.GenericParam{}, false
}

// firstUnresolved is the unresolved index of a path whose first segment
// alone resolved.
func firstUnresolved(path hir.Path) int {
	if len(path.Segments) > 1 {
		return 1
	}
	return -1
}

// ResolvePathInTypeNS resolves path in the type namespace. The int is the
// index of the first segment left unresolved, or -1.
func (r *Resolver) ResolvePathInTypeNS(path hir.Path) (TypeNs, int, bool) {
	var first string
	if len(path.Segments) > 0 {
		first = path.Segments[0]
	}
	skipToMod := path.Kind != hir.PathPlain

	for s := range r.innermost {
		switch s.kind {
		case genericsScope:
			if skipToMod {
				continue
			}
			if p, ok := findParam(s.params, first); ok {
				return TypeNs{Kind: TypeGenericParam, Def: s.def, Param: p}, firstUnresolved(path), true
			}
		case implScope:
			if first == "Self" {
				return TypeNs{Kind: TypeSelfType, Def: s.self}, firstUnresolved(path), true
			}
		case adtScope:
			if first == "Self" {
				return TypeNs{Kind: TypeAdtSelfType, Def: s.self}, firstUnresolved(path), true
			}
		case moduleScope:
			per, idx := r.resolveInModule(s, path)
			def, ok := r.def(per.Types)
			if !ok {
				return TypeNs{}, 0, false
			}
			ty, ok := typeNsFromDef(def)
			return ty, idx, ok
		}
	}
	return TypeNs{}, 0, false
}

// ResolvePathInTypeNSFully resolves path in the type namespace and fails on
// partial resolutions.
func (r *Resolver) ResolvePathInTypeNSFully(path hir.Path) (TypeNs, bool) {
	ty, idx, ok := r.ResolvePathInTypeNS(path)
	if !ok || idx >= 0 {
		return TypeNs{}, false
	}
	return ty, true
}

// ResolvePathInValueNS resolves path in the value namespace. Single-segment
// plain paths see local bindings, innermost expression scope first.
func (r *Resolver) ResolvePathInValueNS(path hir.Path) (ValueResult, bool) {
	n := len(path.Segments)
	var first string
	if n > 0 {
		first = path.Segments[0]
	}
	skipToMod := path.Kind != hir.PathPlain

	for s := range r.innermost {
		switch s.kind {
		case exprScope:
			if n > 1 || skipToMod {
				continue
			}
			entries := s.scopes.Entries(s.scopeID)
			for i := len(entries) - 1; i >= 0; i-- {
				if entries[i].Name == first {
					return ValueResult{
						Value:      ValueNs{Kind: ValueLocalBinding, Def: s.owner, Pat: entries[i].Pat},
						Unresolved: -1,
					}, true
				}
			}
		case genericsScope:
			if n <= 1 || skipToMod {
				continue
			}
			if p, ok := findParam(s.params, first); ok {
				return ValueResult{Partial: TypeNs{Kind: TypeGenericParam, Def: s.def, Param: p}, Unresolved: 1}, true
			}
		case implScope:
			if n > 1 && first == "Self" {
				return ValueResult{Partial: TypeNs{Kind: TypeSelfType, Def: s.self}, Unresolved: 1}, true
			}
		case adtScope:
			if n > 1 && first == "Self" {
				return ValueResult{Partial: TypeNs{Kind: TypeAdtSelfType, Def: s.self}, Unresolved: 1}, true
			}
		case moduleScope:
			per, idx := r.resolveInModule(s, path)
			if idx < 0 {
				def, ok := r.def(per.Values)
				if !ok {
					return ValueResult{}, false
				}
				v, ok := valueNsFromDef(def)
				return ValueResult{Value: v, Unresolved: -1}, ok
			}
			def, ok := r.def(per.Types)
			if !ok {
				return ValueResult{}, false
			}
			ty, ok := typeNsFromDef(def)
			return ValueResult{Partial: ty, Unresolved: idx}, ok
		}
	}
	return ValueResult{}, false
}

// ResolvePathInValueNSFully resolves path to a value and fails on partial
// resolutions.
func (r *Resolver) ResolvePathInValueNSFully(path hir.Path) (ValueNs, bool) {
	res, ok := r.ResolvePathInValueNS(path)
	if !ok || !res.IsFull() {
		return ValueNs{}, false
	}
	return res.Value, true
}

// ResolveModulePath resolves path against the module tree only. The int is
// the index of the first unresolved segment, or -1; on a partial resolution
// the PerNs holds the last resolved type.
func (r *Resolver) ResolveModulePath(path hir.Path) (hir.PerNs, int) {
	s, ok := r.moduleFrame()
	if !ok {
		return hir.PerNs{}, -1
	}
	return r.resolveInModule(s, path)
}

// ResolvePathAsMacro resolves path in the macro namespace.
func (r *Resolver) ResolvePathAsMacro(path hir.Path) (hir.DefID, bool) {
	per, idx := r.ResolveModulePath(path)
	if idx >= 0 || per.Macros == 0 {
		return 0, false
	}
	return per.Macros, true
}

// ResolveKnownTrait resolves an absolute path such as std::future::Future
// to a trait.
func (r *Resolver) ResolveKnownTrait(path hir.Path) (hir.DefID, bool) {
	per, idx := r.ResolveModulePath(path)
	if idx >= 0 {
		return 0, false
	}
	def, ok := r.def(per.Types)
	if !ok || def.Kind != hir.DefTrait {
		return 0, false
	}
	return def.ID, true
}

func (r *Resolver) resolveInModule(s scope, path hir.Path) (hir.PerNs, int) {
	var cur hir.PerNs
	segs := path.Segments
	i := 0
	switch path.Kind {
	case hir.PathCrate:
		if s.krate == 0 {
			return hir.PerNs{}, -1
		}
		cur = hir.TypesOnly(s.krate)
	case hir.PathSelf:
		cur = hir.TypesOnly(s.module)
	case hir.PathSuper:
		m := s.module
		for range path.Supers {
			def, ok := r.def(m)
			if !ok || def.Module == 0 {
				return hir.PerNs{}, -1
			}
			m = def.Module
		}
		cur = hir.TypesOnly(m)
	default:
		if len(segs) == 0 {
			return hir.PerNs{}, -1
		}
		cur = r.resolveNameInModule(s, segs[0])
		if cur.IsEmpty() {
			return hir.PerNs{}, -1
		}
		i = 1
	}

	for ; i < len(segs); i++ {
		def, ok := r.def(cur.Types)
		if !ok {
			return hir.PerNs{}, -1
		}
		switch def.Kind {
		case hir.DefModule:
			next, ok := r.db.ItemScope(def.ID).Get(segs[i])
			if !ok {
				return hir.PerNs{}, -1
			}
			cur = next
		case hir.DefEnum:
			v, ok := r.variant(def.ID, segs[i])
			if !ok {
				return hir.PerNs{}, -1
			}
			cur = hir.Both(v)
		default:
			return hir.TypesOnly(def.ID), i
		}
	}
	return cur, -1
}

// resolveNameInModule looks a single name up the way the first segment of a
// plain path is looked up: module items, builtin types, extern crates, then
// the prelude.
func (r *Resolver) resolveNameInModule(s scope, name string) hir.PerNs {
	if per, ok := r.db.ItemScope(s.module).Get(name); ok {
		return per
	}
	if id, ok := hir.BuiltinID(name); ok {
		return hir.TypesOnly(id)
	}
	if s.krate == 0 {
		return hir.PerNs{}
	}
	if per, ok := r.db.ExternPrelude(s.krate).Get(name); ok {
		return per
	}
	if prelude, ok := r.db.Prelude(s.krate); ok {
		if per, ok := r.db.ItemScope(prelude).Get(name); ok {
			return per
		}
	}
	return hir.PerNs{}
}

func (r *Resolver) variant(enum hir.DefID, name string) (hir.DefID, bool) {
	for _, c := range r.db.Children(enum) {
		if c.Kind == hir.DefVariant && c.Name == name {
			return c.ID, true
		}
	}
	return 0, false
}

// TraitsInScope returns the traits whose methods are callable here: traits
// named in the module or its prelude and the trait of an enclosing impl.
func (r *Resolver) TraitsInScope() []hir.DefID {
	seen := make(map[hir.DefID]bool)
	addTraits := func(items *hir.ItemScope) {
		for _, e := range items.Entries() {
			if def, ok := r.def(e.Def.Types); ok && def.Kind == hir.DefTrait {
				seen[def.ID] = true
			}
		}
	}
	for s := range r.innermost {
		switch s.kind {
		case moduleScope:
			addTraits(r.db.ItemScope(s.module))
			if s.krate != 0 {
				if prelude, ok := r.db.Prelude(s.krate); ok {
					addTraits(r.db.ItemScope(prelude))
				}
			}
		case implScope:
			def, ok := r.def(s.self)
			if !ok || def.Trait == "" {
				continue
			}
			if trait, ok := r.ResolveKnownTrait(hir.ParsePath(def.Trait)); ok {
				seen[trait] = true
			}
		}
	}
	out := make([]hir.DefID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
