package resolver

import "github.com/jward/scopebind/internal/hir"

type ScopeDefKind uint8

const (
	ScopePerNs ScopeDefKind = iota + 1
	ScopeImplSelfType
	ScopeAdtSelfType
	ScopeGenericParam
	ScopeLocal
)

// ScopeDef is one name visible in an environment, as reported by
// ProcessAllNames.
type ScopeDef struct {
	Kind  ScopeDefKind
	PerNs hir.PerNs
	// Def is the impl or ADT for the Self kinds and the body owner for
	// locals.
	Def   hir.DefID
	Param hir.GenericParam
	Pat   hir.PatID
}

// ProcessAllNames calls f for every name visible in the environment,
// innermost scope first. Shadowed names are reported again by outer scopes;
// callers that need uniqueness deduplicate by name.
func (r *Resolver) ProcessAllNames(f func(name string, def ScopeDef)) {
	for s := range r.innermost {
		switch s.kind {
		case moduleScope:
			for _, e := range r.db.ItemScope(s.module).Entries() {
				f(e.Name, ScopeDef{Kind: ScopePerNs, PerNs: e.Def})
			}
			if s.krate == 0 {
				continue
			}
			for _, e := range r.db.ExternPrelude(s.krate).Entries() {
				f(e.Name, ScopeDef{Kind: ScopePerNs, PerNs: e.Def})
			}
			if prelude, ok := r.db.Prelude(s.krate); ok {
				for _, e := range r.db.ItemScope(prelude).Entries() {
					f(e.Name, ScopeDef{Kind: ScopePerNs, PerNs: e.Def})
				}
			}
		case genericsScope:
			for _, p := range s.params {
				f(p.Name, ScopeDef{Kind: ScopeGenericParam, Param: p})
			}
		case implScope:
			f("Self", ScopeDef{Kind: ScopeImplSelfType, Def: s.self})
		case adtScope:
			f("Self", ScopeDef{Kind: ScopeAdtSelfType, Def: s.self})
		case exprScope:
			for _, e := range s.scopes.Entries(s.scopeID) {
				f(e.Name, ScopeDef{Kind: ScopeLocal, Def: s.owner, Pat: e.Pat})
			}
		}
	}
}
