// Package resolver implements the resolution environment: an immutable chain
// of lookup scopes (module, generic parameters, impl or ADT Self, expression
// scopes) answering what a name means in each namespace.
package resolver

import (
	"slices"

	"github.com/jward/scopebind/internal/hir"
)

type scopeKind uint8

const (
	moduleScope scopeKind = iota + 1
	genericsScope
	implScope
	adtScope
	exprScope
)

type scope struct {
	kind scopeKind

	// moduleScope
	krate  hir.DefID
	module hir.DefID

	// genericsScope
	def    hir.DefID
	params []hir.GenericParam

	// implScope, adtScope
	self hir.DefID

	// exprScope
	owner   hir.DefID
	scopes  *hir.ExprScopes
	scopeID hir.ScopeID
}

// Resolver is a chain of scopes, outermost first. A Resolver is never
// modified once built; pushing returns a new one.
type Resolver struct {
	db     hir.Database
	scopes []scope
}

// Empty returns the resolver with no scopes. Every lookup against it fails.
func Empty() *Resolver { return &Resolver{} }

// IsEmpty reports whether the chain has no scopes.
func (r *Resolver) IsEmpty() bool { return len(r.scopes) == 0 }

func (r *Resolver) push(s scope) *Resolver {
	scopes := slices.Clone(r.scopes)
	return &Resolver{db: r.db, scopes: append(scopes, s)}
}

// ForModule returns the environment of a module.
func ForModule(db hir.Database, module hir.DefID) *Resolver {
	r := &Resolver{db: db}
	return r.push(scope{kind: moduleScope, krate: db.CrateRoot(module), module: module})
}

// ForDef returns the item environment of a definition: its module, then the
// generic parameters and Self of its container, then its own generic
// parameters.
func ForDef(db hir.Database, id hir.DefID) *Resolver {
	def, ok := db.Def(id)
	if !ok {
		return Empty()
	}
	switch def.Kind {
	case hir.DefModule:
		return ForModule(db, def.ID)
	case hir.DefStruct, hir.DefEnum:
		return ForModule(db, def.Module).
			pushGenerics(def.ID).
			push(scope{kind: adtScope, self: def.ID})
	case hir.DefImpl:
		return ForModule(db, def.Module).
			pushGenerics(def.ID).
			push(scope{kind: implScope, self: def.ID})
	case hir.DefTrait:
		return ForModule(db, def.Module).pushGenerics(def.ID)
	case hir.DefFunction, hir.DefTypeAlias:
		return containerResolver(db, def).pushGenerics(def.ID)
	case hir.DefConst, hir.DefStatic:
		return containerResolver(db, def)
	case hir.DefVariant, hir.DefField:
		if def.Parent != 0 {
			return ForDef(db, def.Parent)
		}
	}
	return ForModule(db, def.Module)
}

func containerResolver(db hir.Database, def hir.Def) *Resolver {
	if def.Parent != 0 {
		return ForDef(db, def.Parent)
	}
	return ForModule(db, def.Module)
}

func (r *Resolver) pushGenerics(def hir.DefID) *Resolver {
	return r.push(scope{kind: genericsScope, def: def, params: r.db.GenericParams(def)})
}

// ForScope returns the item environment of a body owner extended with the
// expression scope chain ending at id.
func ForScope(db hir.Database, owner hir.DefID, scopes *hir.ExprScopes, id hir.ScopeID) *Resolver {
	r := ForDef(db, owner)
	if r.db == nil {
		r = &Resolver{db: db}
	}
	chain := slices.Collect(scopes.ScopeChain(id))
	slices.Reverse(chain)
	for _, s := range chain {
		r = r.push(scope{kind: exprScope, owner: owner, scopes: scopes, scopeID: s})
	}
	return r
}

// innermost yields the scopes innermost first.
func (r *Resolver) innermost(yield func(scope) bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if !yield(r.scopes[i]) {
			return
		}
	}
}

func (r *Resolver) moduleFrame() (scope, bool) {
	for s := range r.innermost {
		if s.kind == moduleScope {
			return s, true
		}
	}
	return scope{}, false
}

// Module returns the module the environment is anchored in.
func (r *Resolver) Module() (hir.DefID, bool) {
	s, ok := r.moduleFrame()
	return s.module, ok
}

// Krate returns the crate root of the environment's module.
func (r *Resolver) Krate() (hir.DefID, bool) {
	s, ok := r.moduleFrame()
	if !ok || s.krate == 0 {
		return 0, false
	}
	return s.krate, true
}

// GenericDef returns the innermost definition with a generic parameter
// scope.
func (r *Resolver) GenericDef() (hir.DefID, bool) {
	for s := range r.innermost {
		if s.kind == genericsScope {
			return s.def, true
		}
	}
	return 0, false
}

// BodyOwner returns the owner of the innermost expression scope.
func (r *Resolver) BodyOwner() (hir.DefID, bool) {
	for s := range r.innermost {
		if s.kind == exprScope {
			return s.owner, true
		}
	}
	return 0, false
}

// ScopeID returns the innermost expression scope.
func (r *Resolver) ScopeID() (hir.ScopeID, bool) {
	for s := range r.innermost {
		if s.kind == exprScope {
			return s.scopeID, true
		}
	}
	return hir.NoScope, false
}
