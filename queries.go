package scopebind

import (
	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/resolver"
	"github.com/jward/scopebind/internal/syntax"
)

// TypeOf returns the inferred type of an expression of the analyzed body.
func (a *SourceAnalyzer) TypeOf(expr syntax.Node) (hir.Ty, bool) {
	id, ok := a.exprID(expr)
	if !ok || a.infer == nil {
		return hir.Unknown, false
	}
	return a.infer.TypeOfExpr(id)
}

// TypeOfPat returns the inferred type of a pattern of the analyzed body.
func (a *SourceAnalyzer) TypeOfPat(pat syntax.Node) (hir.Ty, bool) {
	id, ok := a.patID(pat)
	if !ok || a.infer == nil {
		return hir.Unknown, false
	}
	return a.infer.TypeOfPat(id)
}

func (a *SourceAnalyzer) exprDef(n syntax.Node, lookup func(*hir.InferenceResult, hir.ExprID) (hir.DefID, bool)) (hir.Def, bool) {
	id, ok := a.exprID(n)
	if !ok || a.infer == nil {
		return hir.Def{}, false
	}
	def, ok := lookup(a.infer, id)
	if !ok {
		return hir.Def{}, false
	}
	return a.db.Def(def)
}

// ResolveMethodCall returns the function a method call_expression calls.
func (a *SourceAnalyzer) ResolveMethodCall(call syntax.Node) (hir.Def, bool) {
	return a.exprDef(call, (*hir.InferenceResult).MethodResolution)
}

// ResolveField returns the field a field_expression reads.
func (a *SourceAnalyzer) ResolveField(field syntax.Node) (hir.Def, bool) {
	return a.exprDef(field, (*hir.InferenceResult).FieldResolution)
}

// ResolveRecordField returns the field a field_initializer or
// shorthand_field_initializer of a struct literal initializes.
func (a *SourceAnalyzer) ResolveRecordField(init syntax.Node) (hir.Def, bool) {
	var value syntax.Node
	switch init.Kind() {
	case "field_initializer":
		v, ok := init.ChildByField("value")
		if !ok {
			return hir.Def{}, false
		}
		value = v
	case "shorthand_field_initializer":
		children := init.NamedChildren()
		if len(children) == 0 {
			return hir.Def{}, false
		}
		value = children[0]
	default:
		return hir.Def{}, false
	}
	return a.exprDef(value, (*hir.InferenceResult).RecordFieldResolution)
}

// ResolveRecordLiteral returns the struct or variant a struct_expression
// builds.
func (a *SourceAnalyzer) ResolveRecordLiteral(lit syntax.Node) (hir.Def, bool) {
	return a.exprDef(lit, (*hir.InferenceResult).VariantResolutionForExpr)
}

// ResolveRecordPattern returns the struct or variant a struct_pattern
// matches.
func (a *SourceAnalyzer) ResolveRecordPattern(pat syntax.Node) (hir.Def, bool) {
	id, ok := a.patID(pat)
	if !ok || a.infer == nil {
		return hir.Def{}, false
	}
	def, ok := a.infer.VariantResolutionForPat(id)
	if !ok {
		return hir.Def{}, false
	}
	return a.db.Def(def)
}

// LocalEntry is a local binding visible at some position.
type LocalEntry struct {
	Name string
	Pat  hir.PatID
	// Source is the syntax of the binding pattern.
	Source hir.Source
}

// ResolveLocalName resolves an identifier to the local binding it refers
// to, looking from the scope of the identifier itself.
func (a *SourceAnalyzer) ResolveLocalName(ident syntax.Node) (LocalEntry, bool) {
	if a.scopes == nil || ident.IsNil() {
		return LocalEntry{}, false
	}
	name := ident.Text()
	entry, ok := a.scopes.ResolveNameInScope(a.scopeFor(ident), name)
	if !ok {
		return LocalEntry{}, false
	}
	src, ok := a.sourceMap.PatSyntax(entry.Pat)
	if !ok {
		return LocalEntry{}, false
	}
	return LocalEntry{Name: name, Pat: entry.Pat, Source: src}, true
}

// ScopeDefKind tells what a name seen by ProcessAllNames refers to.
type ScopeDefKind uint8

const (
	ScopePerNs ScopeDefKind = iota + 1
	ScopeImplSelfType
	ScopeAdtSelfType
	ScopeGenericParam
	ScopeLocal
)

func (k ScopeDefKind) String() string {
	switch k {
	case ScopePerNs:
		return "item"
	case ScopeImplSelfType:
		return "impl_self"
	case ScopeAdtSelfType:
		return "adt_self"
	case ScopeGenericParam:
		return "generic_param"
	case ScopeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ScopeDef is one name visible from the analyzed position.
type ScopeDef struct {
	Kind ScopeDefKind
	// PerNs holds the item in each namespace for ScopePerNs.
	PerNs hir.PerNs
	// Def is the impl or ADT that Self denotes.
	Def   hir.DefID
	Param hir.GenericParam
	Local Local
}

// ProcessAllNames calls f for every name visible from the analyzed
// position, innermost first. Shadowed names are reported more than once.
func (a *SourceAnalyzer) ProcessAllNames(f func(name string, def ScopeDef)) {
	a.resolver.ProcessAllNames(func(name string, d resolver.ScopeDef) {
		switch d.Kind {
		case resolver.ScopePerNs:
			f(name, ScopeDef{Kind: ScopePerNs, PerNs: d.PerNs})
		case resolver.ScopeImplSelfType:
			f(name, ScopeDef{Kind: ScopeImplSelfType, Def: d.Def})
		case resolver.ScopeAdtSelfType:
			f(name, ScopeDef{Kind: ScopeAdtSelfType, Def: d.Def})
		case resolver.ScopeGenericParam:
			if _, ok := a.resolver.GenericDef(); !ok {
				panic("scopebind: generic parameter in scope without a generic definition")
			}
			f(name, ScopeDef{Kind: ScopeGenericParam, Param: d.Param})
		case resolver.ScopeLocal:
			owner, ok := a.resolver.BodyOwner()
			if !ok {
				panic("scopebind: local binding in scope without a body owner")
			}
			f(name, ScopeDef{Kind: ScopeLocal, Local: Local{Owner: owner, Pat: d.Pat}})
		}
	})
}

// futureTrait is the trait ImplsFuture checks for.
var futureTrait = hir.ParsePath("std::future::Future")

// ImplsFuture reports whether ty implements std::future::Future as visible
// from the analyzed position.
func (a *SourceAnalyzer) ImplsFuture(ty hir.Ty) bool {
	trait, ok := a.resolver.ResolveKnownTrait(futureTrait)
	if !ok {
		return false
	}
	if _, ok := a.resolver.Krate(); !ok {
		return false
	}
	return a.db.ImplementsTrait(ty, trait)
}

// Reference is one use of a local binding.
type Reference struct {
	Name  string
	Range syntax.TextRange
}

// FindAllRefs returns the identifiers of the enclosing function that refer
// to the binding pattern pat, in source order. The binding itself is not
// included.
func (a *SourceAnalyzer) FindAllRefs(pat syntax.Node) []Reference {
	if pat.IsNil() {
		return nil
	}
	var fn syntax.Node
	for anc := range pat.Ancestors() {
		if anc.Kind() == "function_item" {
			fn = anc
			break
		}
	}
	if fn.IsNil() {
		return nil
	}
	target := hir.SourceOf(pat)

	var refs []Reference
	for n := range fn.Descendants() {
		if n.Kind() != "identifier" {
			continue
		}
		// Only expressions refer to bindings; binding identifiers are
		// patterns and never expressions.
		if _, ok := a.exprID(n); !ok {
			continue
		}
		entry, ok := a.ResolveLocalName(n)
		if !ok || entry.Source != target {
			continue
		}
		refs = append(refs, Reference{Name: n.Text(), Range: n.Range()})
	}
	return refs
}
