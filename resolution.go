package scopebind

import (
	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/resolver"
	"github.com/jward/scopebind/internal/syntax"
)

// PathResolutionKind tags the variant held by a PathResolution.
type PathResolutionKind uint8

const (
	// ResolvedDef is an item: ADT, variant, function, const, static,
	// type alias, trait, module or builtin type.
	ResolvedDef PathResolutionKind = iota + 1
	ResolvedLocal
	ResolvedGenericParam
	// ResolvedSelfType is Self inside an impl; Def is the impl.
	ResolvedSelfType
	ResolvedMacro
	// ResolvedAssocItem is an associated item found through the inferred
	// type of a path's qualifier.
	ResolvedAssocItem
)

func (k PathResolutionKind) String() string {
	switch k {
	case ResolvedDef:
		return "def"
	case ResolvedLocal:
		return "local"
	case ResolvedGenericParam:
		return "generic_param"
	case ResolvedSelfType:
		return "self_type"
	case ResolvedMacro:
		return "macro"
	case ResolvedAssocItem:
		return "assoc_item"
	default:
		return "unknown"
	}
}

// Local identifies a local binding by the body that owns it and its
// binding pattern.
type Local struct {
	Owner hir.DefID
	Pat   hir.PatID
}

// PathResolution is what a path denotes. Kind selects which field is set:
// Local for ResolvedLocal, Param for ResolvedGenericParam, Def otherwise.
type PathResolution struct {
	Kind  PathResolutionKind
	Def   hir.Def
	Local Local
	Param hir.GenericParam
}

// Resolution channels, tried in this order.
const (
	channelType  = "type"
	channelValue = "value"
	channelItem  = "item"
	channelMacro = "macro"
	channelAssoc = "assoc"
)

// ResolveHirPath resolves a lowered path in the analyzer's environment. The
// type namespace is tried first, then values, then the module tree and
// finally macros; the first channel with an answer wins.
func (a *SourceAnalyzer) ResolveHirPath(path hir.Path) (PathResolution, bool) {
	channels := []struct {
		name    string
		resolve func(hir.Path) (PathResolution, bool)
	}{
		{channelType, a.resolveType},
		{channelValue, a.resolveValue},
		{channelItem, a.resolveItem},
		{channelMacro, a.resolveMacro},
	}
	for _, ch := range channels {
		if res, ok := ch.resolve(path); ok {
			resolutionsTotal.WithLabelValues(ch.name).Inc()
			return res, true
		}
	}
	return PathResolution{}, false
}

func (a *SourceAnalyzer) defResolution(kind PathResolutionKind, id hir.DefID) (PathResolution, bool) {
	def, ok := a.db.Def(id)
	if !ok {
		return PathResolution{}, false
	}
	return PathResolution{Kind: kind, Def: def}, true
}

func (a *SourceAnalyzer) resolveType(path hir.Path) (PathResolution, bool) {
	ty, ok := a.resolver.ResolvePathInTypeNSFully(path)
	if !ok {
		return PathResolution{}, false
	}
	switch ty.Kind {
	case resolver.TypeSelfType:
		return a.defResolution(ResolvedSelfType, ty.Def)
	case resolver.TypeGenericParam:
		if _, ok := a.resolver.GenericDef(); !ok {
			panic("scopebind: generic parameter resolved without a generic definition in scope")
		}
		return PathResolution{Kind: ResolvedGenericParam, Param: ty.Param}, true
	default:
		return a.defResolution(ResolvedDef, ty.Def)
	}
}

func (a *SourceAnalyzer) resolveValue(path hir.Path) (PathResolution, bool) {
	v, ok := a.resolver.ResolvePathInValueNSFully(path)
	if !ok {
		return PathResolution{}, false
	}
	if v.Kind == resolver.ValueLocalBinding {
		owner, ok := a.resolver.BodyOwner()
		if !ok {
			return PathResolution{}, false
		}
		return PathResolution{Kind: ResolvedLocal, Local: Local{Owner: owner, Pat: v.Pat}}, true
	}
	return a.defResolution(ResolvedDef, v.Def)
}

// resolveItem looks the path up in the module tree. Only full resolutions
// in the type namespace count.
func (a *SourceAnalyzer) resolveItem(path hir.Path) (PathResolution, bool) {
	per, idx := a.resolver.ResolveModulePath(path)
	if idx >= 0 || per.Types == 0 {
		return PathResolution{}, false
	}
	return a.defResolution(ResolvedDef, per.Types)
}

func (a *SourceAnalyzer) resolveMacro(path hir.Path) (PathResolution, bool) {
	id, ok := a.resolver.ResolvePathAsMacro(path)
	if !ok {
		return PathResolution{}, false
	}
	return a.defResolution(ResolvedMacro, id)
}

// ResolvePath resolves a path-shaped node. The name of a scoped path
// resolves as the whole path. Paths that are expressions or patterns of the
// analyzed body are first looked up among the associated items inference
// resolved; a body without an inference result answers nothing for them.
func (a *SourceAnalyzer) ResolvePath(node syntax.Node) (PathResolution, bool) {
	if node.IsNil() {
		return PathResolution{}, false
	}
	if parent, ok := node.Parent(); ok && isScopedPath(parent.Kind()) {
		if name, ok := parent.ChildByField("name"); ok && name.Equal(node) {
			node = parent
		}
	}

	if expr, ok := a.exprID(node); ok {
		if a.infer == nil {
			return PathResolution{}, false
		}
		if def, ok := a.infer.AssocResolutionForExpr(expr); ok {
			return a.assocResolution(def)
		}
	} else if pat, ok := a.patID(node); ok {
		if a.infer == nil {
			return PathResolution{}, false
		}
		if def, ok := a.infer.AssocResolutionForPat(pat); ok {
			return a.assocResolution(def)
		}
	}

	path, ok := hir.PathFromNode(node)
	if !ok {
		return PathResolution{}, false
	}
	return a.ResolveHirPath(path)
}

func (a *SourceAnalyzer) assocResolution(def hir.DefID) (PathResolution, bool) {
	res, ok := a.defResolution(ResolvedAssocItem, def)
	if ok {
		resolutionsTotal.WithLabelValues(channelAssoc).Inc()
	}
	return res, ok
}

func isScopedPath(kind string) bool {
	return kind == "scoped_identifier" || kind == "scoped_type_identifier"
}
