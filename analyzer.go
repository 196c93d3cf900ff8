package scopebind

import (
	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/resolver"
	"github.com/jward/scopebind/internal/syntax"
)

// ownerShape classifies the syntax nodes that can own a resolution
// environment.
type ownerShape uint8

const (
	noOwner ownerShape = iota
	moduleOwner
	fileOwner
	adtOwner
	bodyOwner
)

func (s ownerShape) String() string {
	switch s {
	case moduleOwner:
		return "module"
	case fileOwner:
		return "file"
	case adtOwner:
		return "adt"
	case bodyOwner:
		return "body"
	default:
		return "none"
	}
}

func shapeOf(kind string) ownerShape {
	switch kind {
	case "mod_item":
		return moduleOwner
	case "source_file":
		return fileOwner
	case "struct_item", "enum_item":
		return adtOwner
	case "function_item", "const_item", "static_item":
		return bodyOwner
	}
	return noOwner
}

// SourceAnalyzer answers semantic questions about one position of a syntax
// tree. It captures the resolution environment that was in effect where the
// position was analyzed: the enclosing item, and for positions inside a body
// the body's source map, scope tree and inference result together with the
// expression scope the position belongs to.
//
// A SourceAnalyzer is immutable once built and may be shared between
// goroutines as long as the database is.
type SourceAnalyzer struct {
	db       hir.Database
	file     syntax.FileID
	resolver *resolver.Resolver

	// Set only when the position lies inside a body; all three come from
	// the same owner.
	owner     hir.DefID
	sourceMap *hir.BodySourceMap
	scopes    *hir.ExprScopes
	infer     *hir.InferenceResult
}

// Analyze builds the analyzer for node. Inside a body the expression scope
// is taken from the innermost enclosing expression.
func Analyze(db hir.Database, node syntax.Node) *SourceAnalyzer {
	return analyze(db, node, 0, false)
}

// AnalyzeAt builds the analyzer for node, locating the expression scope by
// offset instead. Use it when the position has no expression of its own,
// such as whitespace between statements.
func AnalyzeAt(db hir.Database, node syntax.Node, offset uint32) *SourceAnalyzer {
	return analyze(db, node, offset, true)
}

func analyze(db hir.Database, node syntax.Node, offset uint32, hasOffset bool) *SourceAnalyzer {
	a := &SourceAnalyzer{db: db, file: node.File()}
	for anc := range node.Ancestors() {
		shape := shapeOf(anc.Kind())
		if shape == noOwner {
			continue
		}
		def, ok := a.ownerDef(shape, anc)
		if !ok {
			continue
		}
		analyzersTotal.WithLabelValues(shape.String()).Inc()
		if shape != bodyOwner {
			a.resolver = resolver.ForDef(db, def)
			return a
		}
		a.owner = def
		a.sourceMap = db.BodySourceMap(def)
		a.scopes = db.ExprScopes(def)
		a.infer = db.Infer(def)
		var scope hir.ScopeID
		if hasOffset {
			scope = a.scopeForOffset(offset)
		} else {
			scope = a.scopeFor(node)
		}
		a.resolver = resolver.ForScope(db, def, a.scopes, scope)
		return a
	}
	analyzersTotal.WithLabelValues(noOwner.String()).Inc()
	a.resolver = resolver.Empty()
	return a
}

// ownerDef maps an owner-shaped node to its definition.
func (a *SourceAnalyzer) ownerDef(shape ownerShape, n syntax.Node) (hir.DefID, bool) {
	def, ok := a.db.DefForSource(hir.SourceOf(n))
	if ok {
		if shape == bodyOwner && !def.Kind.HasBody() {
			return 0, false
		}
		return def.ID, true
	}
	if shape == fileOwner && !a.file.IsMacro() {
		return a.db.ModuleForFile(a.file.File)
	}
	return 0, false
}

// BodyOwner returns the function, const or static whose body contains the
// analyzed position.
func (a *SourceAnalyzer) BodyOwner() (hir.DefID, bool) {
	return a.owner, a.owner != 0
}

// File returns the syntax tree instance the analyzer was built for.
func (a *SourceAnalyzer) File() syntax.FileID { return a.file }

// Resolver returns the resolution environment. Callers must not assume it
// is non-empty.
func (a *SourceAnalyzer) Resolver() *resolver.Resolver { return a.resolver }

func (a *SourceAnalyzer) source(n syntax.Node) hir.Source {
	return hir.Source{File: a.file, Ptr: n.Ptr()}
}

// exprID maps a node of the analyzed file to an expression of the body.
func (a *SourceAnalyzer) exprID(n syntax.Node) (hir.ExprID, bool) {
	if n.IsNil() || n.File() != a.file {
		return 0, false
	}
	return a.sourceMap.NodeExpr(a.source(n))
}

func (a *SourceAnalyzer) patID(n syntax.Node) (hir.PatID, bool) {
	if n.IsNil() || n.File() != a.file {
		return 0, false
	}
	return a.sourceMap.NodePat(a.source(n))
}
