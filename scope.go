package scopebind

import (
	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

// scopeFor returns the scope of the innermost expression enclosing node
// that the body's scope tree knows about.
func (a *SourceAnalyzer) scopeFor(node syntax.Node) hir.ScopeID {
	for anc := range node.Ancestors() {
		if !syntax.IsExpr(anc.Kind()) {
			continue
		}
		id, ok := a.exprID(anc)
		if !ok {
			continue
		}
		if scope, ok := a.scopes.ScopeFor(id); ok {
			return scope
		}
	}
	return hir.NoScope
}

type scopedExpr struct {
	id    hir.ExprID
	rng   syntax.TextRange
	scope hir.ScopeID
}

// scopeForOffset returns the scope of the smallest expression containing
// offset, refined by adjust. Expressions lowered from another tree instance
// are ignored.
func (a *SourceAnalyzer) scopeForOffset(offset uint32) hir.ScopeID {
	var exprs []scopedExpr
	for id, scope := range a.scopes.ScopeByExpr() {
		src, ok := a.sourceMap.ExprSyntax(id)
		if !ok || src.File != a.file {
			continue
		}
		exprs = append(exprs, scopedExpr{id: id, rng: src.Ptr.Range, scope: scope})
	}
	if len(exprs) == 0 {
		return hir.NoScope
	}

	best := exprs[0]
	for _, e := range exprs[1:] {
		if closerTo(offset, e, best) {
			best = e
		}
	}
	return adjust(exprs, best, offset)
}

// closerTo orders expressions by (not containing offset, length, start, id).
func closerTo(offset uint32, x, y scopedExpr) bool {
	xc, yc := x.rng.Contains(offset), y.rng.Contains(offset)
	if xc != yc {
		return xc
	}
	if x.rng.Len() != y.rng.Len() {
		return x.rng.Len() < y.rng.Len()
	}
	if x.rng.Start != y.rng.Start {
		return x.rng.Start < y.rng.Start
	}
	return x.id < y.id
}

// adjust looks for an expression inside the candidate that starts before
// offset, such as the initializer of a preceding let, whose scope is more
// precise than the candidate's. Among those, a container wins over what it
// contains, so bindings of a closed inner block stay inside it, and
// otherwise the later one wins.
func adjust(exprs []scopedExpr, candidate scopedExpr, offset uint32) hir.ScopeID {
	var (
		best  scopedExpr
		found bool
	)
	for _, e := range exprs {
		r := e.rng
		if r.Start > offset || r == candidate.rng || !candidate.rng.ContainsRange(r) {
			continue
		}
		switch {
		case !found:
			best, found = e, true
		case r.ContainsRange(best.rng):
			best = e
		case best.rng.ContainsRange(r):
		case r.Start > best.rng.Start:
			best = e
		}
	}
	if found {
		return best.scope
	}
	return candidate.scope
}
