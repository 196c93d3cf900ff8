package scopebind

import (
	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

// Expansion identifies the expansion of one macro call together with the
// syntactic shape it is parsed as.
type Expansion struct {
	Call     hir.MacroCallID
	Fragment syntax.Fragment
}

// FileID returns the pseudo-file the expansion is materialized as.
func (e *Expansion) FileID() syntax.FileID {
	return syntax.MacroFile(int64(e.Call), e.Fragment)
}

// MapTokenDown maps a token of the call's argument to the token it became
// in the expansion. It fails when the expansion was never materialized or
// the token is not part of the argument.
func (e *Expansion) MapTokenDown(db hir.Database, token syntax.Node) (syntax.Node, bool) {
	info, ok := db.ExpansionInfo(e.FileID())
	if !ok {
		return syntax.Node{}, false
	}
	return info.MapTokenDown(token)
}

// MapTokenUp maps a token of the expansion back to the call's argument.
func (e *Expansion) MapTokenUp(db hir.Database, token syntax.Node) (syntax.Node, bool) {
	info, ok := db.ExpansionInfo(e.FileID())
	if !ok {
		return syntax.Node{}, false
	}
	return info.MapTokenUp(token)
}

// ResolveMacroCall returns the macro a macro_invocation calls.
func (a *SourceAnalyzer) ResolveMacroCall(call syntax.Node) (hir.Def, bool) {
	path, ok := hir.PathFromNode(call)
	if !ok {
		return hir.Def{}, false
	}
	id, ok := a.resolver.ResolvePathAsMacro(path)
	if !ok {
		return hir.Def{}, false
	}
	return a.db.Def(id)
}

// Expand interns the macro call and returns its expansion. The fragment
// kind follows from where the call appears.
func (a *SourceAnalyzer) Expand(call syntax.Node) (*Expansion, bool) {
	def, ok := a.ResolveMacroCall(call)
	if !ok {
		return nil, false
	}
	id := a.db.InternMacro(hir.MacroCallLoc{Def: def.ID, AstID: hir.SourceOf(call)})
	return &Expansion{Call: id, Fragment: fragmentFor(call)}, true
}

func fragmentFor(call syntax.Node) syntax.Fragment {
	parent, ok := call.Parent()
	if !ok {
		return syntax.FragmentExpr
	}
	switch parent.Kind() {
	case "declaration_list", "source_file":
		return syntax.FragmentItems
	case "let_declaration":
		// Macros in pattern position are not told apart yet.
		return syntax.FragmentExpr
	case "expression_statement", "block":
		return syntax.FragmentStatements
	case "arguments", "try_expression":
		return syntax.FragmentExpr
	}
	return syntax.FragmentItems
}
