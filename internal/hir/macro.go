package hir

import "github.com/jward/scopebind/internal/syntax"

// AstID identifies a syntax node by its tree instance and pointer.
type AstID = Source

// MacroCallLoc is the identity of one macro call: which macro is invoked
// where.
type MacroCallLoc struct {
	Def   DefID
	AstID AstID
}

// TokenMapping pairs a token range in the call's argument with the range of
// its counterpart in the expansion.
type TokenMapping struct {
	Call     syntax.TextRange
	Expanded syntax.TextRange
}

// ExpansionInfo relates a materialized expansion to its call site.
type ExpansionInfo struct {
	Call MacroCallID
	// Arg is the range of the call's token tree in CallTree.
	Arg          syntax.TextRange
	Tokens       []TokenMapping
	CallTree     *syntax.Tree
	ExpandedTree *syntax.Tree
}

// MapTokenDown maps a token of the call's argument to its counterpart in the
// expansion.
func (e *ExpansionInfo) MapTokenDown(token syntax.Node) (syntax.Node, bool) {
	if e == nil || token.IsNil() || token.File() != e.CallTree.File() {
		return syntax.Node{}, false
	}
	r := token.Range()
	if !e.Arg.ContainsRange(r) {
		return syntax.Node{}, false
	}
	for _, m := range e.Tokens {
		if m.Call == r {
			return e.ExpandedTree.TokenForRange(m.Expanded)
		}
	}
	return syntax.Node{}, false
}

// MapTokenUp maps a token of the expansion back to the call's argument.
func (e *ExpansionInfo) MapTokenUp(token syntax.Node) (syntax.Node, bool) {
	if e == nil || token.IsNil() || token.File() != e.ExpandedTree.File() {
		return syntax.Node{}, false
	}
	r := token.Range()
	for _, m := range e.Tokens {
		if m.Expanded == r {
			return e.CallTree.TokenForRange(m.Call)
		}
	}
	return syntax.Node{}, false
}
