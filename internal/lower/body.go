package lower

import (
	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

// nonExprKinds are never descended into when looking for subexpressions:
// types, labels, attributes and the like can contain identifiers that are
// not expressions.
var nonExprKinds = map[string]bool{
	"type_identifier":        true,
	"scoped_type_identifier": true,
	"generic_type":           true,
	"type_arguments":         true,
	"primitive_type":         true,
	"reference_type":         true,
	"pointer_type":           true,
	"tuple_type":             true,
	"array_type":             true,
	"function_type":          true,
	"abstract_type":          true,
	"dynamic_type":           true,
	"bounded_type":           true,
	"never_type":             true,
	"unit_type":              true,
	"label":                  true,
	"lifetime":               true,
	"attribute_item":         true,
	"inner_attribute_item":   true,
	"field_identifier":       true,
	"visibility_modifier":    true,
	"token_tree":             true,
	"line_comment":           true,
	"block_comment":          true,
}

// bodyLowerer allocates the expressions, patterns and scopes of one body.
// Ids are allocated in pre-order, so an expression always has a lower id
// than the expressions nested in it.
type bodyLowerer struct {
	ds    store.DataStore
	file  int64
	owner int64

	nextExpr  uint32
	nextPat   uint32
	nextScope uint32
	err       error
}

func newBodyLowerer(ds store.DataStore, file, owner int64) *bodyLowerer {
	return &bodyLowerer{ds: ds, file: file, owner: owner}
}

func (b *bodyLowerer) newScope(parent uint32) uint32 {
	b.nextScope++
	id := b.nextScope
	if b.err == nil {
		_, b.err = b.ds.InsertBodyScope(&store.BodyScope{OwnerID: b.owner, ScopeID: id, ParentScopeID: parent})
	}
	return id
}

func (b *bodyLowerer) allocExpr(n syntax.Node, scope uint32) {
	idx := b.nextExpr
	b.nextExpr++
	if b.err != nil {
		return
	}
	r := n.Range()
	if _, b.err = b.ds.InsertExpr(&store.Expr{
		OwnerID: b.owner, Idx: idx, FileID: b.file, Kind: n.Kind(), StartByte: r.Start, EndByte: r.End,
	}); b.err != nil {
		return
	}
	_, b.err = b.ds.InsertExprScope(&store.ExprScope{OwnerID: b.owner, ExprIdx: idx, ScopeID: scope})
}

func (b *bodyLowerer) allocPat(n syntax.Node) uint32 {
	idx := b.nextPat
	b.nextPat++
	if b.err == nil {
		r := n.Range()
		_, b.err = b.ds.InsertPat(&store.Pat{
			OwnerID: b.owner, Idx: idx, FileID: b.file, Kind: n.Kind(), StartByte: r.Start, EndByte: r.End,
		})
	}
	return idx
}

func (b *bodyLowerer) bind(scope uint32, name string, pat uint32) {
	if b.err == nil {
		_, b.err = b.ds.InsertScopeEntry(&store.ScopeEntry{OwnerID: b.owner, ScopeID: scope, Name: name, PatIdx: pat})
	}
}

// lowerOwner lowers the body of a function, const or static. Parameters are
// bound in the root scope.
func (b *bodyLowerer) lowerOwner(n syntax.Node) error {
	root := b.newScope(0)
	switch n.Kind() {
	case "function_item":
		if params, ok := n.ChildByField("parameters"); ok {
			for _, p := range params.NamedChildren() {
				switch p.Kind() {
				case "self_parameter":
					b.bind(root, "self", b.allocPat(p))
				case "parameter":
					if pat, ok := p.ChildByField("pattern"); ok {
						b.pat(pat, root)
					}
				}
			}
		}
		if body, ok := n.ChildByField("body"); ok {
			b.expr(body, root)
		}
	case "const_item", "static_item":
		if value, ok := n.ChildByField("value"); ok {
			b.expr(value, root)
		}
	}
	return b.err
}

func (b *bodyLowerer) expr(n syntax.Node, scope uint32) {
	if b.err != nil {
		return
	}
	b.allocExpr(n, scope)

	switch n.Kind() {
	case "block":
		b.statements(n, b.newScope(scope))

	case "macro_invocation",
		"identifier", "scoped_identifier", "self", "generic_function":
		// Leaves: macro arguments are not lowered and paths have no
		// subexpressions.

	case "if_expression", "while_expression":
		inner := scope
		if cond, ok := n.ChildByField("condition"); ok {
			inner = b.condition(cond, scope)
		}
		for _, field := range []string{"consequence", "body"} {
			if body, ok := n.ChildByField(field); ok {
				b.expr(body, inner)
			}
		}
		if alt, ok := n.ChildByField("alternative"); ok {
			b.subexprs(alt, scope)
		}

	case "if_let_expression", "while_let_expression":
		if value, ok := n.ChildByField("value"); ok {
			b.expr(value, scope)
		}
		inner := b.newScope(scope)
		if pat, ok := n.ChildByField("pattern"); ok {
			b.pat(pat, inner)
		}
		for _, field := range []string{"consequence", "body"} {
			if body, ok := n.ChildByField(field); ok {
				b.expr(body, inner)
			}
		}
		if alt, ok := n.ChildByField("alternative"); ok {
			b.subexprs(alt, scope)
		}

	case "for_expression":
		if value, ok := n.ChildByField("value"); ok {
			b.expr(value, scope)
		}
		inner := b.newScope(scope)
		if pat, ok := n.ChildByField("pattern"); ok {
			b.pat(pat, inner)
		}
		if body, ok := n.ChildByField("body"); ok {
			b.expr(body, inner)
		}

	case "closure_expression":
		inner := b.newScope(scope)
		if params, ok := n.ChildByField("parameters"); ok {
			for _, p := range params.NamedChildren() {
				if p.Kind() == "parameter" {
					if pat, ok := p.ChildByField("pattern"); ok {
						b.pat(pat, inner)
					}
				} else if syntax.IsPattern(p.Kind()) {
					b.pat(p, inner)
				}
			}
		}
		if body, ok := n.ChildByField("body"); ok {
			b.expr(body, inner)
		}

	case "match_expression":
		if value, ok := n.ChildByField("value"); ok {
			b.expr(value, scope)
		}
		body, ok := n.ChildByField("body")
		if !ok {
			return
		}
		for _, arm := range body.NamedChildren() {
			if arm.Kind() == "match_arm" {
				b.matchArm(arm, scope)
			}
		}

	default:
		b.subexprs(n, scope)
	}
}

// subexprs lowers the expressions below n, looking through non-expression
// wrappers such as argument lists and field initializers.
func (b *bodyLowerer) subexprs(n syntax.Node, scope uint32) {
	for _, c := range n.NamedChildren() {
		kind := c.Kind()
		switch {
		case nonExprKinds[kind]:
		case syntax.IsExpr(kind):
			b.expr(c, scope)
		case kind == "let_condition" || kind == "let_chain":
			b.condition(c, scope)
		default:
			b.subexprs(c, scope)
		}
	}
}

// statements lowers the statements of a block. Each let opens a scope for
// the rest of the block after its initializer.
func (b *bodyLowerer) statements(block syntax.Node, scope uint32) {
	cur := scope
	for _, c := range block.NamedChildren() {
		switch kind := c.Kind(); {
		case kind == "let_declaration":
			if value, ok := c.ChildByField("value"); ok {
				b.expr(value, cur)
			}
			if alt, ok := c.ChildByField("alternative"); ok {
				b.expr(alt, cur)
			}
			next := b.newScope(cur)
			if pat, ok := c.ChildByField("pattern"); ok {
				b.pat(pat, next)
			}
			cur = next
		case kind == "expression_statement":
			b.subexprs(c, cur)
		case syntax.IsExpr(kind):
			b.expr(c, cur)
		}
	}
}

// condition lowers an if or while condition and returns the scope the
// guarded body runs in.
func (b *bodyLowerer) condition(cond syntax.Node, scope uint32) uint32 {
	switch cond.Kind() {
	case "let_condition":
		if value, ok := cond.ChildByField("value"); ok {
			b.expr(value, scope)
		}
		inner := b.newScope(scope)
		if pat, ok := cond.ChildByField("pattern"); ok {
			b.pat(pat, inner)
		}
		return inner
	case "let_chain":
		cur := scope
		for _, c := range cond.NamedChildren() {
			if c.Kind() == "let_condition" {
				cur = b.condition(c, cur)
			} else if syntax.IsExpr(c.Kind()) {
				b.expr(c, cur)
			}
		}
		return cur
	}
	if syntax.IsExpr(cond.Kind()) {
		b.expr(cond, scope)
	}
	return scope
}

func (b *bodyLowerer) matchArm(arm syntax.Node, scope uint32) {
	inner := b.newScope(scope)
	if mp, ok := arm.ChildByField("pattern"); ok {
		guard, hasGuard := mp.ChildByField("condition")
		for _, c := range mp.NamedChildren() {
			if hasGuard && c.Equal(guard) {
				continue
			}
			if syntax.IsPattern(c.Kind()) {
				b.pat(c, inner)
				break
			}
		}
		if hasGuard {
			inner = b.condition(guard, inner)
		}
	}
	if value, ok := arm.ChildByField("value"); ok {
		b.expr(value, inner)
	}
}

// pat allocates a pattern and binds the names it introduces in scope.
// Identifier patterns are always bindings.
func (b *bodyLowerer) pat(n syntax.Node, scope uint32) {
	if b.err != nil {
		return
	}
	idx := b.allocPat(n)

	switch n.Kind() {
	case "identifier":
		b.bind(scope, n.Text(), idx)

	case "captured_pattern":
		children := n.NamedChildren()
		for i, c := range children {
			if i == 0 && c.Kind() == "identifier" {
				b.bind(scope, c.Text(), idx)
				continue
			}
			b.pat(c, scope)
		}

	case "tuple_struct_pattern", "struct_pattern":
		ty, _ := n.ChildByField("type")
		for _, c := range n.NamedChildren() {
			if !ty.IsNil() && c.Equal(ty) {
				continue
			}
			if c.Kind() == "field_pattern" {
				b.fieldPat(c, scope)
			} else if syntax.IsPattern(c.Kind()) && c.Kind() != "remaining_field_pattern" {
				b.pat(c, scope)
			}
		}

	case "mut_pattern", "ref_pattern", "reference_pattern",
		"tuple_pattern", "slice_pattern", "or_pattern":
		for _, c := range n.NamedChildren() {
			if syntax.IsPattern(c.Kind()) && c.Kind() != "remaining_field_pattern" {
				b.pat(c, scope)
			}
		}
	}
}

// fieldPat lowers one field of a struct pattern. A shorthand field binds
// its name to the field pattern itself.
func (b *bodyLowerer) fieldPat(n syntax.Node, scope uint32) {
	idx := b.allocPat(n)
	if pat, ok := n.ChildByField("pattern"); ok {
		b.pat(pat, scope)
		return
	}
	if name, ok := n.ChildByField("name"); ok {
		b.bind(scope, name.Text(), idx)
	}
}
