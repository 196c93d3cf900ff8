package hir

import (
	"iter"
	"slices"
)

// BodySourceMap associates the expressions and patterns of one body with
// the syntax they were lowered from, in both directions.
type BodySourceMap struct {
	exprs     map[ExprID]Source
	exprByPtr map[Source]ExprID
	pats      map[PatID]Source
	patByPtr  map[Source]PatID
}

func NewBodySourceMap() *BodySourceMap {
	return &BodySourceMap{
		exprs:     make(map[ExprID]Source),
		exprByPtr: make(map[Source]ExprID),
		pats:      make(map[PatID]Source),
		patByPtr:  make(map[Source]PatID),
	}
}

// AddExpr records the syntax of an expression. When two expressions share a
// source, the first one recorded keeps the reverse mapping.
func (m *BodySourceMap) AddExpr(id ExprID, src Source) {
	m.exprs[id] = src
	if _, ok := m.exprByPtr[src]; !ok {
		m.exprByPtr[src] = id
	}
}

// AddPat records the syntax of a pattern.
func (m *BodySourceMap) AddPat(id PatID, src Source) {
	m.pats[id] = src
	if _, ok := m.patByPtr[src]; !ok {
		m.patByPtr[src] = id
	}
}

func (m *BodySourceMap) NodeExpr(src Source) (ExprID, bool) {
	if m == nil {
		return 0, false
	}
	id, ok := m.exprByPtr[src]
	return id, ok
}

func (m *BodySourceMap) ExprSyntax(id ExprID) (Source, bool) {
	if m == nil {
		return Source{}, false
	}
	src, ok := m.exprs[id]
	return src, ok
}

func (m *BodySourceMap) NodePat(src Source) (PatID, bool) {
	if m == nil {
		return 0, false
	}
	id, ok := m.patByPtr[src]
	return id, ok
}

func (m *BodySourceMap) PatSyntax(id PatID) (Source, bool) {
	if m == nil {
		return Source{}, false
	}
	src, ok := m.pats[id]
	return src, ok
}

// ScopeID is a dense per-body scope handle; NoScope is never allocated.
type ScopeID uint32

const NoScope ScopeID = 0

// ScopeEntry is a name bound in a scope together with its binding pattern.
type ScopeEntry struct {
	Name string
	Pat  PatID
}

type scopeData struct {
	parent  ScopeID
	entries []ScopeEntry
}

// ExprScopes is the scope tree of one body: scopes with their bindings and
// parents, plus the scope each expression was evaluated in. It is built once
// by the database and only read afterwards.
type ExprScopes struct {
	scopes    []scopeData // index 0 is NoScope
	exprScope map[ExprID]ScopeID
}

func NewExprScopes() *ExprScopes {
	return &ExprScopes{
		scopes:    make([]scopeData, 1),
		exprScope: make(map[ExprID]ScopeID),
	}
}

// NewScope allocates a scope under parent.
func (s *ExprScopes) NewScope(parent ScopeID) ScopeID {
	s.scopes = append(s.scopes, scopeData{parent: parent})
	return ScopeID(len(s.scopes) - 1)
}

// EnsureScope makes id valid, allocating intermediate scopes as roots.
func (s *ExprScopes) EnsureScope(id, parent ScopeID) {
	for ScopeID(len(s.scopes)) <= id {
		s.scopes = append(s.scopes, scopeData{})
	}
	s.scopes[id].parent = parent
}

func (s *ExprScopes) AddEntry(scope ScopeID, name string, pat PatID) {
	s.scopes[scope].entries = append(s.scopes[scope].entries, ScopeEntry{Name: name, Pat: pat})
}

func (s *ExprScopes) SetScope(expr ExprID, scope ScopeID) {
	s.exprScope[expr] = scope
}

// Len returns the number of allocated scopes.
func (s *ExprScopes) Len() int { return len(s.scopes) - 1 }

func (s *ExprScopes) valid(id ScopeID) bool {
	return id != NoScope && int(id) < len(s.scopes)
}

// ScopeFor returns the scope an expression was evaluated in.
func (s *ExprScopes) ScopeFor(expr ExprID) (ScopeID, bool) {
	if s == nil {
		return NoScope, false
	}
	id, ok := s.exprScope[expr]
	return id, ok
}

// ScopeByExpr yields every (expression, scope) pair in ExprID order.
func (s *ExprScopes) ScopeByExpr() iter.Seq2[ExprID, ScopeID] {
	return func(yield func(ExprID, ScopeID) bool) {
		if s == nil {
			return
		}
		ids := make([]ExprID, 0, len(s.exprScope))
		for id := range s.exprScope {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if !yield(id, s.exprScope[id]) {
				return
			}
		}
	}
}

// Entries returns the bindings introduced directly by scope.
func (s *ExprScopes) Entries(scope ScopeID) []ScopeEntry {
	if s == nil || !s.valid(scope) {
		return nil
	}
	return s.scopes[scope].entries
}

// Parent returns the parent scope, NoScope at a root.
func (s *ExprScopes) Parent(scope ScopeID) ScopeID {
	if s == nil || !s.valid(scope) {
		return NoScope
	}
	return s.scopes[scope].parent
}

// ScopeChain yields scope and its ancestors, innermost first.
func (s *ExprScopes) ScopeChain(scope ScopeID) iter.Seq[ScopeID] {
	return func(yield func(ScopeID) bool) {
		if s == nil {
			return
		}
		for cur := scope; s.valid(cur); cur = s.scopes[cur].parent {
			if !yield(cur) {
				return
			}
		}
	}
}

// ResolveNameInScope finds the innermost binding of name visible from
// scope. Within one scope a later binding shadows an earlier one.
func (s *ExprScopes) ResolveNameInScope(scope ScopeID, name string) (ScopeEntry, bool) {
	for id := range s.ScopeChain(scope) {
		entries := s.scopes[id].entries
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Name == name {
				return entries[i], true
			}
		}
	}
	return ScopeEntry{}, false
}
