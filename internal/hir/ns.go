package hir

import "sort"

// PerNs is what one name denotes in each namespace. A zero DefID means the
// name is absent from that namespace.
type PerNs struct {
	Types  DefID
	Values DefID
	Macros DefID
}

// TypesOnly returns a PerNs populated in the type namespace.
func TypesOnly(id DefID) PerNs { return PerNs{Types: id} }

// Both returns a PerNs populated in the type and value namespaces.
func Both(id DefID) PerNs { return PerNs{Types: id, Values: id} }

// IsEmpty reports whether no namespace is populated.
func (p PerNs) IsEmpty() bool { return p.Types == 0 && p.Values == 0 && p.Macros == 0 }

// TakeTypes drops everything but the type namespace.
func (p PerNs) TakeTypes() PerNs { return PerNs{Types: p.Types} }

// Or fills the namespaces absent from p with those of other.
func (p PerNs) Or(other PerNs) PerNs {
	if p.Types == 0 {
		p.Types = other.Types
	}
	if p.Values == 0 {
		p.Values = other.Values
	}
	if p.Macros == 0 {
		p.Macros = other.Macros
	}
	return p
}

// ItemEntry is one named entry of an ItemScope.
type ItemEntry struct {
	Name string
	Def  PerNs
}

// ItemScope maps names visible at module level to their definitions.
type ItemScope struct {
	items map[string]PerNs
}

func NewItemScope() *ItemScope {
	return &ItemScope{items: make(map[string]PerNs)}
}

// Add records def under name. Namespaces already populated for name are
// kept; the first definition wins.
func (s *ItemScope) Add(name string, def PerNs) {
	s.items[name] = s.items[name].Or(def)
}

// Get looks a name up.
func (s *ItemScope) Get(name string) (PerNs, bool) {
	if s == nil {
		return PerNs{}, false
	}
	p, ok := s.items[name]
	return p, ok && !p.IsEmpty()
}

// Len returns the number of names.
func (s *ItemScope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Entries returns all entries ordered by name.
func (s *ItemScope) Entries() []ItemEntry {
	if s == nil {
		return nil
	}
	out := make([]ItemEntry, 0, len(s.items))
	for name, def := range s.items {
		out = append(out, ItemEntry{Name: name, Def: def})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
