package hir

import (
	"strings"
	"unicode"
)

type TyKind uint8

const (
	TyUnknown TyKind = iota
	TyAdt
	TyRef
	TyBuiltin
	TyParam
	TyTuple
	TyOpaque
)

// Ty is a type as inference reports it. Ref types carry the referent in
// Args[0]; tuples carry their elements in Args; ADTs carry generic args.
type Ty struct {
	Kind TyKind
	Def  DefID
	Name string
	Args []Ty
	Mut  bool
}

// Unknown is the type of anything inference could not type.
var Unknown = Ty{}

// RefTo returns &ty or &mut ty.
func RefTo(ty Ty, mut bool) Ty { return Ty{Kind: TyRef, Args: []Ty{ty}, Mut: mut} }

// IsUnknown reports whether t carries no information.
func (t Ty) IsUnknown() bool { return t.Kind == TyUnknown }

// Equal compares two types structurally.
func (t Ty) Equal(o Ty) bool {
	if t.Kind != o.Kind || t.Def != o.Def || t.Name != o.Name || t.Mut != o.Mut || len(t.Args) != len(o.Args) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// Substitute replaces type parameters by name.
func (t Ty) Substitute(subst map[string]Ty) Ty {
	if t.Kind == TyParam {
		if r, ok := subst[t.Name]; ok {
			return r
		}
		return t
	}
	if len(t.Args) == 0 {
		return t
	}
	out := t
	out.Args = make([]Ty, len(t.Args))
	for i, a := range t.Args {
		out.Args[i] = a.Substitute(subst)
	}
	return out
}

func (t Ty) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Ty) write(b *strings.Builder) {
	switch t.Kind {
	case TyRef:
		b.WriteByte('&')
		if t.Mut {
			b.WriteString("mut ")
		}
		if len(t.Args) == 1 {
			t.Args[0].write(b)
		}
	case TyTuple:
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			a.write(b)
		}
		if len(t.Args) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case TyOpaque:
		b.WriteString("impl ")
		b.WriteString(t.Name)
	case TyAdt, TyBuiltin, TyParam:
		b.WriteString(t.Name)
		if len(t.Args) > 0 {
			b.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				a.write(b)
			}
			b.WriteByte('>')
		}
	default:
		b.WriteString("{unknown}")
	}
}

// TyLookup resolves a type path as written to its definition.
type TyLookup func(path string) (Def, bool)

// ParseTy parses a written type. Builtin names are recognized directly;
// other paths go through lookup. An unresolved single-segment name is taken
// as a type parameter, anything else unparseable is Unknown.
func ParseTy(text string, lookup TyLookup) Ty {
	p := &tyParser{toks: tokenizeTy(text), lookup: lookup}
	ty := p.ty()
	if p.pos != len(p.toks) {
		return Unknown
	}
	return ty
}

type tyParser struct {
	toks   []string
	pos    int
	lookup TyLookup
}

func (p *tyParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *tyParser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *tyParser) ty() Ty {
	switch tok := p.peek(); {
	case tok == "&":
		p.next()
		if strings.HasPrefix(p.peek(), "'") {
			p.next()
		}
		mut := false
		if p.peek() == "mut" {
			p.next()
			mut = true
		}
		return RefTo(p.ty(), mut)
	case tok == "(":
		p.next()
		var elems []Ty
		for p.peek() != ")" && p.peek() != "" {
			elems = append(elems, p.ty())
			if p.peek() == "," {
				p.next()
			}
		}
		if p.next() != ")" {
			return Unknown
		}
		return Ty{Kind: TyTuple, Args: elems}
	case tok == "impl" || tok == "dyn":
		p.next()
		path := p.path()
		if path == "" {
			return Unknown
		}
		t := Ty{Kind: TyOpaque, Name: path}
		if p.lookup != nil {
			if def, ok := p.lookup(path); ok && def.Kind == DefTrait {
				t.Def = def.ID
			}
		}
		return t
	case tok == "_":
		p.next()
		return Unknown
	case isTyIdent(tok):
		path := p.path()
		var args []Ty
		if p.peek() == "<" {
			p.next()
			for p.peek() != ">" && p.peek() != "" {
				args = append(args, p.ty())
				if p.peek() == "," {
					p.next()
				}
			}
			if p.next() != ">" {
				return Unknown
			}
		}
		return p.named(path, args)
	default:
		p.pos = len(p.toks) + 1
		return Unknown
	}
}

func (p *tyParser) path() string {
	var segs []string
	for isTyIdent(p.peek()) {
		segs = append(segs, p.next())
		if p.peek() != "::" {
			break
		}
		p.next()
	}
	return strings.Join(segs, "::")
}

func (p *tyParser) named(path string, args []Ty) Ty {
	if id, ok := BuiltinID(path); ok && len(args) == 0 {
		return Ty{Kind: TyBuiltin, Def: id, Name: path}
	}
	if p.lookup != nil {
		if def, ok := p.lookup(path); ok {
			switch def.Kind {
			case DefStruct, DefEnum, DefTypeAlias:
				return Ty{Kind: TyAdt, Def: def.ID, Name: def.Name, Args: args}
			case DefBuiltin:
				return Ty{Kind: TyBuiltin, Def: def.ID, Name: def.Name}
			}
		}
	}
	if !strings.Contains(path, "::") && len(args) == 0 {
		return Ty{Kind: TyParam, Name: path}
	}
	return Unknown
}

func isTyIdent(tok string) bool {
	if tok == "" || tok == "mut" || tok == "impl" || tok == "dyn" || tok == "_" {
		return false
	}
	r := rune(tok[0])
	return unicode.IsLetter(r) || r == '_'
}

func tokenizeTy(s string) []string {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == ':' && i+1 < len(s) && s[i+1] == ':':
			toks = append(toks, "::")
			i += 2
		case c == '\'' || c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(s) && (s[j] == '_' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			toks = append(toks, string(c))
			i++
		}
	}
	return toks
}
