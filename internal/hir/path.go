package hir

import (
	"strings"

	"github.com/jward/scopebind/internal/syntax"
)

type PathKind uint8

const (
	PathPlain PathKind = iota
	PathCrate
	PathSelf
	PathSuper
)

// Path is a lowered syntactic path. Leading crate/self/super keywords are
// folded into Kind; Supers counts the super hops of a PathSuper.
type Path struct {
	Kind     PathKind
	Supers   int
	Segments []string
}

// PlainPath builds a plain path from segments.
func PlainPath(segments ...string) Path { return Path{Segments: segments} }

// ParsePath lowers a textual path such as "crate::a::B".
func ParsePath(text string) Path {
	var segs []string
	for _, s := range strings.Split(text, "::") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return fromSegments(segs)
}

// AsIdent returns the single segment of a plain one-segment path.
func (p Path) AsIdent() (string, bool) {
	if p.Kind != PathPlain || len(p.Segments) != 1 {
		return "", false
	}
	return p.Segments[0], true
}

func (p Path) String() string {
	var prefix []string
	switch p.Kind {
	case PathCrate:
		prefix = []string{"crate"}
	case PathSelf:
		prefix = []string{"self"}
	case PathSuper:
		for range p.Supers {
			prefix = append(prefix, "super")
		}
	}
	return strings.Join(append(prefix, p.Segments...), "::")
}

// PathFromNode lowers a path-shaped syntax node. Generic arguments are
// dropped; a macro invocation lowers to its macro path.
func PathFromNode(n syntax.Node) (Path, bool) {
	if n.IsNil() {
		return Path{}, false
	}
	var segs []string
	if !collectSegments(n, &segs) || len(segs) == 0 {
		return Path{}, false
	}
	return fromSegments(segs), true
}

func collectSegments(n syntax.Node, segs *[]string) bool {
	switch n.Kind() {
	case "identifier", "type_identifier", "self", "crate", "super", "metavariable":
		*segs = append(*segs, n.Text())
		return true
	case "scoped_identifier", "scoped_type_identifier":
		if prefix, ok := n.ChildByField("path"); ok {
			if !collectSegments(prefix, segs) {
				return false
			}
		}
		name, ok := n.ChildByField("name")
		if !ok {
			return false
		}
		return collectSegments(name, segs)
	case "generic_type":
		ty, ok := n.ChildByField("type")
		return ok && collectSegments(ty, segs)
	case "generic_function":
		fn, ok := n.ChildByField("function")
		return ok && collectSegments(fn, segs)
	case "macro_invocation":
		m, ok := n.ChildByField("macro")
		return ok && collectSegments(m, segs)
	}
	return false
}

func fromSegments(segs []string) Path {
	if len(segs) == 0 {
		return Path{}
	}
	switch segs[0] {
	case "crate":
		return Path{Kind: PathCrate, Segments: segs[1:]}
	case "super":
		n := 0
		for n < len(segs) && segs[n] == "super" {
			n++
		}
		return Path{Kind: PathSuper, Supers: n, Segments: segs[n:]}
	case "self":
		if len(segs) > 1 {
			return Path{Kind: PathSelf, Segments: segs[1:]}
		}
	}
	return Path{Segments: segs}
}
