package syntax

import (
	"fmt"
	"iter"

	sitter "github.com/smacker/go-tree-sitter"
)

// TextRange is a half-open byte range [Start, End) into a tree's source.
type TextRange struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Len returns the number of bytes covered.
func (r TextRange) Len() uint32 { return r.End - r.Start }

// Contains reports whether offset lies within r, counting the end offset as
// inside so a cursor placed right after the last byte still belongs to r.
func (r TextRange) Contains(offset uint32) bool {
	return r.Start <= offset && offset <= r.End
}

// ContainsRange reports whether other is nested inside r (equal counts).
func (r TextRange) ContainsRange(other TextRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

func (r TextRange) String() string { return fmt.Sprintf("%d..%d", r.Start, r.End) }

// NodePtr is a tree-independent handle to a node: its kind plus its range.
// It stays valid for as long as the source text is unchanged.
type NodePtr struct {
	Kind  string
	Range TextRange
}

// Node is a syntax node bound to the tree it was taken from. The zero Node
// is nil.
type Node struct {
	tree *Tree
	n    *sitter.Node
}

// IsNil reports whether the node is absent.
func (n Node) IsNil() bool { return n.n == nil }

// Tree returns the owning tree.
func (n Node) Tree() *Tree { return n.tree }

// File returns the FileID of the owning tree.
func (n Node) File() FileID { return n.tree.file }

// Kind returns the tree-sitter node type.
func (n Node) Kind() string { return n.n.Type() }

// Range returns the node's byte range.
func (n Node) Range() TextRange {
	return TextRange{Start: n.n.StartByte(), End: n.n.EndByte()}
}

// Ptr returns a pointer to the node.
func (n Node) Ptr() NodePtr { return NodePtr{Kind: n.Kind(), Range: n.Range()} }

// Text returns the source text covered by the node.
func (n Node) Text() string { return n.n.Content(n.tree.src) }

// IsToken reports whether the node is a leaf.
func (n Node) IsToken() bool { return n.n.ChildCount() == 0 }

// Equal reports whether both nodes denote the same node of the same tree.
func (n Node) Equal(other Node) bool {
	if n.IsNil() || other.IsNil() {
		return n.IsNil() && other.IsNil()
	}
	return n.tree == other.tree && n.Ptr() == other.Ptr()
}

// Parent returns the parent node; false at the root.
func (n Node) Parent() (Node, bool) {
	p := n.n.Parent()
	if p == nil {
		return Node{}, false
	}
	return Node{tree: n.tree, n: p}, true
}

// Ancestors yields n and then each enclosing node up to the root.
func (n Node) Ancestors() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for cur, ok := n, !n.IsNil(); ok; cur, ok = cur.Parent() {
			if !yield(cur) {
				return
			}
		}
	}
}

// Descendants yields n and every node below it in pre-order.
func (n Node) Descendants() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if n.IsNil() {
			return
		}
		n.walk(yield)
	}
}

func (n Node) walk(yield func(Node) bool) bool {
	if !yield(n) {
		return false
	}
	count := int(n.n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.n.Child(i)
		if c == nil {
			continue
		}
		if !(Node{tree: n.tree, n: c}).walk(yield) {
			return false
		}
	}
	return true
}

// NamedChildren returns the node's named children in order.
func (n Node) NamedChildren() []Node {
	count := int(n.n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.n.NamedChild(i); c != nil {
			out = append(out, Node{tree: n.tree, n: c})
		}
	}
	return out
}

// ChildByField returns the child stored under a grammar field name.
func (n Node) ChildByField(field string) (Node, bool) {
	c := n.n.ChildByFieldName(field)
	if c == nil {
		return Node{}, false
	}
	return Node{tree: n.tree, n: c}, true
}

// ChildrenByField returns every child stored under a grammar field name.
func (n Node) ChildrenByField(field string) []Node {
	var out []Node
	count := int(n.n.ChildCount())
	for i := 0; i < count; i++ {
		if n.n.FieldNameForChild(i) != field {
			continue
		}
		if c := n.n.Child(i); c != nil {
			out = append(out, Node{tree: n.tree, n: c})
		}
	}
	return out
}

func (n Node) String() string {
	if n.IsNil() {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s", n.Kind(), n.Range())
}
