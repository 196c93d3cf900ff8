package syntax

import (
	"context"
	"fmt"
	"sync"

	"github.com/minio/highwayhash"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Fragment is the syntactic shape a macro expansion is parsed as.
type Fragment uint8

const (
	FragmentItems Fragment = iota
	FragmentStatements
	FragmentExpr
)

func (f Fragment) String() string {
	switch f {
	case FragmentItems:
		return "items"
	case FragmentStatements:
		return "statements"
	case FragmentExpr:
		return "expr"
	default:
		return fmt.Sprintf("fragment(%d)", uint8(f))
	}
}

// FileID identifies one syntax tree instance: either an authored file or the
// pseudo-file materialized from a macro expansion. Positions from two
// different FileIDs are never compared.
type FileID struct {
	File      int64
	MacroCall int64
	Fragment  Fragment
}

// SourceFile returns the FileID of an authored file.
func SourceFile(id int64) FileID { return FileID{File: id} }

// MacroFile returns the FileID of the expansion of a macro call.
func MacroFile(call int64, frag Fragment) FileID {
	return FileID{MacroCall: call, Fragment: frag}
}

// IsMacro reports whether f is an expansion pseudo-file.
func (f FileID) IsMacro() bool { return f.MacroCall != 0 }

func (f FileID) String() string {
	if f.IsMacro() {
		return fmt.Sprintf("macro#%d/%s", f.MacroCall, f.Fragment)
	}
	return fmt.Sprintf("file#%d", f.File)
}

// hashKey is the fixed highwayhash key; hashes are only compared within one
// database so the key carries no secret.
var hashKey = []byte("scopebind-highwayhash-key-000000")

// HashSource returns the 64-bit content fingerprint stored for a file.
func HashSource(src []byte) uint64 {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		panic(fmt.Sprintf("syntax: highwayhash key: %v", err))
	}
	h.Write(src)
	return h.Sum64()
}

var (
	rustLang     *sitter.Language
	rustLangOnce sync.Once
)

// Language returns the tree-sitter Rust grammar.
func Language() *sitter.Language {
	rustLangOnce.Do(func() {
		rustLang = rust.GetLanguage()
	})
	return rustLang
}

// Tree is a parsed syntax tree instance bound to its FileID.
type Tree struct {
	file FileID
	src  []byte
	hash uint64
	tree *sitter.Tree
}

// Parse parses Rust source into a Tree. tree-sitter is error tolerant, so a
// tree is returned for incomplete code as well.
func Parse(ctx context.Context, file FileID, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Language())

	t, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return &Tree{file: file, src: src, hash: HashSource(src), tree: t}, nil
}

// File returns the tree's FileID.
func (t *Tree) File() FileID { return t.file }

// Source returns the bytes the tree was parsed from.
func (t *Tree) Source() []byte { return t.src }

// Hash returns the highwayhash fingerprint of the source.
func (t *Tree) Hash() uint64 { return t.hash }

// Root returns the root node (source_file).
func (t *Tree) Root() Node { return Node{tree: t, n: t.tree.RootNode()} }

// NodeAt returns the smallest named node covering offset.
func (t *Tree) NodeAt(offset uint32) (Node, bool) {
	if int(offset) > len(t.src) {
		return Node{}, false
	}
	n := t.Root()
	for {
		next, ok := namedChildAt(n, offset)
		if !ok {
			return n, true
		}
		n = next
	}
}

// namedChildAt returns the named child of n covering offset. A child that
// starts at offset wins over one that ends there.
func namedChildAt(n Node, offset uint32) (Node, bool) {
	var left Node
	for _, c := range n.NamedChildren() {
		r := c.Range()
		if r.Start <= offset && offset < r.End {
			return c, true
		}
		if r.End == offset && r.Start < offset {
			left = c
		}
	}
	return left, !left.IsNil()
}

// TokenAt returns the leaf node covering offset. When offset sits exactly
// between two tokens the right one wins, falling back to the left one.
func (t *Tree) TokenAt(offset uint32) (Node, bool) {
	var left Node
	for n := range t.Root().Descendants() {
		if !n.IsToken() {
			continue
		}
		r := n.Range()
		if r.Start <= offset && offset < r.End {
			return n, true
		}
		if r.End == offset {
			left = n
		}
	}
	if !left.IsNil() {
		return left, true
	}
	return Node{}, false
}

// TokenForRange returns the leaf node spanning exactly r.
func (t *Tree) TokenForRange(r TextRange) (Node, bool) {
	for n := range t.Root().Descendants() {
		if n.IsToken() && n.Range() == r {
			return n, true
		}
	}
	return Node{}, false
}

// Resolve finds the node a pointer was taken from.
func (t *Tree) Resolve(ptr NodePtr) (Node, bool) {
	for n := range t.Root().Descendants() {
		if n.Range() == ptr.Range && n.Kind() == ptr.Kind {
			return n, true
		}
	}
	return Node{}, false
}
