// Package hir holds the semantic vocabulary shared by the database and the
// binder: definition ids and kinds, namespaces, types, paths, per-body
// source maps and scope trees, inference results, and macro call identity.
package hir

import (
	"fmt"

	"github.com/jward/scopebind/internal/syntax"
)

// DefID identifies a definition. Positive ids are database rows; negative
// ids denote builtin types.
type DefID int64

// IsBuiltin reports whether id denotes a builtin type.
func (id DefID) IsBuiltin() bool { return id < 0 }

// ExprID and PatID are dense per-body handles. They are only meaningful
// together with the body owner they were allocated for.
type (
	ExprID uint32
	PatID  uint32
)

// MacroCallID identifies an interned macro call. Calls known to the store
// have positive ids; calls interned on the fly get negative ones.
type MacroCallID int64

type DefKind uint8

const (
	DefModule DefKind = iota + 1
	DefStruct
	DefEnum
	DefVariant
	DefFunction
	DefConst
	DefStatic
	DefTrait
	DefTypeAlias
	DefImpl
	DefMacro
	DefField
	DefBuiltin
)

var defKindNames = map[DefKind]string{
	DefModule:    "module",
	DefStruct:    "struct",
	DefEnum:      "enum",
	DefVariant:   "variant",
	DefFunction:  "function",
	DefConst:     "const",
	DefStatic:    "static",
	DefTrait:     "trait",
	DefTypeAlias: "type_alias",
	DefImpl:      "impl",
	DefMacro:     "macro",
	DefField:     "field",
	DefBuiltin:   "builtin",
}

func (k DefKind) String() string {
	if s, ok := defKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("defkind(%d)", uint8(k))
}

// ParseDefKind is the inverse of DefKind.String.
func ParseDefKind(s string) (DefKind, bool) {
	for k, name := range defKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// IsAdt reports whether k is a struct or enum.
func (k DefKind) IsAdt() bool { return k == DefStruct || k == DefEnum }

// HasBody reports whether definitions of kind k own an executable body.
func (k DefKind) HasBody() bool {
	return k == DefFunction || k == DefConst || k == DefStatic
}

// Def is one definition as the database knows it.
type Def struct {
	ID   DefID
	Kind DefKind
	Name string
	// File is the authored file the definition was lowered from. Ptr is the
	// zero NodePtr for definitions without syntax (builtins, declared impls).
	File int64
	Ptr  syntax.NodePtr
	// Module is the containing module; zero for a crate root.
	Module DefID
	// Parent is the impl, trait, enum or struct an associated item, variant
	// or field belongs to.
	Parent DefID

	HasSelf bool   // functions: declares a self parameter
	SelfTy  string // impls: self type as written
	Trait   string // impls: implemented trait path as written, empty if inherent
}

func (d Def) String() string {
	if d.Name == "" {
		return fmt.Sprintf("%s#%d", d.Kind, d.ID)
	}
	return fmt.Sprintf("%s %s#%d", d.Kind, d.Name, d.ID)
}

// Source locates a syntax node inside one tree instance.
type Source struct {
	File syntax.FileID
	Ptr  syntax.NodePtr
}

// SourceOf returns the Source of a node.
func SourceOf(n syntax.Node) Source { return Source{File: n.File(), Ptr: n.Ptr()} }

// GenericParam is a type or const parameter of a generic definition.
type GenericParam struct {
	Def   DefID
	Index int
	Name  string
}

// Impl is an impl block with its header resolved.
type Impl struct {
	ID     DefID
	SelfTy Ty
	// Trait is zero for inherent impls.
	Trait DefID
}

var builtinTypes = []string{
	"bool", "char", "str",
	"i8", "i16", "i32", "i64", "i128", "isize",
	"u8", "u16", "u32", "u64", "u128", "usize",
	"f32", "f64",
}

// BuiltinID returns the DefID of a builtin type name.
func BuiltinID(name string) (DefID, bool) {
	for i, b := range builtinTypes {
		if b == name {
			return DefID(-(i + 1)), true
		}
	}
	return 0, false
}

// BuiltinDef returns the definition behind a builtin DefID.
func BuiltinDef(id DefID) (Def, bool) {
	i := int(-id) - 1
	if !id.IsBuiltin() || i >= len(builtinTypes) {
		return Def{}, false
	}
	return Def{ID: id, Kind: DefBuiltin, Name: builtinTypes[i]}, true
}

// BuiltinNames returns the builtin type names in declaration order.
func BuiltinNames() []string {
	return append([]string(nil), builtinTypes...)
}
