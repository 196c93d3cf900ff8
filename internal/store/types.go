package store

import "time"

// Extraction domain types

type File struct {
	ID          int64
	Path        string
	Hash        string
	Content     []byte
	LastIndexed time.Time
}

// Def is a lowered definition. ModuleID is nil for crate roots; ParentID is
// set for variants, fields and associated items.
type Def struct {
	ID        int64
	FileID    int64
	Kind      string
	Name      string
	NodeKind  string
	StartByte uint32
	EndByte   uint32
	ModuleID  *int64
	ParentID  *int64
	HasSelf   bool
	SelfTy    string
	Trait     string
}

// Namespaces of a module item.
const (
	NamespaceTypes  = "types"
	NamespaceValues = "values"
	NamespaceMacros = "macros"
)

type ModuleItem struct {
	ID        int64
	ModuleID  int64
	Name      string
	Namespace string
	DefID     int64
}

type GenericParam struct {
	ID      int64
	DefID   int64
	Ordinal int
	Name    string
}

// Expr and Pat map a per-body index to its syntax in an authored file.
type Expr struct {
	ID        int64
	OwnerID   int64
	Idx       uint32
	FileID    int64
	Kind      string
	StartByte uint32
	EndByte   uint32
}

type Pat struct {
	ID        int64
	OwnerID   int64
	Idx       uint32
	FileID    int64
	Kind      string
	StartByte uint32
	EndByte   uint32
}

// BodyScope is one node of a body's expression scope tree. ParentScopeID
// is zero at the root.
type BodyScope struct {
	ID            int64
	OwnerID       int64
	ScopeID       uint32
	ParentScopeID uint32
}

type ScopeEntry struct {
	ID      int64
	OwnerID int64
	ScopeID uint32
	Name    string
	PatIdx  uint32
}

type ExprScope struct {
	ID      int64
	OwnerID int64
	ExprIdx uint32
	ScopeID uint32
}

// Fact domain types

// Inference targets and keys.
const (
	TargetExpr = "expr"
	TargetPat  = "pat"

	KeyType        = "type"
	KeyMethod      = "method"
	KeyField       = "field"
	KeyRecordField = "record_field"
	KeyVariant     = "variant"
	KeyAssoc       = "assoc"
)

// Inference is one fact of a body's inference result. Value is a written
// type for KeyType and a definition path otherwise; both are resolved
// against the owner's environment when a snapshot reads them.
type Inference struct {
	ID      int64
	OwnerID int64
	Target  string
	Idx     uint32
	Key     string
	Value   string
}

type DerefRule struct {
	ID       int64
	FileID   int64
	TypePath string
	Target   string
}

type ExternCrate struct {
	ID           int64
	FileID       int64
	Name         string
	TargetFileID int64
}

type Prelude struct {
	ID           int64
	FileID       int64
	TargetFileID int64
	ModulePath   string
}

type MacroCall struct {
	ID        int64
	FileID    int64
	NodeKind  string
	StartByte uint32
	EndByte   uint32
}

type Expansion struct {
	CallID int64
	Text   string
}

type TokenMap struct {
	ID        int64
	CallID    int64
	CallStart uint32
	CallEnd   uint32
	ExpStart  uint32
	ExpEnd    uint32
}
