package hir

import "github.com/jward/scopebind/internal/syntax"

// Database is the read side of the semantic database. Implementations must
// answer from one consistent revision and be safe for concurrent readers.
// Lookups that find nothing return the zero value and false, or nil.
type Database interface {
	Def(id DefID) (Def, bool)
	// DefForSource returns the definition declared by a syntax node.
	DefForSource(src Source) (Def, bool)
	// ModuleForFile returns the root module of an authored file.
	ModuleForFile(file int64) (DefID, bool)
	ItemScope(module DefID) *ItemScope
	// Children returns the items, variants, fields or associated items
	// declared directly inside def, ordered by DefID.
	Children(def DefID) []Def
	GenericParams(def DefID) []GenericParam
	CrateRoot(def DefID) DefID
	// ExternPrelude maps the extern crate names visible in krate to the
	// root modules of those crates.
	ExternPrelude(krate DefID) *ItemScope
	// Prelude returns the module whose items are implicitly visible in krate.
	Prelude(krate DefID) (DefID, bool)

	BodySourceMap(owner DefID) *BodySourceMap
	ExprScopes(owner DefID) *ExprScopes
	Infer(owner DefID) *InferenceResult

	// Impls returns the impls whose self type is ty, ordered by DefID.
	Impls(ty Ty) []Impl
	// Autoderef returns ty followed by each type reachable by one more deref.
	Autoderef(ty Ty) []Ty
	ImplementsTrait(ty Ty, trait DefID) bool

	InternMacro(loc MacroCallLoc) MacroCallID
	MacroCall(id MacroCallID) (MacroCallLoc, bool)
	// ParseOrExpand returns the tree of an authored file or of a
	// materialized expansion.
	ParseOrExpand(file syntax.FileID) (*syntax.Tree, bool)
	ExpansionInfo(file syntax.FileID) (*ExpansionInfo, bool)
}
