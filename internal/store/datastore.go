package store

// DataStore is the interface for extraction-phase data access. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// extraction) implement this interface.
type DataStore interface {
	// Extraction inserts, each returning the assigned ID.
	InsertDef(d *Def) (int64, error)
	InsertModuleItem(mi *ModuleItem) (int64, error)
	InsertGenericParam(gp *GenericParam) (int64, error)
	InsertExpr(e *Expr) (int64, error)
	InsertPat(p *Pat) (int64, error)
	InsertBodyScope(bs *BodyScope) (int64, error)
	InsertScopeEntry(se *ScopeEntry) (int64, error)
	InsertExprScope(es *ExprScope) (int64, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
