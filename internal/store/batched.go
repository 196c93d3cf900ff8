package store

import "sync"

// BatchedStore buffers extraction inserts in memory using fake (negative)
// IDs. It implements DataStore so lowering can write to it without knowing
// whether it's hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	mu sync.Mutex

	// Buffered extraction data.
	Defs          []Def
	ModuleItems   []ModuleItem
	GenericParams []GenericParam
	Exprs         []Expr
	Pats          []Pat
	BodyScopes    []BodyScope
	ScopeEntries  []ScopeEntry
	ExprScopes    []ExprScope

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{nextFakeID: -1}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// buffer assigns a fake id to a row and appends it to dst.
func buffer[T any](b *BatchedStore, dst *[]T, row *T, setID func(*T, int64)) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	setID(row, fakeID)
	*dst = append(*dst, *row)
	return fakeID, nil
}

func (b *BatchedStore) InsertDef(d *Def) (int64, error) {
	return buffer(b, &b.Defs, d, func(r *Def, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertModuleItem(mi *ModuleItem) (int64, error) {
	return buffer(b, &b.ModuleItems, mi, func(r *ModuleItem, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertGenericParam(gp *GenericParam) (int64, error) {
	return buffer(b, &b.GenericParams, gp, func(r *GenericParam, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertExpr(e *Expr) (int64, error) {
	return buffer(b, &b.Exprs, e, func(r *Expr, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertPat(p *Pat) (int64, error) {
	return buffer(b, &b.Pats, p, func(r *Pat, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertBodyScope(bs *BodyScope) (int64, error) {
	return buffer(b, &b.BodyScopes, bs, func(r *BodyScope, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertScopeEntry(se *ScopeEntry) (int64, error) {
	return buffer(b, &b.ScopeEntries, se, func(r *ScopeEntry, id int64) { r.ID = id })
}

func (b *BatchedStore) InsertExprScope(es *ExprScope) (int64, error) {
	return buffer(b, &b.ExprScopes, es, func(r *ExprScope, id int64) { r.ID = id })
}

// Len returns the number of buffered rows.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Defs) + len(b.ModuleItems) + len(b.GenericParams) + len(b.Exprs) +
		len(b.Pats) + len(b.BodyScopes) + len(b.ScopeEntries) + len(b.ExprScopes)
}
