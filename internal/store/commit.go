package store

import (
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// (positive, AUTOINCREMENT) IDs, and all FK references within the batch
// are rewritten using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Defs (module and parent precede their children in the batch)
//  2. ModuleItems (depend on module and item defs)
//  3. GenericParams (depend on def)
//  4. Exprs, Pats, BodyScopes, ScopeEntries, ExprScopes (depend on owner)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		realID, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("id %d not in fakeToReal map (have %d defs)", id, len(batch.Defs))
		}
		return realID, nil
	}
	remapPtr := func(id *int64) (*int64, error) {
		if id == nil {
			return nil, nil
		}
		realID, err := remap(*id)
		if err != nil {
			return nil, err
		}
		return &realID, nil
	}

	// 1. Defs
	for _, d := range batch.Defs {
		if d.ModuleID, err = remapPtr(d.ModuleID); err != nil {
			return fmt.Errorf("commit batch: def %q module: %w", d.Name, err)
		}
		if d.ParentID, err = remapPtr(d.ParentID); err != nil {
			return fmt.Errorf("commit batch: def %q parent: %w", d.Name, err)
		}
		realID, err := insertDefTx(tx, &d)
		if err != nil {
			return fmt.Errorf("commit batch: def %q: %w", d.Name, err)
		}
		fakeToReal[d.ID] = realID
	}

	// 2. ModuleItems
	for _, mi := range batch.ModuleItems {
		if mi.ModuleID, err = remap(mi.ModuleID); err != nil {
			return fmt.Errorf("commit batch: module item %q: %w", mi.Name, err)
		}
		if mi.DefID, err = remap(mi.DefID); err != nil {
			return fmt.Errorf("commit batch: module item %q: %w", mi.Name, err)
		}
		if _, err := insertModuleItemTx(tx, &mi); err != nil {
			return fmt.Errorf("commit batch: module item %q: %w", mi.Name, err)
		}
	}

	// 3. GenericParams
	for _, gp := range batch.GenericParams {
		if gp.DefID, err = remap(gp.DefID); err != nil {
			return fmt.Errorf("commit batch: generic param %q: %w", gp.Name, err)
		}
		if _, err := insertGenericParamTx(tx, &gp); err != nil {
			return fmt.Errorf("commit batch: generic param %q: %w", gp.Name, err)
		}
	}

	// 4. Bodies
	for _, e := range batch.Exprs {
		if e.OwnerID, err = remap(e.OwnerID); err != nil {
			return fmt.Errorf("commit batch: expr %d: %w", e.Idx, err)
		}
		if _, err := insertExprTx(tx, &e); err != nil {
			return fmt.Errorf("commit batch: expr %d: %w", e.Idx, err)
		}
	}
	for _, p := range batch.Pats {
		if p.OwnerID, err = remap(p.OwnerID); err != nil {
			return fmt.Errorf("commit batch: pat %d: %w", p.Idx, err)
		}
		if _, err := insertPatTx(tx, &p); err != nil {
			return fmt.Errorf("commit batch: pat %d: %w", p.Idx, err)
		}
	}
	for _, bs := range batch.BodyScopes {
		if bs.OwnerID, err = remap(bs.OwnerID); err != nil {
			return fmt.Errorf("commit batch: scope %d: %w", bs.ScopeID, err)
		}
		if _, err := insertBodyScopeTx(tx, &bs); err != nil {
			return fmt.Errorf("commit batch: scope %d: %w", bs.ScopeID, err)
		}
	}
	for _, se := range batch.ScopeEntries {
		if se.OwnerID, err = remap(se.OwnerID); err != nil {
			return fmt.Errorf("commit batch: scope entry %q: %w", se.Name, err)
		}
		if _, err := insertScopeEntryTx(tx, &se); err != nil {
			return fmt.Errorf("commit batch: scope entry %q: %w", se.Name, err)
		}
	}
	for _, es := range batch.ExprScopes {
		if es.OwnerID, err = remap(es.OwnerID); err != nil {
			return fmt.Errorf("commit batch: expr scope %d: %w", es.ExprIdx, err)
		}
		if _, err := insertExprScopeTx(tx, &es); err != nil {
			return fmt.Errorf("commit batch: expr scope %d: %w", es.ExprIdx, err)
		}
	}

	return tx.Commit()
}
