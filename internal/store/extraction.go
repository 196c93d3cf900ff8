package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, hash, content, last_indexed) VALUES (?, ?, ?, ?)",
		f.Path, f.Hash, f.Content, f.LastIndexed,
	)
	id, err := lastID(res, err, "file")
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

const fileCols = "id, path, hash, content, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &hash, &f.Content, &indexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LastIndexed = indexed.Time
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes the files row itself. Derived rows must be removed
// first with DeleteFileData.
func (s *Store) DeleteFile(fileID int64) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// --- Definition operations ---

func (s *Store) InsertDef(d *Def) (int64, error) {
	id, err := insertDefTx(s.db, d)
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

func insertDefTx(ex execer, d *Def) (int64, error) {
	res, err := ex.Exec(
		`INSERT INTO defs (file_id, kind, name, node_kind, start_byte, end_byte,
			module_id, parent_id, has_self, self_ty, trait)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.Kind, d.Name, d.NodeKind, d.StartByte, d.EndByte,
		d.ModuleID, d.ParentID, d.HasSelf, d.SelfTy, d.Trait,
	)
	return lastID(res, err, "def")
}

const defCols = `id, file_id, kind, name, node_kind, start_byte, end_byte,
	module_id, parent_id, has_self, self_ty, trait`

func scanDef(scanner interface{ Scan(...any) error }) (*Def, error) {
	d := &Def{}
	err := scanner.Scan(
		&d.ID, &d.FileID, &d.Kind, &d.Name, &d.NodeKind, &d.StartByte, &d.EndByte,
		&d.ModuleID, &d.ParentID, &d.HasSelf, &d.SelfTy, &d.Trait,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryDefs(q querier, query string, args ...any) ([]*Def, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []*Def
	for rows.Next() {
		d, err := scanDef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan def: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *Store) DefsByFile(fileID int64) ([]*Def, error) {
	defs, err := queryDefs(s.db, "SELECT "+defCols+" FROM defs WHERE file_id = ? ORDER BY id", fileID)
	if err != nil {
		return nil, fmt.Errorf("defs by file: %w", err)
	}
	return defs, nil
}

func (s *Store) DefByName(name string) ([]*Def, error) {
	defs, err := queryDefs(s.db, "SELECT "+defCols+" FROM defs WHERE name = ? ORDER BY id", name)
	if err != nil {
		return nil, fmt.Errorf("defs by name: %w", err)
	}
	return defs, nil
}

// RootModule returns the crate root module lowered from a file.
func (s *Store) RootModule(fileID int64) (*Def, error) {
	d, err := scanDef(s.db.QueryRow(
		"SELECT "+defCols+" FROM defs WHERE file_id = ? AND kind = 'module' AND module_id IS NULL",
		fileID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("root module: %w", err)
	}
	return d, nil
}

// --- Module item and generic parameter operations ---

func (s *Store) InsertModuleItem(mi *ModuleItem) (int64, error) {
	id, err := insertModuleItemTx(s.db, mi)
	if err != nil {
		return 0, err
	}
	mi.ID = id
	return id, nil
}

func insertModuleItemTx(ex execer, mi *ModuleItem) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO module_items (module_id, name, namespace, def_id) VALUES (?, ?, ?, ?)",
		mi.ModuleID, mi.Name, mi.Namespace, mi.DefID,
	)
	return lastID(res, err, "module item")
}

func (s *Store) InsertGenericParam(gp *GenericParam) (int64, error) {
	id, err := insertGenericParamTx(s.db, gp)
	if err != nil {
		return 0, err
	}
	gp.ID = id
	return id, nil
}

func insertGenericParamTx(ex execer, gp *GenericParam) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO generic_params (def_id, ordinal, name) VALUES (?, ?, ?)",
		gp.DefID, gp.Ordinal, gp.Name,
	)
	return lastID(res, err, "generic param")
}

// --- Body operations ---

func (s *Store) InsertExpr(e *Expr) (int64, error) {
	id, err := insertExprTx(s.db, e)
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func insertExprTx(ex execer, e *Expr) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO exprs (owner_id, idx, file_id, kind, start_byte, end_byte) VALUES (?, ?, ?, ?, ?, ?)",
		e.OwnerID, e.Idx, e.FileID, e.Kind, e.StartByte, e.EndByte,
	)
	return lastID(res, err, "expr")
}

func (s *Store) InsertPat(p *Pat) (int64, error) {
	id, err := insertPatTx(s.db, p)
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func insertPatTx(ex execer, p *Pat) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO pats (owner_id, idx, file_id, kind, start_byte, end_byte) VALUES (?, ?, ?, ?, ?, ?)",
		p.OwnerID, p.Idx, p.FileID, p.Kind, p.StartByte, p.EndByte,
	)
	return lastID(res, err, "pat")
}

func (s *Store) InsertBodyScope(bs *BodyScope) (int64, error) {
	id, err := insertBodyScopeTx(s.db, bs)
	if err != nil {
		return 0, err
	}
	bs.ID = id
	return id, nil
}

func insertBodyScopeTx(ex execer, bs *BodyScope) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO scopes (owner_id, scope_id, parent_scope_id) VALUES (?, ?, ?)",
		bs.OwnerID, bs.ScopeID, bs.ParentScopeID,
	)
	return lastID(res, err, "scope")
}

func (s *Store) InsertScopeEntry(se *ScopeEntry) (int64, error) {
	id, err := insertScopeEntryTx(s.db, se)
	if err != nil {
		return 0, err
	}
	se.ID = id
	return id, nil
}

func insertScopeEntryTx(ex execer, se *ScopeEntry) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO scope_entries (owner_id, scope_id, name, pat_idx) VALUES (?, ?, ?, ?)",
		se.OwnerID, se.ScopeID, se.Name, se.PatIdx,
	)
	return lastID(res, err, "scope entry")
}

func (s *Store) InsertExprScope(es *ExprScope) (int64, error) {
	id, err := insertExprScopeTx(s.db, es)
	if err != nil {
		return 0, err
	}
	es.ID = id
	return id, nil
}

func insertExprScopeTx(ex execer, es *ExprScope) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO expr_scopes (owner_id, expr_idx, scope_id) VALUES (?, ?, ?)",
		es.OwnerID, es.ExprIdx, es.ScopeID,
	)
	return lastID(res, err, "expr scope")
}

// ExprByRange returns the expression lowered from exactly [start, end) in a
// file. When nested expressions share the range the innermost one wins.
func (s *Store) ExprByRange(fileID int64, start, end uint32) (*Expr, error) {
	e := &Expr{}
	err := s.db.QueryRow(
		`SELECT id, owner_id, idx, file_id, kind, start_byte, end_byte FROM exprs
		 WHERE file_id = ? AND start_byte = ? AND end_byte = ? ORDER BY owner_id, idx DESC LIMIT 1`,
		fileID, start, end,
	).Scan(&e.ID, &e.OwnerID, &e.Idx, &e.FileID, &e.Kind, &e.StartByte, &e.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expr by range: %w", err)
	}
	return e, nil
}

// PatByRange is ExprByRange for patterns.
func (s *Store) PatByRange(fileID int64, start, end uint32) (*Pat, error) {
	p := &Pat{}
	err := s.db.QueryRow(
		`SELECT id, owner_id, idx, file_id, kind, start_byte, end_byte FROM pats
		 WHERE file_id = ? AND start_byte = ? AND end_byte = ? ORDER BY owner_id, idx DESC LIMIT 1`,
		fileID, start, end,
	).Scan(&p.ID, &p.OwnerID, &p.Idx, &p.FileID, &p.Kind, &p.StartByte, &p.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pat by range: %w", err)
	}
	return p, nil
}

// ExprsByOwner returns a body's expressions in index order.
func (s *Store) ExprsByOwner(ownerID int64) ([]*Expr, error) {
	rows, err := s.db.Query(
		"SELECT id, owner_id, idx, file_id, kind, start_byte, end_byte FROM exprs WHERE owner_id = ? ORDER BY idx",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("exprs by owner: %w", err)
	}
	defer rows.Close()
	var exprs []*Expr
	for rows.Next() {
		e := &Expr{}
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Idx, &e.FileID, &e.Kind, &e.StartByte, &e.EndByte); err != nil {
			return nil, fmt.Errorf("scan expr: %w", err)
		}
		exprs = append(exprs, e)
	}
	return exprs, rows.Err()
}

// MacroCallByRange returns the persisted macro call at exactly
// [start, end) of a file.
func (s *Store) MacroCallByRange(fileID int64, start, end uint32) (*MacroCall, error) {
	mc := &MacroCall{}
	err := s.db.QueryRow(
		"SELECT id, file_id, node_kind, start_byte, end_byte FROM macro_calls WHERE file_id = ? AND start_byte = ? AND end_byte = ?",
		fileID, start, end,
	).Scan(&mc.ID, &mc.FileID, &mc.NodeKind, &mc.StartByte, &mc.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("macro call by range: %w", err)
	}
	return mc, nil
}
