package store

import (
	"database/sql"
	"fmt"
)

// FactsTx writes semantic facts inside one transaction. Reads issued through
// it see the rows written earlier in the same transaction.
type FactsTx struct {
	tx *sql.Tx
}

// WithFacts runs fn in a transaction and commits when fn returns nil.
func (s *Store) WithFacts(fn func(ft *FactsTx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&FactsTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit facts: %w", err)
	}
	return nil
}

func (f *FactsTx) FileByPath(path string) (*File, error) {
	file, err := scanFile(f.tx.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return file, nil
}

func (f *FactsTx) RootModule(fileID int64) (*Def, error) {
	d, err := scanDef(f.tx.QueryRow(
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

// DefAt returns the definition lowered from exactly [start, end) of a file.
func (f *FactsTx) DefAt(fileID int64, start, end uint32) (*Def, error) {
	d, err := scanDef(f.tx.QueryRow(
		"SELECT "+defCols+" FROM defs WHERE file_id = ? AND start_byte = ? AND end_byte = ? AND node_kind != '' ORDER BY id LIMIT 1",
		fileID, start, end,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("def at: %w", err)
	}
	return d, nil
}

// ExprAt returns the innermost body expression spanning exactly
// [start, end).
func (f *FactsTx) ExprAt(fileID int64, start, end uint32) (*Expr, error) {
	e := &Expr{}
	err := f.tx.QueryRow(
		`SELECT id, owner_id, idx, file_id, kind, start_byte, end_byte FROM exprs
		 WHERE file_id = ? AND start_byte = ? AND end_byte = ? ORDER BY idx DESC LIMIT 1`,
		fileID, start, end,
	).Scan(&e.ID, &e.OwnerID, &e.Idx, &e.FileID, &e.Kind, &e.StartByte, &e.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expr at: %w", err)
	}
	return e, nil
}

// PatAt returns the innermost body pattern spanning exactly [start, end).
func (f *FactsTx) PatAt(fileID int64, start, end uint32) (*Pat, error) {
	p := &Pat{}
	err := f.tx.QueryRow(
		`SELECT id, owner_id, idx, file_id, kind, start_byte, end_byte FROM pats
		 WHERE file_id = ? AND start_byte = ? AND end_byte = ? ORDER BY idx DESC LIMIT 1`,
		fileID, start, end,
	).Scan(&p.ID, &p.OwnerID, &p.Idx, &p.FileID, &p.Kind, &p.StartByte, &p.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pat at: %w", err)
	}
	return p, nil
}

func (f *FactsTx) MacroCallAt(fileID int64, start, end uint32) (*MacroCall, error) {
	mc := &MacroCall{}
	err := f.tx.QueryRow(
		"SELECT id, file_id, node_kind, start_byte, end_byte FROM macro_calls WHERE file_id = ? AND start_byte = ? AND end_byte = ?",
		fileID, start, end,
	).Scan(&mc.ID, &mc.FileID, &mc.NodeKind, &mc.StartByte, &mc.EndByte)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("macro call at: %w", err)
	}
	return mc, nil
}

// InsertImplDef records an impl declared by facts rather than lowered from
// syntax.
func (f *FactsTx) InsertImplDef(d *Def) (int64, error) {
	d.Kind = "impl"
	id, err := insertDefTx(f.tx, d)
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

func (f *FactsTx) InsertInference(inf *Inference) (int64, error) {
	res, err := f.tx.Exec(
		"INSERT INTO inference (owner_id, target, idx, key, value) VALUES (?, ?, ?, ?, ?)",
		inf.OwnerID, inf.Target, inf.Idx, inf.Key, inf.Value,
	)
	id, err := lastID(res, err, "inference")
	if err != nil {
		return 0, err
	}
	inf.ID = id
	return id, nil
}

func (f *FactsTx) InsertDerefRule(dr *DerefRule) (int64, error) {
	res, err := f.tx.Exec(
		"INSERT INTO deref_rules (file_id, type_path, target) VALUES (?, ?, ?)",
		dr.FileID, dr.TypePath, dr.Target,
	)
	id, err := lastID(res, err, "deref rule")
	if err != nil {
		return 0, err
	}
	dr.ID = id
	return id, nil
}

func (f *FactsTx) InsertExternCrate(ec *ExternCrate) (int64, error) {
	res, err := f.tx.Exec(
		"INSERT INTO extern_crates (file_id, name, target_file_id) VALUES (?, ?, ?)",
		ec.FileID, ec.Name, ec.TargetFileID,
	)
	id, err := lastID(res, err, "extern crate")
	if err != nil {
		return 0, err
	}
	ec.ID = id
	return id, nil
}

// UpsertPrelude sets the prelude of a file's crate, replacing an earlier
// one.
func (f *FactsTx) UpsertPrelude(p *Prelude) (int64, error) {
	res, err := f.tx.Exec(
		`INSERT INTO preludes (file_id, target_file_id, module_path) VALUES (?, ?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET target_file_id = excluded.target_file_id, module_path = excluded.module_path`,
		p.FileID, p.TargetFileID, p.ModulePath,
	)
	id, err := lastID(res, err, "prelude")
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (f *FactsTx) InsertMacroCall(mc *MacroCall) (int64, error) {
	res, err := f.tx.Exec(
		"INSERT INTO macro_calls (file_id, node_kind, start_byte, end_byte) VALUES (?, ?, ?, ?)",
		mc.FileID, mc.NodeKind, mc.StartByte, mc.EndByte,
	)
	id, err := lastID(res, err, "macro call")
	if err != nil {
		return 0, err
	}
	mc.ID = id
	return id, nil
}

// SetExpansion stores the expansion text of a call and replaces its token
// map.
func (f *FactsTx) SetExpansion(e *Expansion, tokens []TokenMap) error {
	if _, err := f.tx.Exec(
		"INSERT INTO expansions (call_id, text) VALUES (?, ?) ON CONFLICT(call_id) DO UPDATE SET text = excluded.text",
		e.CallID, e.Text,
	); err != nil {
		return fmt.Errorf("insert expansion: %w", err)
	}
	if _, err := f.tx.Exec("DELETE FROM token_maps WHERE call_id = ?", e.CallID); err != nil {
		return fmt.Errorf("clear token map: %w", err)
	}
	for i := range tokens {
		tm := &tokens[i]
		tm.CallID = e.CallID
		res, err := f.tx.Exec(
			"INSERT INTO token_maps (call_id, call_start, call_end, exp_start, exp_end) VALUES (?, ?, ?, ?, ?)",
			tm.CallID, tm.CallStart, tm.CallEnd, tm.ExpStart, tm.ExpEnd,
		)
		id, err := lastID(res, err, "token map")
		if err != nil {
			return err
		}
		tm.ID = id
	}
	return nil
}
