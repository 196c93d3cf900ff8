package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for scopebind's semantic facts.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Extraction tables

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  content         BLOB,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS defs (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL DEFAULT '',
  node_kind       TEXT NOT NULL DEFAULT '',
  start_byte      INTEGER NOT NULL DEFAULT 0,
  end_byte        INTEGER NOT NULL DEFAULT 0,
  module_id       INTEGER REFERENCES defs(id),
  parent_id       INTEGER REFERENCES defs(id),
  has_self        BOOLEAN DEFAULT FALSE,
  self_ty         TEXT NOT NULL DEFAULT '',
  trait           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS module_items (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES defs(id),
  name            TEXT NOT NULL,
  namespace       TEXT NOT NULL,
  def_id          INTEGER NOT NULL REFERENCES defs(id)
);

CREATE TABLE IF NOT EXISTS generic_params (
  id              INTEGER PRIMARY KEY,
  def_id          INTEGER NOT NULL REFERENCES defs(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exprs (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  idx             INTEGER NOT NULL,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pats (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  idx             INTEGER NOT NULL,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  scope_id        INTEGER NOT NULL,
  parent_scope_id INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scope_entries (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  scope_id        INTEGER NOT NULL,
  name            TEXT NOT NULL,
  pat_idx         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS expr_scopes (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  expr_idx        INTEGER NOT NULL,
  scope_id        INTEGER NOT NULL
);

-- Fact tables

CREATE TABLE IF NOT EXISTS inference (
  id              INTEGER PRIMARY KEY,
  owner_id        INTEGER NOT NULL REFERENCES defs(id),
  target          TEXT NOT NULL,
  idx             INTEGER NOT NULL,
  key             TEXT NOT NULL,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deref_rules (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  type_path       TEXT NOT NULL,
  target          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extern_crates (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  target_file_id  INTEGER NOT NULL REFERENCES files(id)
);

CREATE TABLE IF NOT EXISTS preludes (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL UNIQUE REFERENCES files(id),
  target_file_id  INTEGER NOT NULL REFERENCES files(id),
  module_path     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS macro_calls (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  node_kind       TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS expansions (
  call_id         INTEGER PRIMARY KEY REFERENCES macro_calls(id),
  text            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS token_maps (
  id              INTEGER PRIMARY KEY,
  call_id         INTEGER NOT NULL REFERENCES macro_calls(id),
  call_start      INTEGER NOT NULL,
  call_end        INTEGER NOT NULL,
  exp_start       INTEGER NOT NULL,
  exp_end         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_defs_file ON defs(file_id);
CREATE INDEX IF NOT EXISTS idx_defs_name ON defs(name);
CREATE INDEX IF NOT EXISTS idx_defs_parent ON defs(parent_id);
CREATE INDEX IF NOT EXISTS idx_module_items_module ON module_items(module_id);
CREATE INDEX IF NOT EXISTS idx_generic_params_def ON generic_params(def_id);
CREATE INDEX IF NOT EXISTS idx_exprs_owner ON exprs(owner_id);
CREATE INDEX IF NOT EXISTS idx_exprs_range ON exprs(file_id, start_byte, end_byte);
CREATE INDEX IF NOT EXISTS idx_pats_owner ON pats(owner_id);
CREATE INDEX IF NOT EXISTS idx_pats_range ON pats(file_id, start_byte, end_byte);
CREATE INDEX IF NOT EXISTS idx_scopes_owner ON scopes(owner_id);
CREATE INDEX IF NOT EXISTS idx_scope_entries_owner ON scope_entries(owner_id);
CREATE INDEX IF NOT EXISTS idx_expr_scopes_owner ON expr_scopes(owner_id);
CREATE INDEX IF NOT EXISTS idx_inference_owner ON inference(owner_id);
CREATE INDEX IF NOT EXISTS idx_macro_calls_range ON macro_calls(file_id, start_byte, end_byte);
CREATE INDEX IF NOT EXISTS idx_token_maps_call ON token_maps(call_id);
`

// DeleteFileData transactionally removes everything derived from a file:
// its definitions and bodies, the facts attached to them, and the facts
// declared against the file. Deletes run in reverse-dependency order to
// respect FK constraints.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM defs WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query defs: %w", err)
	}
	var defIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan def id: %w", err)
		}
		defIDs = append(defIDs, id)
	}
	rows.Close()

	rows, err = tx.Query("SELECT id FROM macro_calls WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query macro calls: %w", err)
	}
	var callIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan macro call id: %w", err)
		}
		callIDs = append(callIDs, id)
	}
	rows.Close()

	if len(callIDs) > 0 {
		placeholders := placeholderList(len(callIDs))
		args := int64sToArgs(callIDs)
		for _, q := range []string{
			"DELETE FROM token_maps WHERE call_id IN (" + placeholders + ")",
			"DELETE FROM expansions WHERE call_id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete expansion data: %w", err)
			}
		}
	}

	if len(defIDs) > 0 {
		placeholders := placeholderList(len(defIDs))
		args := int64sToArgs(defIDs)
		for _, q := range []string{
			"DELETE FROM inference WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM expr_scopes WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM scope_entries WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM scopes WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM pats WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM exprs WHERE owner_id IN (" + placeholders + ")",
			"DELETE FROM generic_params WHERE def_id IN (" + placeholders + ")",
			"DELETE FROM module_items WHERE module_id IN (" + placeholders + ") OR def_id IN (" + placeholders + ")",
		} {
			expandedArgs := args
			if count := countSubstring(q, "("+placeholders+")"); count > 1 {
				expandedArgs = repeatArgs(args, count)
			}
			if _, err := tx.Exec(q, expandedArgs...); err != nil {
				return fmt.Errorf("delete body data: %w", err)
			}
		}
		// Children reference parents; clear the links before removing rows.
		if _, err := tx.Exec("UPDATE defs SET parent_id = NULL, module_id = NULL WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("unlink defs: %w", err)
		}
	}

	for _, q := range []string{
		"DELETE FROM macro_calls WHERE file_id = ?",
		"DELETE FROM deref_rules WHERE file_id = ?",
		"DELETE FROM extern_crates WHERE file_id = ? OR target_file_id = ?",
		"DELETE FROM preludes WHERE file_id = ? OR target_file_id = ?",
		"DELETE FROM defs WHERE file_id = ?",
	} {
		args := []any{fileID}
		if countSubstring(q, "?") > 1 {
			args = repeatArgs(args, 2)
		}
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
