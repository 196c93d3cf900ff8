package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// execer is satisfied by both *sql.DB and *sql.Tx, so every insert can run
// directly or inside a batch transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// repeatArgs repeats args n times (for queries with multiple IN clauses).
func repeatArgs(args []any, n int) []any {
	result := make([]any, 0, len(args)*n)
	for range n {
		result = append(result, args...)
	}
	return result
}

// countSubstring counts non-overlapping occurrences of substr in s.
func countSubstring(s, substr string) int {
	return strings.Count(s, substr)
}

// lastID returns the row id of an insert.
func lastID(res sql.Result, err error, what string) (int64, error) {
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", what, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}
