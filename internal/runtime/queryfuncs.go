package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/scopebind"
	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

// makePositionFn wraps a QueryBuilder position query as a host function.
//
// name(path, offset) → map, list or nil
func makePositionFn[T any](name string, q *scopebind.QueryBuilder, fn func(*scopebind.QueryBuilder, context.Context, string, uint32) (T, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError(name, 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: path: %v", name, err)
		}
		offset, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("%s: offset: %v", name, err)
		}
		if offset < 0 {
			return object.Errorf("%s: offset must not be negative, got %d", name, offset)
		}

		res, err := fn(q, ctx, path, uint32(offset))
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		obj, err := toObject(res)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return obj
	})
}

// makeFilesFn creates "files", listing the indexed paths in order.
//
// files() → []string
func makeFilesFn(q *scopebind.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		paths := q.Snapshot().Paths()
		results := make([]object.Object, 0, len(paths))
		for _, p := range paths {
			results = append(results, object.NewString(p))
		}
		return object.NewList(results)
	})
}

// makeSourceFn creates "source", returning the indexed text of a file.
//
// source(path) → string
func makeSourceFn(q *scopebind.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("source", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("source", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("source: %v", err)
		}
		snap := q.Snapshot()
		id, ok := snap.FileID(path)
		if !ok {
			return object.Errorf("source: %s: %v", path, scopebind.ErrNotIndexed)
		}
		tree, ok := snap.ParseOrExpand(syntax.SourceFile(id))
		if !ok {
			return object.Errorf("source: %s has no content", path)
		}
		return object.NewString(string(tree.Source()))
	})
}

// makeDBQueryFn creates a db_query bridge that executes read-only SQL.
// Returns a list of maps (column name → value).
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		var results []object.Object
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// toObject converts a query result to Risor maps and lists, keyed by the
// result's JSON field names so scripts see the same shape as the CLI's
// JSON output. Integral numbers become ints.
func toObject(v any) (object.Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return jsonToObject(decoded), nil
}

func jsonToObject(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case bool:
		return object.NewBool(val)
	case string:
		return object.NewString(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return object.NewInt(i)
		}
		f, _ := val.Float64()
		return object.NewFloat(f)
	case []any:
		items := make([]object.Object, len(val))
		for i, item := range val {
			items[i] = jsonToObject(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(val))
		for k, item := range val {
			m[k] = jsonToObject(item)
		}
		return object.NewMap(m)
	}
	return object.NewString(fmt.Sprintf("%v", v))
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
