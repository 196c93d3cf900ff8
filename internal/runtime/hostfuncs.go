package runtime

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/scopebind/internal/syntax"
)

// sourceStore remembers the source of every tree a script parsed, keyed by
// the tree's root node. smacker/go-tree-sitter caches Node values per tree,
// so the root pointer is stable and any node finds its source by walking
// Parent() up to it.
type sourceStore struct {
	mu      sync.RWMutex
	sources map[uintptr][]byte
}

func newSourceStore() *sourceStore {
	return &sourceStore{sources: make(map[uintptr][]byte)}
}

func (s *sourceStore) store(tree *sitter.Tree, src []byte) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.sources[key] = src
	s.mu.Unlock()
}

func (s *sourceStore) sourceForNode(node *sitter.Node) ([]byte, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	s.mu.RLock()
	src, ok := s.sources[uintptr(unsafe.Pointer(node))]
	s.mu.RUnlock()
	return src, ok
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func stringArg(fn, what string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

// proxyNode wraps node for a script, mapping a nil node to Risor nil so
// scripts can test for absence.
func proxyNode(fn string, node *sitter.Node) object.Object {
	if node == nil {
		return object.Nil
	}
	p, err := object.NewProxy(node)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// makeParseFn creates "parse", which reads and parses a Rust file.
//
// parse(path) → *sitter.Tree
func makeParseFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, errObj := stringArg("parse", "path", args[0])
		if errObj != nil {
			return errObj
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return parseRust(ctx, ss, "parse", src)
	})
}

// makeParseSrcFn creates "parse_src", which parses Rust source text.
//
// parse_src(source) → *sitter.Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_src", 1, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		return parseRust(ctx, ss, "parse_src", []byte(src))
	})
}

func parseRust(ctx context.Context, ss *sourceStore, fn string, src []byte) object.Object {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(syntax.Language())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("%s: tree-sitter parse failed: %v", fn, err)
	}
	ss.store(tree, src)

	proxy, err := object.NewProxy(tree)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return proxy
}

// makeNodeTextFn creates "node_text". Risor proxies cannot pass a []byte
// to node.Content, so the source is looked up host side.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, ok := ss.sourceForNode(node)
		if !ok {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeNodeChildFn creates "node_child", a ChildByFieldName that returns
// nil for a missing field instead of a proxied nil pointer.
//
// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		return proxyNode("node_child", node.ChildByFieldName(field))
	})
}

// makeNodeRangeFn creates "node_range", giving the byte range of a node in
// the same shape the position queries take offsets in.
//
// node_range(node) → {"start": int, "end": int}
func makeNodeRangeFn() *object.Builtin {
	return object.NewBuiltin("node_range", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_range", 1, len(args))
		}
		node, errObj := nodeArg("node_range", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewMap(map[string]object.Object{
			"start": object.NewInt(int64(node.StartByte())),
			"end":   object.NewInt(int64(node.EndByte())),
		})
	})
}

// makeQueryFn creates "query", which runs a tree-sitter pattern over a
// node. Each match is a map from capture name to node.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		src, ok := ss.sourceForNode(node)
		if !ok {
			return object.Errorf("query: no source found for node's tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), syntax.Language())
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyNode("query", c.Node)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// logObject is the script's "log" global.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "script")
}
