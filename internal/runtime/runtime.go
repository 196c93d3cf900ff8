// Package runtime embeds a Risor VM for scripting queries against a
// scopebind database. Scripts get tree-sitter host functions for Rust
// source, read-only SQL, and the position queries of a snapshot taken when
// the script starts.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/scopebind"
)

// Runtime runs Risor scripts with scopebind host functions.
type Runtime struct {
	engine     *scopebind.Engine
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
	sources    *sourceStore
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts and resolves imports from fsys instead of disk.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the log global. The default
// discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a Runtime. engine may be nil, in which case only the
// syntax host functions are available. scriptsDir is where relative script
// paths and imports are looked up.
func NewRuntime(engine *scopebind.Engine, scriptsDir string, opts ...Option) *Runtime {
	r := &Runtime{
		engine:     engine,
		scriptsDir: scriptsDir,
		logger:     slog.New(slog.DiscardHandler),
		sources:    newSourceStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript runs the script at scriptPath. extraGlobals are added to the
// host functions and override any of the same name.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource runs source as an inline script.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals, err := r.buildGlobals(ctx, extraGlobals)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	// Imported modules compile against the same names as the script,
	// Risor's builtins included.
	if imp := r.buildImporter(risor.NewConfig(opts...).GlobalNames()); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.logger.Debug("running script", "script", label)
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's
// script source, or nil if neither an fs.FS nor a scripts directory is set.
// globalNames are the names imported code may refer to.
func (r *Runtime) buildImporter(globalNames []string) importer.Importer {
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. With an fs.FS
// configured the path is looked up in it; otherwise relative paths are
// taken from the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		// fs.FS paths are unrooted: "/q/names.risor" -> "q/names.risor".
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to a script. With
// an engine, one snapshot is taken here and every query global of the run
// reads from it.
func (r *Runtime) buildGlobals(ctx context.Context, extra map[string]any) (map[string]any, error) {
	globals := map[string]any{
		"parse":      makeParseFn(r.sources),
		"parse_src":  makeParseSrcFn(r.sources),
		"node_text":  makeNodeTextFn(r.sources),
		"node_child": makeNodeChildFn(),
		"node_range": makeNodeRangeFn(),
		"query":      makeQueryFn(r.sources),
		"log":        mustProxy(&logObject{logger: r.logger}),
	}

	if r.engine != nil {
		q, err := r.engine.Query(ctx)
		if err != nil {
			return nil, err
		}
		// Risor cannot construct Go structs, so query results come back as
		// plain maps and lists.
		globals["files"] = makeFilesFn(q)
		globals["source"] = makeSourceFn(q)
		globals["node_at"] = makePositionFn("node_at", q, (*scopebind.QueryBuilder).NodeAt)
		globals["scope_at"] = makePositionFn("scope_at", q, (*scopebind.QueryBuilder).ScopeAt)
		globals["names_at"] = makePositionFn("names_at", q, (*scopebind.QueryBuilder).NamesAt)
		globals["resolve_at"] = makePositionFn("resolve_at", q, (*scopebind.QueryBuilder).ResolveAt)
		globals["type_at"] = makePositionFn("type_at", q, (*scopebind.QueryBuilder).TypeAt)
		globals["expand_at"] = makePositionFn("expand_at", q, (*scopebind.QueryBuilder).ExpandAt)
		globals["references_at"] = makePositionFn("references_at", q, (*scopebind.QueryBuilder).ReferencesAt)
		globals["db_query"] = makeDBQueryFn(r.engine.Store())
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals, nil
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
