package scopebind

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/scopebind/internal/facts"
	"github.com/jward/scopebind/internal/lower"
	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

// tracerName is the OTel tracer used when WithTracer is not given.
const tracerName = "github.com/jward/scopebind"

var (
	// ErrNotIndexed is returned for paths the database has no file for.
	ErrNotIndexed = errors.New("file not indexed")
	// ErrNoNode is returned when an offset lies outside a file.
	ErrNoNode = errors.New("no syntax node at offset")
)

// Engine owns the semantic database: it indexes Rust sources into it, loads
// facts, and hands out snapshots to analyze positions against.
type Engine struct {
	store    *store.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	parallel bool
	force    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer indexing and loading spans are recorded with.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithParallel controls parallel indexing. When true (default), IndexFiles
// parses and lowers files on a worker pool and commits them serially.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

// WithForce makes indexing reprocess files whose content is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("scopebind: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("scopebind: migrate: %w", err)
	}
	e := &Engine{
		store:    s,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(tracerName),
		parallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// sourceFile is one file to index: the path it is recorded under and the
// path its content is read from.
type sourceFile struct {
	path string
	disk string
}

// IndexSource indexes src under path, replacing whatever was recorded for
// path before. Unchanged content is skipped unless WithForce is set.
func (e *Engine) IndexSource(ctx context.Context, path string, src []byte) error {
	ctx, span := e.tracer.Start(ctx, "scopebind.IndexSource",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	item, skip, err := e.prepareFile(ctx, path, src)
	if err == nil && !skip {
		err = e.extractFile(ctx, item)
		if err == nil {
			err = e.commitFile(item)
		} else {
			e.discardFile(item)
		}
	}
	if err != nil {
		filesIndexedTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("index %s: %w", path, err)
	}
	span.SetAttributes(attribute.Bool("file.unchanged", skip))
	return nil
}

// IndexFiles indexes the given paths, skipping files without the .rs
// extension. When WithParallel is enabled, parsing and lowering run on a
// worker pool. Errors on individual files are logged and processing
// continues; the first one is returned.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	files := make([]sourceFile, 0, len(paths))
	for _, p := range paths {
		if isRustFile(p) {
			files = append(files, sourceFile{path: p, disk: p})
		}
	}
	return e.indexFiles(ctx, files)
}

func (e *Engine) indexFiles(ctx context.Context, files []sourceFile) error {
	ctx, span := e.tracer.Start(ctx, "scopebind.IndexFiles",
		trace.WithAttributes(
			attribute.Int("files.count", len(files)),
			attribute.Bool("parallel", e.parallel),
		))
	defer span.End()

	var err error
	if e.parallel {
		err = e.indexFilesParallel(ctx, files)
	} else {
		err = e.indexFilesSerial(ctx, files)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) indexFilesSerial(ctx context.Context, files []sourceFile) error {
	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := os.ReadFile(f.disk)
		if err != nil {
			e.logger.Warn("read failed", "path", f.disk, "error", err)
			errs = append(errs, fmt.Errorf("read %s: %w", f.disk, err))
			continue
		}
		if err := e.IndexSource(ctx, f.path, src); err != nil {
			e.logger.Warn("index failed", "path", f.path, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// workItem holds everything extraction of one file needs.
type workItem struct {
	path   string
	fileID int64
	src    []byte
	batch  *store.BatchedStore
}

// prepareFile checks the content hash, clears stale rows and records the
// file. skip is true when the content is unchanged.
func (e *Engine) prepareFile(ctx context.Context, path string, src []byte) (workItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return workItem{}, false, err
	}
	hash := fmt.Sprintf("%016x", syntax.HashSource(src))

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash && !e.force {
		filesIndexedTotal.WithLabelValues("unchanged").Inc()
		e.logger.Debug("file unchanged", "path", path)
		return workItem{}, true, nil
	}
	if existing != nil {
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
		if err := e.store.DeleteFile(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete file record: %w", err)
		}
	}

	fileID, err := e.store.InsertFile(&store.File{
		Path:        path,
		Hash:        hash,
		Content:     src,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert file: %w", err)
	}
	return workItem{path: path, fileID: fileID, src: src, batch: store.NewBatchedStore()}, false, nil
}

// extractFile parses the file and lowers it into the item's batch. It
// touches no shared state and may run on any goroutine.
func (e *Engine) extractFile(ctx context.Context, item workItem) error {
	tree, err := syntax.Parse(ctx, syntax.SourceFile(item.fileID), item.src)
	if err != nil {
		return err
	}
	return lower.File(ctx, item.batch, tree, item.fileID)
}

func (e *Engine) commitFile(item workItem) error {
	if err := e.store.CommitBatch(item.batch); err != nil {
		e.discardFile(item)
		return fmt.Errorf("commit: %w", err)
	}
	filesIndexedTotal.WithLabelValues("indexed").Inc()
	e.logger.Debug("file indexed", "path", item.path, "rows", item.batch.Len())
	return nil
}

// discardFile removes the record of a file whose extraction failed so the
// next run does not mistake it for unchanged.
func (e *Engine) discardFile(item workItem) {
	if err := e.store.DeleteFileData(item.fileID); err != nil {
		e.logger.Warn("discard file data", "path", item.path, "error", err)
	}
	if err := e.store.DeleteFile(item.fileID); err != nil {
		e.logger.Warn("discard file", "path", item.path, "error", err)
	}
}

var skipDirs = map[string]bool{
	"target":       true,
	"node_modules": true,
	"vendor":       true,
}

// IndexDirectory indexes every .rs file under root. Files are recorded by
// their slash-separated path relative to root. Inside a git repository git
// ls-files decides which files count, so .gitignore is respected; otherwise
// the directory is walked, skipping hidden directories and build output.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	rels, err := gitListFiles(root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", "root", root, "error", err)
		rels, err = walkListFiles(root)
		if err != nil {
			return err
		}
	}
	files := make([]sourceFile, len(rels))
	for i, rel := range rels {
		files[i] = sourceFile{path: filepath.ToSlash(rel), disk: filepath.Join(root, rel)}
	}
	e.logger.Info("indexing directory", "root", root, "files", len(files))
	return e.indexFiles(ctx, files)
}

func isRustFile(path string) bool { return strings.HasSuffix(path, ".rs") }

// gitListFiles returns the tracked and untracked but not ignored .rs files
// under root, relative to root.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && isRustFile(line) {
			paths = append(paths, filepath.FromSlash(line))
		}
	}
	return paths, nil
}

func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isRustFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// LoadFacts applies a YAML facts document to the database in one
// transaction.
func (e *Engine) LoadFacts(ctx context.Context, path string) error {
	ctx, span := e.tracer.Start(ctx, "scopebind.LoadFacts",
		trace.WithAttributes(attribute.String("facts.path", path)))
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load facts: %w", err)
	}
	defer f.Close()

	if err := facts.Load(ctx, e.store, f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("facts rejected", "path", path, "error", err)
		return fmt.Errorf("load facts %s: %w", path, err)
	}
	e.logger.Debug("facts loaded", "path", path)
	return nil
}

// Snapshot takes an immutable copy of the database to analyze against.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := e.tracer.Start(ctx, "scopebind.Snapshot")
	defer span.End()

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("files.count", len(snap.Paths())))
	return snap, nil
}

// AnalyzeOffset builds the analyzer for a byte offset of an indexed file.
// It also returns the smallest named node at the offset.
func (e *Engine) AnalyzeOffset(ctx context.Context, snap *Snapshot, path string, offset uint32) (*SourceAnalyzer, syntax.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, syntax.Node{}, err
	}
	id, ok := snap.FileID(path)
	if !ok {
		return nil, syntax.Node{}, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}
	tree, ok := snap.ParseOrExpand(syntax.SourceFile(id))
	if !ok {
		return nil, syntax.Node{}, fmt.Errorf("%w: %s has no source", ErrNotIndexed, path)
	}
	node, ok := tree.NodeAt(offset)
	if !ok {
		return nil, syntax.Node{}, fmt.Errorf("%w: %s:%d", ErrNoNode, path, offset)
	}
	return AnalyzeAt(snap, node, offset), node, nil
}
