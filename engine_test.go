package scopebind

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// testFileHash computes the same hash the engine records.
func testFileHash(content []byte) string {
	return fmt.Sprintf("%016x", syntax.HashSource(content))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew_CreatesStore(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Store())

	// Migration ran.
	_, err := e.Store().InsertFile(&store.File{Path: "lib.rs", Hash: "abc", LastIndexed: time.Now()})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestIndexSource_RecordsFile(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	src := []byte("fn main() {}\n")
	require.NoError(t, e.IndexSource(context.Background(), "main.rs", src))

	f, err := e.Store().FileByPath("main.rs")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, testFileHash(src), f.Hash)
	assert.Equal(t, src, f.Content)

	root, err := e.Store().RootModule(f.ID)
	require.NoError(t, err)
	require.NotNil(t, root)
}

func TestIndexSource_SkipsUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unchanged", func(t *testing.T) {
		e := newTestEngine(t)
		src := []byte("fn main() {}\n")
		require.NoError(t, e.IndexSource(ctx, "main.rs", src))
		before, _ := e.Store().FileByPath("main.rs")
		require.NoError(t, e.IndexSource(ctx, "main.rs", src))
		after, _ := e.Store().FileByPath("main.rs")
		assert.Equal(t, before.ID, after.ID)
	})

	t.Run("changed", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.IndexSource(ctx, "main.rs", []byte("fn main() {}\n")))
		src := []byte("fn other() { let x = 1; }\n")
		require.NoError(t, e.IndexSource(ctx, "main.rs", src))
		after, err := e.Store().FileByPath("main.rs")
		require.NoError(t, err)
		assert.Equal(t, testFileHash(src), after.Hash)
		assert.Equal(t, src, after.Content)

		names := defNames(t, e, after.ID)
		assert.Contains(t, names, "other")
		assert.NotContains(t, names, "main", "old rows are removed")
	})

	t.Run("forced", func(t *testing.T) {
		e := newTestEngine(t, WithForce(true))
		src := []byte("fn main() {}\n")
		require.NoError(t, e.IndexSource(ctx, "main.rs", src))
		require.NoError(t, e.IndexSource(ctx, "main.rs", src))
		after, err := e.Store().FileByPath("main.rs")
		require.NoError(t, err)

		var mains int
		for _, name := range defNames(t, e, after.ID) {
			if name == "main" {
				mains++
			}
		}
		assert.Equal(t, 1, mains, "re-extraction replaces rows instead of adding to them")
	})
}

func defNames(t *testing.T, e *Engine, fileID int64) []string {
	t.Helper()
	defs, err := e.Store().DefsByFile(fileID)
	require.NoError(t, err)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func TestIndexSource_CountsOutcomes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	indexed := testutil.ToFloat64(filesIndexedTotal.WithLabelValues("indexed"))
	unchanged := testutil.ToFloat64(filesIndexedTotal.WithLabelValues("unchanged"))

	src := []byte("struct S;\n")
	require.NoError(t, e.IndexSource(ctx, "s.rs", src))
	require.NoError(t, e.IndexSource(ctx, "s.rs", src))

	assert.Equal(t, indexed+1, testutil.ToFloat64(filesIndexedTotal.WithLabelValues("indexed")))
	assert.Equal(t, unchanged+1, testutil.ToFloat64(filesIndexedTotal.WithLabelValues("unchanged")))
}

func TestIndexSource_CanceledContext(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.IndexSource(ctx, "main.rs", []byte("fn main() {}\n"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestIndexFiles_SkipsNonRustFiles(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	lib := filepath.Join(dir, "lib.rs")
	writeFile(t, readme, "# hi\n")
	writeFile(t, lib, "pub fn f() {}\n")

	require.NoError(t, e.IndexFiles(context.Background(), []string{readme, lib}))

	f, err := e.Store().FileByPath(readme)
	require.NoError(t, err)
	assert.Nil(t, f)
	f, err = e.Store().FileByPath(lib)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestIndexFiles_ReadError(t *testing.T) {
	t.Parallel()
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			e := newTestEngine(t, WithParallel(parallel))
			dir := t.TempDir()
			good := filepath.Join(dir, "good.rs")
			writeFile(t, good, "fn good() {}\n")
			missing := filepath.Join(dir, "missing.rs")

			err := e.IndexFiles(context.Background(), []string{missing, good})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "1 error(s)")

			f, err := e.Store().FileByPath(good)
			require.NoError(t, err)
			assert.NotNil(t, f, "other files are still indexed")
		})
	}
}

func TestIndexDirectory(t *testing.T) {
	t.Parallel()
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub mod a;\n")
			writeFile(t, filepath.Join(root, "src", "notes.txt"), "not rust\n")
			writeFile(t, filepath.Join(root, "target", "debug", "build.rs"), "fn main() {}\n")
			writeFile(t, filepath.Join(root, ".hidden", "h.rs"), "fn h() {}\n")

			e := newTestEngine(t, WithParallel(parallel))
			require.NoError(t, e.IndexDirectory(context.Background(), root))

			files, err := e.Store().Files()
			require.NoError(t, err)
			var paths []string
			for _, f := range files {
				paths = append(paths, f.Path)
			}
			sort.Strings(paths)
			assert.Equal(t, []string{"src/lib.rs"}, paths)
		})
	}
}

func TestIndexDirectory_Missing(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	require.Error(t, e.IndexDirectory(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestEngine_Spans(t *testing.T) {
	t.Parallel()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := newTestEngine(t, WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	require.NoError(t, e.IndexSource(ctx, "main.rs", []byte("fn main() {}\n")))
	_, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Error(t, e.LoadFacts(ctx, filepath.Join(t.TempDir(), "missing.yaml")))

	ended := sr.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "scopebind.IndexSource", ended[0].Name())
	assert.Equal(t, "scopebind.Snapshot", ended[1].Name())
	assert.Equal(t, "scopebind.LoadFacts", ended[2].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[2].Status().Code)
}

func TestEngine_Logger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newTestEngine(t, WithLogger(logger))
	ctx := context.Background()

	require.NoError(t, e.IndexSource(ctx, "main.rs", []byte("fn main() {}\n")))
	assert.Contains(t, buf.String(), "file indexed")
	assert.Contains(t, buf.String(), "path=main.rs")

	factsPath := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, factsPath, "types:\n  - at: {file: other.rs, start: 0, end: 1}\n    type: i32\n")
	require.Error(t, e.LoadFacts(ctx, factsPath))
	assert.Contains(t, buf.String(), "facts rejected")
}

func TestAnalyzeOffset(t *testing.T) {
	t.Parallel()
	e, snap := mainFixture(t)
	ctx := context.Background()

	a, node, err := e.AnalyzeOffset(ctx, snap, "main.rs", offsetIn(t, mainSrc, "let b = a", "a"))
	require.NoError(t, err)
	assert.Equal(t, "identifier", node.Kind())
	_, ok := a.BodyOwner()
	assert.True(t, ok)

	_, _, err = e.AnalyzeOffset(ctx, snap, "other.rs", 0)
	require.ErrorIs(t, err, ErrNotIndexed)

	_, _, err = e.AnalyzeOffset(ctx, snap, "main.rs", uint32(len(mainSrc)+100))
	require.ErrorIs(t, err, ErrNoNode)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = e.AnalyzeOffset(canceled, snap, "main.rs", 0)
	require.ErrorIs(t, err, context.Canceled)
}
