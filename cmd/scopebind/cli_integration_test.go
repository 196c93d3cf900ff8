package main_test

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSrc = `macro_rules! twice { ($e:expr) => { $e + $e }; }
fn helper(n: i32) -> i32 {
    let doubled = n + n;
    doubled
}
fn main() {
    let x = helper(2);
    twice!(x);
}
`

// buildBinary compiles the scopebind binary into a temp directory.
func buildBinary(t *testing.T) string {
	t.Helper()
	binName := "scopebind"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Join(projectRoot(t), "cmd", "scopebind")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return bin
}

// projectRoot walks up from this file's directory to the one holding go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "could not find project root")
		dir = parent
	}
}

// createRustFixture writes a one-file crate under a fake repo root.
func createRustFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.rs"), []byte(fixtureSrc), 0o644))
	return dir
}

func indexFixture(t *testing.T) (bin, dir string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin = buildBinary(t)
	dir = createRustFixture(t)

	cmd := exec.Command(bin, "index", dir)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "index failed: %s", string(out))
	require.FileExists(t, filepath.Join(dir, ".scopebind", "index.db"))
	return bin, dir
}

// runCLI executes a scopebind command in dir and returns stdout and the
// exit error, if any.
func runCLI(t *testing.T, bin, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "HOME="+t.TempDir())
	out, err := cmd.Output()
	return string(out), err
}

// runQuery executes a query command and returns the parsed JSON envelope.
func runQuery(t *testing.T, bin, dir string, args ...string) map[string]any {
	t.Helper()
	stdout, err := runCLI(t, bin, dir, append([]string{"query"}, args...)...)
	if err != nil && stdout == "" {
		t.Fatalf("query command failed with no output: %v", err)
	}
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), "invalid JSON output: %s", stdout)
	return result
}

func fixtureOffset(t *testing.T, anchor, sub string) string {
	t.Helper()
	i := strings.Index(fixtureSrc, anchor)
	require.GreaterOrEqual(t, i, 0)
	j := strings.Index(anchor, sub)
	require.GreaterOrEqual(t, j, 0)
	return fmt.Sprint(i + j)
}

func TestCLI_Resolve(t *testing.T) {
	bin, dir := indexFixture(t)

	result := runQuery(t, bin, dir, "resolve", "src/main.rs", "3:4")
	assert.Equal(t, "resolve", result["command"])
	assert.Empty(t, result["error"])
	res, ok := result["results"].(map[string]any)
	require.True(t, ok, "results: %v", result["results"])
	assert.Equal(t, "local", res["kind"])
	loc := res["location"].(map[string]any)
	assert.Equal(t, "src/main.rs", loc["file"])
	assert.EqualValues(t, 2, loc["start_line"])
	assert.EqualValues(t, 8, loc["start_col"])

	result = runQuery(t, bin, dir, "resolve", "src/main.rs", fixtureOffset(t, "helper(2)", "helper"))
	res = result["results"].(map[string]any)
	assert.Equal(t, "def", res["kind"])
	assert.Contains(t, res["def"], "function helper#")
}

func TestCLI_Names(t *testing.T) {
	bin, dir := indexFixture(t)

	result := runQuery(t, bin, dir, "names", "src/main.rs", "3:4")
	names, ok := result["results"].([]any)
	require.True(t, ok)
	assert.EqualValues(t, len(names), result["total_count"])

	kinds := make(map[string]string)
	for _, n := range names {
		m := n.(map[string]any)
		kinds[m["name"].(string)] = m["kind"].(string)
	}
	assert.Equal(t, "local", kinds["doubled"])
	assert.Equal(t, "local", kinds["n"])
	assert.Equal(t, "item", kinds["helper"])
	assert.Equal(t, "item", kinds["main"])
	assert.NotContains(t, kinds, "x")
}

func TestCLI_Refs(t *testing.T) {
	bin, dir := indexFixture(t)

	result := runQuery(t, bin, dir, "refs", "src/main.rs", "2:8")
	refs, ok := result["results"].([]any)
	require.True(t, ok)
	require.Len(t, refs, 1)
	assert.EqualValues(t, 3, refs[0].(map[string]any)["start_line"])
}

func TestCLI_FactsTypeAndExpand(t *testing.T) {
	bin, dir := indexFixture(t)

	x := strings.Index(fixtureSrc, "let x") + len("let ")
	call := strings.Index(fixtureSrc, "twice!(x)")
	doc := fmt.Sprintf(`types:
  - at: {file: src/main.rs, start: %d, end: %d}
    type: i32
    pat: true
macro_calls:
  - at: {file: src/main.rs, start: %d, end: %d}
    expansion: "x + x;"
`, x, x+1, call, call+len("twice!(x)"))
	factsPath := filepath.Join(dir, "facts.yaml")
	require.NoError(t, os.WriteFile(factsPath, []byte(doc), 0o644))

	// Before facts no type is known.
	result := runQuery(t, bin, dir, "type", "src/main.rs", fmt.Sprint(x))
	assert.Nil(t, result["results"])

	_, err := runCLI(t, bin, dir, "facts", factsPath)
	require.NoError(t, err)

	result = runQuery(t, bin, dir, "type", "src/main.rs", fmt.Sprint(x))
	ty, ok := result["results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "i32", ty["type"])

	result = runQuery(t, bin, dir, "expand", "src/main.rs", fixtureOffset(t, "twice!(x)", "x)"))
	exp, ok := result["results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "twice", exp["macro"])
	assert.Equal(t, "x + x;", exp["text"])
}

func TestCLI_FactsRejected(t *testing.T) {
	bin, dir := indexFixture(t)

	factsPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(factsPath, []byte(`types:
  - at: {file: src/other.rs, start: 0, end: 1}
    type: i32
`), 0o644))
	_, err := runCLI(t, bin, dir, "facts", factsPath)
	assert.Error(t, err)
}

func TestCLI_Files(t *testing.T) {
	bin, dir := indexFixture(t)

	result := runQuery(t, bin, dir, "files")
	files, ok := result["results"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	assert.Equal(t, "src/main.rs", files[0].(map[string]any)["path"])
}

func TestCLI_ErrorEnvelope(t *testing.T) {
	bin, dir := indexFixture(t)

	result := runQuery(t, bin, dir, "resolve", "src/missing.rs", "0")
	assert.Equal(t, "resolve", result["command"])
	assert.Contains(t, result["error"], "not indexed")

	result = runQuery(t, bin, dir, "resolve", "src/main.rs", "99:0")
	assert.Contains(t, result["error"], "out of range")
}

func TestCLI_TextFormat(t *testing.T) {
	bin, dir := indexFixture(t)

	out, err := runCLI(t, bin, dir, "--format", "text", "query", "refs", "src/main.rs", "2:8")
	require.NoError(t, err)
	assert.Equal(t, "src/main.rs:3:4\n", out)
}

func TestCLI_Run(t *testing.T) {
	bin, dir := indexFixture(t)

	script := filepath.Join(dir, "check.risor")
	require.NoError(t, os.WriteFile(script, []byte(`
assert(len(args) == 1)
assert(files()[0] == args[0])
assert(len(names_at(args[0], 0)) > 0)
`), 0o644))
	_, err := runCLI(t, bin, dir, "run", script, "src/main.rs")
	require.NoError(t, err)

	failing := filepath.Join(dir, "fail.risor")
	require.NoError(t, os.WriteFile(failing, []byte(`assert(false, "boom")`), 0o644))
	_, err = runCLI(t, bin, dir, "run", failing)
	assert.Error(t, err)
}

func TestCLI_QueryWithoutIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	dir := createRustFixture(t)

	result := runQuery(t, bin, dir, "files")
	assert.Contains(t, result["error"], "database not found")
}
