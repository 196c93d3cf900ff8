package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/scopebind"
)

var (
	flagDB       string
	flagFormat   string
	flagLogLevel string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "scopebind",
	Short:         "Scope-aware name resolution for Rust source",
	Long:          "scopebind indexes Rust crates with tree-sitter into SQLite and answers what a name means at any byte offset.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		_, err := parseLogLevel(flagLogLevel)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .scopebind/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "stderr log level: debug|info|warn|error")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(runCmd)
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a Rust crate",
	Long:  "Parses every .rs file under path with tree-sitter and lowers definitions, bodies and scopes into the database. Unchanged files are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "reindex files even when their content is unchanged")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(findRepoRoot(targetDir))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	engine, err := scopebind.New(dbPath, engineOptions(scopebind.WithForce(flagForce))...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	if err := engine.IndexDirectory(runContext(cmd), targetDir); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

var factsCmd = &cobra.Command{
	Use:   "facts <file.yaml>",
	Short: "Load type inference and macro expansion facts",
	Long:  "Applies a YAML facts document to an indexed database. The whole document is rejected if any entry names an unknown file or node.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacts,
}

func runFacts(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.LoadFacts(runContext(cmd), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Loaded facts from %s\n", args[0])
	return nil
}

// engineOptions returns the options every command builds its Engine with.
func engineOptions(extra ...scopebind.Option) []scopebind.Option {
	return append([]scopebind.Option{scopebind.WithLogger(newLogger())}, extra...)
}

// newLogger returns a stderr logger at the --log-level level.
func newLogger() *slog.Logger {
	level, _ := parseLogLevel(flagLogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openEngine opens the existing database from the --db flag path (or
// default).
func openEngine() (*scopebind.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'scopebind index' first)", dbPath)
	}
	return scopebind.New(dbPath, engineOptions()...)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory or a
// Cargo.lock. Returns startDir if neither is found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		if _, err := os.Stat(filepath.Join(dir, "Cargo.lock")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".scopebind", "index.db")
}

func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
