package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/risor-io/risor/object"
	"github.com/spf13/cobra"

	"github.com/jward/scopebind"
	"github.com/jward/scopebind/internal/runtime"
)

var flagScriptsDir string

var runCmd = &cobra.Command{
	Use:   "run <script.risor> [args...]",
	Short: "Run a Risor script against the index",
	Long: `Runs a Risor script with the scopebind host functions. When a database
exists the position queries (resolve_at, names_at, ...) and db_query are
available; otherwise only the tree-sitter functions are. Remaining arguments
are passed to the script as the list "args".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "directory imports are resolved from (default: the script's directory)")
}

func runScript(cmd *cobra.Command, args []string) error {
	var engine *scopebind.Engine
	if e, err := openEngine(); err == nil {
		engine = e
		defer engine.Close()
	} else {
		fmt.Fprintf(os.Stderr, "Warning: %s; query functions unavailable\n", err)
	}

	script, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving script path %q: %w", args[0], err)
	}
	scriptsDir := flagScriptsDir
	if scriptsDir == "" {
		scriptsDir = filepath.Dir(script)
	}

	rt := runtime.NewRuntime(engine, scriptsDir, runtime.WithLogger(newLogger()))

	scriptArgs := make([]object.Object, 0, len(args)-1)
	for _, a := range args[1:] {
		scriptArgs = append(scriptArgs, object.NewString(a))
	}
	return rt.RunScript(runContext(cmd), script, map[string]any{
		"args": object.NewList(scriptArgs),
	})
}
