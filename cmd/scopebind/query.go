package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/scopebind"
	"github.com/jward/scopebind/internal/syntax"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the index at a position",
	Long: `Run queries against an indexed crate. A position is either a byte offset
or a 0-based line:col pair. Files are named by the path they were indexed
under, relative to the indexed directory.`,
}

func init() {
	queryCmd.AddCommand(positionCmd("node", "Show the syntax node at a position", (*scopebind.QueryBuilder).NodeAt))
	queryCmd.AddCommand(positionCmd("scope", "Show the module, generic owner and expression scope at a position", (*scopebind.QueryBuilder).ScopeAt))
	queryCmd.AddCommand(positionCmd("names", "List the names visible at a position", (*scopebind.QueryBuilder).NamesAt))
	queryCmd.AddCommand(positionCmd("resolve", "Resolve the path at a position", (*scopebind.QueryBuilder).ResolveAt))
	queryCmd.AddCommand(positionCmd("type", "Show the inferred type at a position", (*scopebind.QueryBuilder).TypeAt))
	queryCmd.AddCommand(positionCmd("expand", "Expand the macro call enclosing a position", (*scopebind.QueryBuilder).ExpandAt))
	queryCmd.AddCommand(positionCmd("refs", "Find the uses of the local binding at a position", (*scopebind.QueryBuilder).ReferencesAt))
	queryCmd.AddCommand(filesCmd)
}

// positionCmd builds a "<file> <position>" subcommand around a QueryBuilder
// method.
func positionCmd[T any](name, short string, fn func(*scopebind.QueryBuilder, context.Context, string, uint32) (T, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <file> <offset|line:col>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := runContext(cmd)
			engine, err := openEngine()
			if err != nil {
				return outputError(name, err)
			}
			defer engine.Close()

			q, err := engine.Query(ctx)
			if err != nil {
				return outputError(name, err)
			}
			path := indexedPath(args[0])
			offset, err := parsePosition(q.Snapshot(), path, args[1])
			if err != nil {
				return outputError(name, err)
			}
			res, err := fn(q, ctx, path, offset)
			if err != nil {
				return outputError(name, err)
			}
			return outputResult(newResult(name, res))
		},
	}
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError("files", err)
		}
		defer engine.Close()

		snap, err := engine.Snapshot(runContext(cmd))
		if err != nil {
			return outputError("files", err)
		}
		files := make([]CLIFile, 0)
		for _, p := range snap.Paths() {
			id, _ := snap.FileID(p)
			files = append(files, CLIFile{ID: id, Path: p})
		}
		return outputResult(newResult("files", files))
	},
}

// indexedPath normalizes a file argument to the slash-separated form paths
// are indexed under.
func indexedPath(file string) string {
	return filepath.ToSlash(filepath.Clean(file))
}

// parsePosition reads a byte offset, or a 0-based line:col pair which is
// converted against the indexed source of path.
func parsePosition(snap *scopebind.Snapshot, path, value string) (uint32, error) {
	lineStr, colStr, isLineCol := strings.Cut(value, ":")
	if !isLineCol {
		n, err := parseIntArg(value, "offset")
		if err != nil {
			return 0, err
		}
		return uint32(n), nil
	}

	line, err := parseIntArg(lineStr, "line")
	if err != nil {
		return 0, err
	}
	col, err := parseIntArg(colStr, "col")
	if err != nil {
		return 0, err
	}
	id, ok := snap.FileID(path)
	if !ok {
		return 0, fmt.Errorf("%w: %s", scopebind.ErrNotIndexed, path)
	}
	tree, ok := snap.ParseOrExpand(syntax.SourceFile(id))
	if !ok {
		return 0, fmt.Errorf("%w: %s has no source", scopebind.ErrNotIndexed, path)
	}
	return offsetOf(tree.Source(), line, col)
}

// offsetOf converts a 0-based line and byte column to an offset.
func offsetOf(src []byte, line, col int) (uint32, error) {
	start := 0
	for i := 0; i < line; i++ {
		nl := bytes.IndexByte(src[start:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d out of range", line)
		}
		start += nl + 1
	}
	end := len(src)
	if nl := bytes.IndexByte(src[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if start+col > end {
		return 0, fmt.Errorf("col %d out of range on line %d", col, line)
	}
	return uint32(start + col), nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// newResult wraps a query result in the envelope. List results carry a
// count.
func newResult(command string, results any) CLIResult {
	r := CLIResult{Command: command, Results: results}
	switch v := results.(type) {
	case []scopebind.Name:
		n := len(v)
		r.TotalCount = &n
	case []scopebind.Location:
		n := len(v)
		r.TotalCount = &n
	case []CLIFile:
		n := len(v)
		r.TotalCount = &n
	}
	return r
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
