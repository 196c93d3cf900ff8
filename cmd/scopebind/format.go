package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/scopebind"
)

// formatLocationsText formats locations as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []scopebind.Location) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

func locationText(loc *scopebind.Location) string {
	if loc == nil {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.StartLine, loc.StartCol)
}

// formatNamesText formats visible names as aligned columns.
func formatNamesText(w io.Writer, names []scopebind.Name) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tTARGET\tLOCATION")
	for _, n := range names {
		target := n.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Kind, target, locationText(n.Def))
	}
	tw.Flush()
}

func formatResolutionText(w io.Writer, res *scopebind.Resolution) {
	switch {
	case res.Param != "":
		fmt.Fprintf(w, "%s %s of %s\n", res.Kind, res.Param, res.Def)
	case res.Def != "":
		fmt.Fprintf(w, "%s %s at %s\n", res.Kind, res.Def, locationText(res.Location))
	default:
		fmt.Fprintf(w, "%s at %s\n", res.Kind, locationText(res.Location))
	}
}

func formatScopeText(w io.Writer, info *scopebind.ScopeInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "node:\t%s\n", info.Node)
	fmt.Fprintf(tw, "module:\t%s\n", orDash(info.Module))
	fmt.Fprintf(tw, "generic owner:\t%s\n", orDash(info.Generic))
	fmt.Fprintf(tw, "body owner:\t%s\n", orDash(info.BodyOwner))
	if info.Scope != 0 {
		fmt.Fprintf(tw, "scope:\t%d\n", info.Scope)
	}
	tw.Flush()
}

func formatExpansionText(w io.Writer, exp *scopebind.ExpansionResult) {
	fmt.Fprintf(w, "%s! call %d (%s)\n", exp.Macro, exp.Call, exp.Fragment)
	if exp.Mapped != nil {
		fmt.Fprintf(w, "token maps to %d..%d\n", exp.Mapped.Start, exp.Mapped.End)
	}
	if exp.Text != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimRight(exp.Text, "\n"))
	}
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\n", f.ID, f.Path)
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. Queries with no answer print nothing.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []scopebind.Location:
		formatLocationsText(w, v)
	case []scopebind.Name:
		formatNamesText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case *scopebind.NodeInfo:
		if v != nil {
			fmt.Fprintf(w, "%s %d..%d %q\n", v.Kind, v.Range.Start, v.Range.End, v.Text)
		}
	case *scopebind.ScopeInfo:
		if v != nil {
			formatScopeText(w, v)
		}
	case *scopebind.Resolution:
		if v != nil {
			formatResolutionText(w, v)
		}
	case *scopebind.TypeInfo:
		if v != nil {
			fmt.Fprintf(w, "%s (%s %d..%d)\n", v.Type, v.Node, v.Range.Start, v.Range.End)
		}
	case *scopebind.ExpansionResult:
		if v != nil {
			formatExpansionText(w, v)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
