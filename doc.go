// Package scopebind answers semantic questions about positions in Rust
// source: what a name means where it is written, which names are visible,
// what type inference recorded for an expression, and how a macro call
// expands.
//
// # Pipeline
//
// scopebind operates in two phases:
//
//  1. Index: each source file is parsed with tree-sitter and lowered into
//     SQLite: definitions, module items, generic parameters, and for every
//     function, const and static its expressions, patterns and expression
//     scope tree.
//
//  2. Facts: a YAML document supplies what an external type checker and
//     macro expander know: expression and pattern types, method, field and
//     variant resolutions, trait impls, deref rules, extern crates,
//     preludes and macro expansions. Facts are optional; positions without
//     them still resolve names lexically.
//
// # Usage
//
//	e, err := scopebind.New("scopebind.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx, "path/to/crate")
//	err = e.LoadFacts(ctx, "facts.yaml")
//
//	q, err := e.Query(ctx)
//	res, err := q.ResolveAt(ctx, "src/main.rs", 120)
//
// # Analyzers
//
// A [SourceAnalyzer] is built for one syntax node with [Analyze] or
// [AnalyzeAt]. It finds the innermost enclosing item that owns a
// resolution environment (function, const or static body, struct or enum,
// inline module, or the file itself) and captures that environment. Inside
// a body the expression scope comes from the innermost enclosing
// expression, or with [AnalyzeAt] from the byte offset.
//
// Analyzers read from an immutable [Snapshot]. Indexing after a snapshot was
// taken does not affect it.
package scopebind
