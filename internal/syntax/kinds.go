package syntax

// exprKinds are the tree-sitter Rust node types that can denote an
// expression. Whether a given node actually is one depends on its position;
// the body source map is the authority, this set only prefilters.
var exprKinds = map[string]bool{
	"identifier":               true,
	"scoped_identifier":        true,
	"self":                     true,
	"generic_function":         true,
	"integer_literal":          true,
	"float_literal":            true,
	"string_literal":           true,
	"raw_string_literal":       true,
	"char_literal":             true,
	"boolean_literal":          true,
	"unit_expression":          true,
	"block":                    true,
	"unsafe_block":             true,
	"async_block":              true,
	"const_block":              true,
	"if_expression":            true,
	"match_expression":         true,
	"while_expression":         true,
	"loop_expression":          true,
	"for_expression":           true,
	"closure_expression":       true,
	"call_expression":          true,
	"field_expression":         true,
	"index_expression":         true,
	"struct_expression":        true,
	"tuple_expression":         true,
	"array_expression":         true,
	"parenthesized_expression": true,
	"reference_expression":     true,
	"unary_expression":         true,
	"binary_expression":        true,
	"assignment_expression":    true,
	"compound_assignment_expr": true,
	"range_expression":         true,
	"type_cast_expression":     true,
	"try_expression":           true,
	"await_expression":         true,
	"return_expression":        true,
	"break_expression":         true,
	"continue_expression":      true,
	"yield_expression":         true,
	"macro_invocation":         true,
}

var patternKinds = map[string]bool{
	"identifier":              true,
	"scoped_identifier":       true,
	"mut_pattern":             true,
	"ref_pattern":             true,
	"reference_pattern":       true,
	"tuple_pattern":           true,
	"slice_pattern":           true,
	"tuple_struct_pattern":    true,
	"struct_pattern":          true,
	"field_pattern":           true,
	"captured_pattern":        true,
	"or_pattern":              true,
	"range_pattern":           true,
	"remaining_field_pattern": true,
	"self_parameter":          true,
	"_":                       true,
	"integer_literal":         true,
	"string_literal":          true,
	"char_literal":            true,
	"boolean_literal":         true,
	"negative_literal":        true,
}

var pathKinds = map[string]bool{
	"identifier":             true,
	"scoped_identifier":      true,
	"type_identifier":        true,
	"scoped_type_identifier": true,
	"generic_type":           true,
	"self":                   true,
	"crate":                  true,
	"super":                  true,
}

// IsExpr reports whether kind can be an expression node.
func IsExpr(kind string) bool { return exprKinds[kind] }

// IsPattern reports whether kind can be a pattern node.
func IsPattern(kind string) bool { return patternKinds[kind] }

// IsPath reports whether kind can be lowered to a path.
func IsPath(kind string) bool { return pathKinds[kind] }

// IsComment reports whether kind is a comment; comments are extras and may
// appear between any two nodes.
func IsComment(kind string) bool {
	return kind == "line_comment" || kind == "block_comment"
}
