package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIFile is a JSON-friendly file representation.
type CLIFile struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}
