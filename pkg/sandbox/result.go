package sandbox

import "time"

// Result is the tagged outcome of executing one fragment.
type Result struct {
	// OK is true when the fragment ran to completion.
	OK bool

	// Output holds everything the fragment printed. Only set when OK.
	Output string

	// Error describes why the fragment failed. Only set when not OK.
	Error string

	Duration time.Duration
}

// Success builds a successful Result.
func Success(output string) Result {
	return Result{OK: true, Output: output}
}

// Failure builds a failed Result.
func Failure(msg string) Result {
	return Result{Error: msg}
}

// LoadResult is the outcome of binding a dataset into the sandbox.
type LoadResult struct {
	Loaded  bool
	Message string
	Rows    int
	Columns int
}
