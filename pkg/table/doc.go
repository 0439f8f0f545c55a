// Package table provides the in-memory tabular value bound to the sandbox
// dataset name. A Table is an ordered list of named columns over rows of
// dynamically typed cells. Each cell is one of nil (missing), float64,
// string, or bool.
//
// Tables are immutable: every operation returns a new Table and never
// modifies its receiver, so a value handed to executed code cannot be
// corrupted by a half-finished operation.
package table
