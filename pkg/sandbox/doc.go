// Package sandbox runs generated JavaScript fragments against a persistent
// per-session runtime.
//
// A Sandbox owns one goja runtime whose global object is the session's
// variable namespace. Fragments executed one after another see each other's
// top-level var bindings, so a value computed in one question can be reused
// in the next. The loaded dataset is bound to the global df.
//
// Execute never returns an error. Every failure inside the fragment, from a
// syntax error to a timeout, is reported as a failed Result, and the
// runtime stays usable for the next fragment. Mutations made before a
// failure are kept.
//
// The sandbox is not a security boundary. Fragments may read and write
// files relative to the work directory.
package sandbox
