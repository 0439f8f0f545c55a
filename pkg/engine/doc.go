// Package engine implements the generate-execute controller for tabula.
// The Engine asks an oracle for code, runs it in the session's sandbox and
// feeds failures back to the oracle until the code succeeds or the retry
// ceiling is reached. Oracle failures end the turn; execution failures are
// data that drive the next attempt.
package engine
