// Package oracle adapts a chat provider into a code generator.
//
// The oracle prepends the analysis instructions to the transcript, asks
// the provider for a reply and extracts the first fenced code block from
// it. It makes no guarantee that the returned code is correct; the engine
// executes it and feeds failures back.
package oracle
