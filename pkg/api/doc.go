// Package api defines the core types shared by every tabula component.
//
// It covers the conversation transcript exchanged with the code oracle,
// the records of completed turns, the wire shapes of the HTTP surface,
// structured error types, and ID generation.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O.
//
// Core types:
//   - [Message]: One transcript entry tagged with a [Role]
//   - [TurnRecord]: The audit trail of one question's resolution
//   - [ChatRequest] / [ChatResponse]: Chat surface request and reply
//   - [APIError]: Structured error with type, code, param, and message
package api
