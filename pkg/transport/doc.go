// Package transport defines the handler interfaces and middleware chain for
// the tabula HTTP transport layer.
//
// The transport layer bridges external clients and the session manager. It
// decodes requests into the types defined in pkg/api, dispatches them, and
// writes JSON replies or the {"error": {...}} envelope.
//
// # Handler Interfaces
//
//   - Asker answers one question within a session. It is the hot path and
//     the only operation wrapped by middleware.
//   - SessionService covers session lifecycle, dataset upload, turn
//     history and artifact lookup.
//
// # Middleware
//
// The middleware chain wraps Asker with cross-cutting concerns. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
//
// # Cancellation
//
// SessionService.CancelTurn aborts the turn a session is running, so a
// client can stop a long oracle call. Turns still waiting for the session
// are not affected.
package transport
