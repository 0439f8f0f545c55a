package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/tabula/pkg/api"
)

// RequestID returns middleware that assigns a request ID to each call. An
// ID already in the context (from the X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next Asker) Asker {
		return AskerFunc(func(ctx context.Context, sessionID string, req *api.ChatRequest) (*api.ChatResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Ask(ctx, sessionID, req)
		})
	}
}
