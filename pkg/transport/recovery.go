package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/tabula/pkg/api"
)

// Recovery returns middleware that converts a panic while answering into a
// server error. The panic value and stack are logged, not returned.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Asker) Asker {
		return AskerFunc(func(ctx context.Context, sessionID string, req *api.ChatRequest) (resp *api.ChatResponse, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic while answering",
						"session_id", sessionID,
						"request_id", RequestIDFromContext(ctx),
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					resp = nil
					retErr = api.NewServerError("internal server error")
				}
			}()
			return next.Ask(ctx, sessionID, req)
		})
	}
}
