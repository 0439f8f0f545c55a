package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/tabula/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// question with the session, request ID, duration and turn outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Asker) Asker {
		return AskerFunc(func(ctx context.Context, sessionID string, req *api.ChatRequest) (*api.ChatResponse, error) {
			start := time.Now()

			resp, err := next.Ask(ctx, sessionID, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("session_id", sessionID),
				slog.Int("message_bytes", len(req.Message)),
				slog.Duration("duration", time.Since(start)),
			}
			if resp != nil {
				attrs = append(attrs,
					slog.String("turn_id", resp.TurnID),
					slog.String("status", string(resp.Status)),
					slog.Int("attempts", resp.Attempts),
				)
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
			}
			return resp, err
		})
	}
}
