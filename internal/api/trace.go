package api

import (
	"context"
	"log/slog"
	"time"
)

// WithTrace logs every network send at debug level and reports it to hooks.
// It belongs innermost so it sees the request exactly as sent. Header values
// are never logged.
func WithTrace(logger *slog.Logger, hooks Hooks) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hooks = hooksOrNop(hooks)
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Do(ctx, req)
			elapsed := time.Since(start)

			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.String("request_id", req.ID),
				slog.Int("attempt", attempt(req)),
				slog.Bool("authenticated", BearerToken(req) != ""),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				logger.DebugContext(ctx, "api request failed", append(attrs, slog.String("error", err.Error()))...)
			} else {
				logger.DebugContext(ctx, "api request", append(attrs, slog.Int("status", resp.StatusCode))...)
			}

			hooks.OnRequest(req, resp, err, elapsed)
			return resp, err
		})
	}
}

func attempt(req *Request) int {
	if req.Retried {
		return 2
	}
	return 1
}
