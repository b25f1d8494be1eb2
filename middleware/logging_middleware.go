package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"transformator/message"
	"transformator/rpcerr"
)

// LoggingMiddleware logs every call with its duration; failures are logged at warn with
// their error kind.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)

			fields := []zap.Field{
				zap.String("operation", req.Operation),
				zap.Int("input_bytes", len(req.Input)),
				zap.Duration("duration", duration),
			}
			if err != nil {
				fields = append(fields, zap.Stringer("kind", rpcerr.KindOf(err)), zap.Error(err))
				logger.Warn("call failed", fields...)
				return nil, err
			}
			logger.Debug("call completed", fields...)
			return result, nil
		}
	}
}
