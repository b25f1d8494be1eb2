package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"transformator/message"
	"transformator/rpcerr"
)

// RetryMiddleware retries calls that failed with a TransportError, backing off
// exponentially from baseDelay. Service, protocol and config errors return immediately.
//
// The client never installs it on its own: retrying is the caller's decision.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (any, error) {
			result, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !errors.Is(err, rpcerr.ErrTransport) {
					return result, err
				}
				if ctx.Err() != nil {
					return nil, err
				}
				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying call",
					zap.String("operation", req.Operation),
					zap.Int("attempt", i+1),
					zap.Duration("delay", delay),
					zap.Error(err))

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				result, err = next(ctx, req)
			}
			return result, err
		}
	}
}
