package middleware

import (
	"context"
	"time"

	"transformator/message"
	"transformator/rpcerr"
)

// TimeoutMiddleware bounds a whole call. The shortened context reaches the transport,
// which aborts pending socket I/O when it expires.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, req)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, rpcerr.New(rpcerr.KindTransport, req.Operation, ctx.Err())
			}
		}
	}
}
