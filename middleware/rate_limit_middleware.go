package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"transformator/message"
	"transformator/rpcerr"
)

// RateLimitMiddleware caps the call rate with a token bucket. Calls over the limit are
// rejected locally with a TransportError instead of queueing.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (any, error) {
			if !limiter.Allow() {
				return nil, rpcerr.Newf(rpcerr.KindTransport, req.Operation, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
