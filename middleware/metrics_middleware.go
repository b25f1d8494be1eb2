package middleware

import (
	"context"
	"time"

	"transformator/message"
	"transformator/rpcerr"
	"transformator/telemetry"
)

// MetricsMiddleware records each call's latency and outcome. The outcome label is
// "success" or the error kind ("transport", "service", ...).
func MetricsMiddleware(m *telemetry.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)
			outcome := "success"
			if err != nil {
				outcome = rpcerr.KindOf(err).String()
			}
			m.Observe(req.Operation, outcome, time.Since(start))
			return result, err
		}
	}
}
