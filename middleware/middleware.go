// Package middleware wraps client calls with cross-cutting behaviour.
//
// The innermost handler performs the exchange; middlewares are layered around it in
// the onion model:
//
//	Chain(A, B, C)(call) → A(B(C(call)))
//	A.before → B.before → C.before → call → C.after → B.after → A.after
package middleware

import (
	"context"

	"transformator/message"
)

// HandlerFunc performs one call and returns its payload or a single error.
type HandlerFunc func(ctx context.Context, req *message.Request) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares so that the first one listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
