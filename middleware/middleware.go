// Package middleware wraps calls with caller-side policy: logging, timeouts,
// retries and rate limiting. The correlation engine itself does none of these.
package middleware

import (
	"context"

	"surreal-rpc/message"
)

// HandlerFunc performs one call: the request's Method and Params are sent,
// the correlated response is returned.
type HandlerFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares. Chain(A, B, C)(h) runs as A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
