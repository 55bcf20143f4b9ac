package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surreal-rpc/message"
)

var ErrTimeout = errors.New("request timed out")

// TimeOutMiddleware bounds each call. The handler below sees the deadline through ctx,
// so a call that is still pending when it expires is de-registered rather than leaked.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := next(ctx, req)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return resp, fmt.Errorf("%s after %s: %w", req.Method, timeout, errors.Join(ErrTimeout, err))
			}
			return resp, err
		}
	}
}
