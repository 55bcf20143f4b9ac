package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"surreal-rpc/message"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware rejects calls beyond a token bucket of r calls per second with the given burst.
// Rejected calls never reach the connection.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}

// RateWaitMiddleware delays calls until the token bucket allows them, or ctx ends.
func RateWaitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, errors.Join(ErrRateLimited, err)
			}
			return next(ctx, req)
		}
	}
}
