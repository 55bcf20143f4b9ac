package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"surreal-rpc/message"
)

// Retryable reports whether a failed call can be repeated safely. Only failures
// that happened before the request reached the connection qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryMiddleware repeats calls rejected before they were sent, with exponential backoff.
// Place it outside RateLimitMiddleware in the chain.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !Retryable(err) {
					return resp, err
				}
				logger.Debug("retrying call",
					zap.String("method", req.Method),
					zap.Int("attempt", i+1),
					zap.Error(err))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
