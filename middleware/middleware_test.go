package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"surreal-rpc/message"
)

// echoHandler answers immediately with the request method as text.
func echoHandler(ctx context.Context, req *message.Request) (*message.Response, error) {
	return &message.Response{
		ID:     "r1",
		Result: message.Body{Kind: message.BodyText, Text: req.Method},
	}, nil
}

// slowHandler waits for ctx like a pending call does.
func slowHandler(ctx context.Context, req *message.Request) (*message.Response, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return echoHandler(ctx, req)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zaptest.NewLogger(t))(echoHandler)

	resp, err := handler(context.Background(), &message.Request{Method: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Result.Text)
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	_, err := handler(context.Background(), &message.Request{Method: "ping"})
	assert.NoError(t, err)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), &message.Request{Method: "query"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimit(t *testing.T) {
	// 1 per second, burst 2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := &message.Request{Method: "ping"}

	for i := 0; i < 2; i++ {
		_, err := handler(context.Background(), req)
		require.NoError(t, err, "request %d", i)
	}

	_, err := handler(context.Background(), req)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRateWaitHonoursContext(t *testing.T) {
	handler := RateWaitMiddleware(0.001, 1)(echoHandler)
	req := &message.Request{Method: "ping"}

	_, err := handler(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = handler(ctx, req)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRetryOnlyRetriesUnsentCalls(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.Request) (*message.Response, error) {
		if calls.Add(1) < 3 {
			return nil, ErrRateLimited
		}
		return echoHandler(ctx, req)
	}

	handler := RetryMiddleware(3, time.Millisecond, zap.NewNop())(flaky)
	resp, err := handler(context.Background(), &message.Request{Method: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Result.Text)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	failing := func(ctx context.Context, req *message.Request) (*message.Response, error) {
		calls.Add(1)
		return nil, &message.RPCError{Code: -32000, Message: "bad query"}
	}
	_, err = RetryMiddleware(3, time.Millisecond, zap.NewNop())(failing)(context.Background(), &message.Request{Method: "query"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) (*message.Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(mark("a"), mark("b"), LoggingMiddleware(zap.NewNop()), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	resp, err := handler(context.Background(), &message.Request{Method: "ping"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{"a", "b"}, order)
}
