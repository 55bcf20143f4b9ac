// Package client is the caller-facing side of surreal-rpc: it dials an endpoint,
// runs calls through a middleware chain and decodes query results.
package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"surreal-rpc/message"
	"surreal-rpc/middleware"
	"surreal-rpc/protocol"
	"surreal-rpc/transport"
)

type options struct {
	logger        *zap.Logger
	settings      *protocol.Settings
	middlewares   []middleware.Middleware
	transportOpts []transport.Option
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithSettings(settings *protocol.Settings) Option {
	return func(o *options) { o.settings = settings }
}

// WithMiddleware appends mws to the chain Send runs through. The first one is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithTransportOptions passes extra options to the underlying transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transportOpts = append(o.transportOpts, opts...) }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop(), settings: protocol.DefaultSettings()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type Client struct {
	endpoint  string
	transport *transport.ClientTransport
	handler   middleware.HandlerFunc
	logger    *zap.Logger
}

// Connect dials url and returns a client using the new connection.
func Connect(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	conn, err := protocol.Dial(ctx, url, o.settings)
	if err != nil {
		return nil, err
	}
	o.logger.Info("connected", zap.String("endpoint", url))
	return newClient(conn, url, o), nil
}

// New wraps an already established connection.
func New(conn protocol.Conn, opts ...Option) *Client {
	return newClient(conn, "", buildOptions(opts))
}

func newClient(conn protocol.Conn, endpoint string, o *options) *Client {
	topts := append([]transport.Option{
		transport.WithLogger(o.logger),
		transport.WithSettings(o.settings),
	}, o.transportOpts...)

	c := &Client{
		endpoint:  endpoint,
		transport: transport.NewClientTransport(conn, topts...),
		logger:    o.logger,
	}
	c.handler = middleware.Chain(o.middlewares...)(c.roundTrip)
	return c
}

func (c *Client) roundTrip(ctx context.Context, req *message.Request) (*message.Response, error) {
	return c.transport.Call(ctx, req.Method, req.Params)
}

// Send calls method with params through the middleware chain and waits for the response.
// An error envelope is returned as a *message.RPCError together with the response.
func (c *Client) Send(ctx context.Context, method string, params any) (*message.Response, error) {
	return c.handler(ctx, &message.Request{Method: method, Params: params})
}

// Go sends the request and returns without waiting. Middleware is not applied.
func (c *Client) Go(ctx context.Context, method string, params any) (*transport.Call, error) {
	return c.transport.Send(ctx, method, params)
}

// Signin authenticates the session.
func (c *Client) Signin(ctx context.Context, user, pass string) error {
	_, err := c.Send(ctx, "signin", []any{map[string]string{"user": user, "pass": pass}})
	if err != nil {
		return fmt.Errorf("signin as %s: %w", user, err)
	}
	return nil
}

// Use selects the namespace and database of the session.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	_, err := c.Send(ctx, "use", []any{namespace, database})
	if err != nil {
		return fmt.Errorf("use %s/%s: %w", namespace, database, err)
	}
	return nil
}

// Query runs a query and returns the whole envelope. Failed statements are not
// reported as an error here; see message.Response.Err.
func (c *Client) Query(ctx context.Context, text string, params any) (*message.Response, error) {
	return c.Send(ctx, "query", []any{text, params})
}

// Endpoint returns the URL the client dialed, empty for New.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Pending returns the number of calls still waiting for a response.
func (c *Client) Pending() int {
	return c.transport.Pending()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.transport.Done()
}

// Close closes the connection. Calls still pending fail with transport.ErrAbandoned.
func (c *Client) Close() error {
	return c.transport.Close()
}
