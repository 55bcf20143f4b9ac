package transport

import (
	"context"

	"surreal-rpc/message"
)

// Call is the completion handle of one outstanding request.
// It is resolved exactly once, by the dispatcher.
type Call struct {
	ID     string
	Method string

	t    *ClientTransport
	done chan struct{}
	resp *message.Response
	err  error
}

func newCall(t *ClientTransport, id string, method string) *Call {
	return &Call{
		ID:     id,
		Method: method,
		t:      t,
		done:   make(chan struct{}),
	}
}

// resolve is only called by the dispatcher, after the call left the pending table.
func (c *Call) resolve(resp *message.Response, err error) {
	c.resp = resp
	c.err = err
	close(c.done)
}

// Done is closed once the call is resolved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the response arrives or ctx ends. When ctx ends first the call
// is de-registered and ctx.Err() is returned.
//
// An application-level failure is returned as a *message.RPCError together with the response.
func (c *Call) Wait(ctx context.Context) (*message.Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		select {
		case <-c.done:
			return c.resp, c.err
		default:
		}
		c.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel removes the call from the pending table. A response arriving later is dropped.
func (c *Call) Cancel() {
	select {
	case c.t.cancel <- c.ID:
	case <-c.done:
	case <-c.t.done:
	}
}
