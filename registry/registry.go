package registry

import (
	"context"
	"errors"
)

var errStatic = errors.New("registry: static endpoints cannot be changed")

// Endpoint is one reachable RPC endpoint, e.g. ws://10.0.0.5:8000/rpc.
type Endpoint struct {
	URL     string `json:"url"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, url string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	Watch(ctx context.Context, service string) <-chan []Endpoint
}

// Static is a fixed endpoint list, for deployments without discovery.
type Static []Endpoint

func (s Static) Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error {
	return errStatic
}

func (s Static) Deregister(ctx context.Context, service string, url string) error {
	return errStatic
}

func (s Static) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	return append([]Endpoint(nil), s...), nil
}

// Watch emits the list once; it never changes.
func (s Static) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	ch <- append([]Endpoint(nil), s...)
	close(ch)
	return ch
}
