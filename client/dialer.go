package client

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"surreal-rpc/loadbalance"
	"surreal-rpc/registry"
)

// Dialer connects to one endpoint of a service found through a registry.
type Dialer struct {
	Registry registry.Registry
	Balancer loadbalance.Balancer // round robin when nil
	Service  string
	Options  []Option
}

// Dial picks endpoints with the balancer until one accepts the connection.
// Each endpoint is tried at most once.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	endpoints, err := d.Registry.Discover(ctx, d.Service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", d.Service, err)
	}
	balancer := d.Balancer
	if balancer == nil {
		balancer = &loadbalance.RoundRobinBalancer{}
	}
	logger := buildOptions(d.Options).logger

	var errs []error
	for len(endpoints) > 0 {
		ep, err := balancer.Pick(endpoints)
		if err != nil {
			errs = append(errs, err)
			break
		}
		c, err := Connect(ctx, ep.URL, d.Options...)
		if err == nil {
			return c, nil
		}
		logger.Warn("endpoint unreachable", zap.String("service", d.Service), zap.String("endpoint", ep.URL), zap.Error(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		url := ep.URL
		endpoints = slices.DeleteFunc(endpoints, func(e registry.Endpoint) bool { return e.URL == url })
	}
	if len(errs) == 0 {
		errs = append(errs, loadbalance.ErrNoEndpoints)
	}
	return nil, fmt.Errorf("dial %s: %w", d.Service, errors.Join(errs...))
}
