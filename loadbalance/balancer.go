// Package loadbalance picks which endpoint a new connection goes to.
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  endpoints with different capacity
package loadbalance

import (
	"errors"
	"fmt"

	"surreal-rpc/registry"
)

var ErrNoEndpoints = errors.New("no endpoints available")

// Balancer selects one endpoint from the available list. Implementations must be goroutine-safe.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/config).
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
