// Package registry provides endpoint discovery, with an etcd-based implementation.
//
// Endpoints of a service are stored as:
//
//	Key:   /surreal-rpc/{service}/{url}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL-based leases: if the announcing process dies, the lease expires
// and the entry is removed with it.
package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/surreal-rpc/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

func serviceKey(service string) string {
	return keyPrefix + service + "/"
}

// Register announces endpoint under service with a TTL lease that is kept alive
// for as long as the client stays open.
func (r *EtcdRegistry) Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(endpoint)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, serviceKey(service)+endpoint.URL, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// KeepAlive outlives ctx on purpose: the lease lives until the client closes
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}

	// drain responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, service string, url string) error {
	_, err := r.client.Delete(ctx, serviceKey(service)+url)
	return err
}

// Watch emits the full endpoint list of service every time it changes, until ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, serviceKey(service), clientv3.WithPrefix())
		for range watchChan {
			// re-fetch the whole list rather than applying individual events
			endpoints, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every endpoint currently registered under service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, serviceKey(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var endpoint Endpoint
		if err := json.Unmarshal(kv.Value, &endpoint); err != nil {
			continue // skip malformed entries
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
