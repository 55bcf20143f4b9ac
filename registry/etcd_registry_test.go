package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegistry connects to a local etcd, skipping the test when none is running.
func newTestRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, time.Second)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "probe"); err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	const service = "surreal-test"

	ep1 := Endpoint{URL: "ws://127.0.0.1:8001/rpc", Weight: 10, Version: "1.0"}
	ep2 := Endpoint{URL: "ws://127.0.0.1:8002/rpc", Weight: 5, Version: "1.0"}

	require.NoError(t, reg.Register(ctx, service, ep1, 10))
	require.NoError(t, reg.Register(ctx, service, ep2, 10))

	endpoints, err := reg.Discover(ctx, service)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Endpoint{ep1, ep2}, endpoints)

	require.NoError(t, reg.Deregister(ctx, service, ep1.URL))

	endpoints, err = reg.Discover(ctx, service)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, ep2.URL, endpoints[0].URL)

	require.NoError(t, reg.Deregister(ctx, service, ep2.URL))
}

func TestWatch(t *testing.T) {
	reg := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	const service = "surreal-watch"

	updates := reg.Watch(ctx, service)
	ep := Endpoint{URL: "ws://127.0.0.1:8003/rpc", Weight: 1}
	require.NoError(t, reg.Register(ctx, service, ep, 10))
	t.Cleanup(func() { reg.Deregister(context.Background(), service, ep.URL) })

	select {
	case endpoints := <-updates:
		assert.Contains(t, endpoints, ep)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}

func TestStatic(t *testing.T) {
	s := Static{{URL: "ws://a/rpc"}, {URL: "ws://b/rpc"}}

	endpoints, err := s.Discover(context.Background(), "any")
	require.NoError(t, err)
	assert.Len(t, endpoints, 2)

	assert.Error(t, s.Register(context.Background(), "any", Endpoint{}, 1))
	assert.Error(t, s.Deregister(context.Background(), "any", "ws://a/rpc"))

	got := <-s.Watch(context.Background(), "any")
	assert.Equal(t, endpoints, got)
}
