package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"surreal-rpc/loadbalance"
	"surreal-rpc/middleware"
	"surreal-rpc/registry"
	"surreal-rpc/server"
)

func etcdRegistry(t *testing.T) *registry.EtcdRegistry {
	t.Helper()
	reg, err := registry.NewEtcdRegistry([]string{"localhost:2379"}, time.Second)
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

// Client → Registry(etcd) → Balancer → WebSocket → Server → EchoService
func TestFullIntegrationWithEtcd(t *testing.T) {
	reg := etcdRegistry(t)
	service := "surreal-" + uuid.NewString()

	srv := server.NewServer(zaptest.NewLogger(t))
	require.NoError(t, srv.Register(&server.EchoService{}))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	url := "ws://" + listener.Addr().String() + "/rpc"
	ctx := testContext(t)
	require.NoError(t, srv.Announce(ctx, reg, service, registry.Endpoint{URL: url, Weight: 10}, 10))

	d := &Dialer{
		Registry: reg,
		Balancer: &loadbalance.WeightedRandomBalancer{},
		Service:  service,
		Options: []Option{
			WithLogger(zaptest.NewLogger(t)),
			WithMiddleware(middleware.LoggingMiddleware(zaptest.NewLogger(t))),
		},
	}
	c, err := d.Dial(ctx)
	require.NoError(t, err)
	assert.Equal(t, url, c.Endpoint())

	require.NoError(t, c.Use(ctx, "test", "test"))
	got, err := FindOne[account](ctx, c, "SELECT * FROM account:one", account{ID: "account:one", Name: "one"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "one", got.Name)
	require.NoError(t, c.Close())

	require.NoError(t, srv.Shutdown(time.Second))
	require.NoError(t, <-served)

	endpoints, err := reg.Discover(ctx, service)
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}
