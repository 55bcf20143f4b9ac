package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"surreal-rpc/registry"
	"surreal-rpc/server"
)

type MockOptions struct {
	*RootOptions
	Addr      string
	Advertise string
	Weight    int
	TTL       int64
}

func NewMockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve a mock endpoint that echoes query parameters",
		Long: `Serve a mock endpoint on ws://<addr>/rpc.

signin accepts the credentials from the auth config section (anyone when unset),
every query statement returns its parameters as its single row, and a statement
starting with THROW fails with the rest of its text as detail.

With discovery configured and --advertise set, the endpoint registers itself in
etcd and deregisters on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMock(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&opts.Advertise, "advertise", "", "URL to register in etcd, e.g. ws://10.0.0.5:8000/rpc")
	cmd.Flags().IntVar(&opts.Weight, "weight", 1, "load balancing weight to register")
	cmd.Flags().Int64Var(&opts.TTL, "ttl", 10, "registration lease TTL in seconds")

	return cmd
}

func runMock(cmd *cobra.Command, opts *MockOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(opts.Logger)
	echo := &server.EchoService{}
	if auth := opts.Config.Auth; auth.User != "" {
		echo.Users = map[string]string{auth.User: auth.Pass}
	}
	if err := srv.Register(echo); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	if opts.Advertise != "" && len(opts.Config.Discovery.Etcd) > 0 {
		reg, err := registry.NewEtcdRegistry(opts.Config.Discovery.Etcd, opts.Config.Discovery.DialTimeout)
		if err != nil {
			srv.Shutdown(time.Second)
			return err
		}
		defer reg.Close()
		endpoint := registry.Endpoint{URL: opts.Advertise, Weight: opts.Weight}
		if err := srv.Announce(ctx, reg, opts.Config.Discovery.Service, endpoint, opts.TTL); err != nil {
			srv.Shutdown(time.Second)
			return err
		}
		opts.Logger.Info("endpoint announced", zap.String("service", opts.Config.Discovery.Service), zap.String("url", opts.Advertise))
	}

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	opts.Logger.Info("shutting down mock endpoint")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return <-served
}
