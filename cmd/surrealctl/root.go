package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"surreal-rpc/client"
	"surreal-rpc/config"
	"surreal-rpc/loadbalance"
	"surreal-rpc/logs"
	"surreal-rpc/middleware"
	"surreal-rpc/registry"
)

// RootOptions holds global flags and what PersistentPreRunE derives from them.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	Config *config.Config
	Logger *zap.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "surrealctl",
		Short:         "Client and tooling for SurrealDB-style RPC endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			logger, err := logs.New(cfg.Log)
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				opts.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewMockCommand(opts))
	cmd.AddCommand(NewEndpointsCommand(opts))

	return cmd
}

// registry returns the etcd registry when discovery is configured, else the static endpoint list.
// The returned func releases it.
func (o *RootOptions) registry() (registry.Registry, func(), error) {
	d := o.Config.Discovery
	if len(d.Etcd) == 0 {
		static := make(registry.Static, 0, len(o.Config.Endpoints))
		for _, url := range o.Config.Endpoints {
			static = append(static, registry.Endpoint{URL: url})
		}
		return static, func() {}, nil
	}
	reg, err := registry.NewEtcdRegistry(d.Etcd, d.DialTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect etcd: %w", err)
	}
	return reg, func() { reg.Close() }, nil
}

// middlewares builds the call policy from the config. Logging is outermost.
func (o *RootOptions) middlewares() []middleware.Middleware {
	call := o.Config.Call
	mws := []middleware.Middleware{middleware.LoggingMiddleware(o.Logger)}
	if call.RateLimit > 0 {
		if call.Retries > 0 {
			mws = append(mws,
				middleware.RetryMiddleware(call.Retries, call.RetryDelay, o.Logger),
				middleware.RateLimitMiddleware(call.RateLimit, call.RateBurst))
		} else {
			mws = append(mws, middleware.RateWaitMiddleware(call.RateLimit, call.RateBurst))
		}
	}
	if call.Timeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(call.Timeout))
	}
	return mws
}

// connect dials an endpoint, then signs in and selects the namespace when configured.
func (o *RootOptions) connect(ctx context.Context) (*client.Client, error) {
	reg, release, err := o.registry()
	if err != nil {
		return nil, err
	}
	defer release()

	balancer, err := loadbalance.New(o.Config.Discovery.Balancer)
	if err != nil {
		return nil, err
	}
	dialer := &client.Dialer{
		Registry: reg,
		Balancer: balancer,
		Service:  o.Config.Discovery.Service,
		Options: []client.Option{
			client.WithLogger(o.Logger),
			client.WithSettings(o.Config.Settings()),
			client.WithMiddleware(o.middlewares()...),
		},
	}
	c, err := dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	if auth := o.Config.Auth; auth.User != "" {
		if err := c.Signin(ctx, auth.User, auth.Pass); err != nil {
			c.Close()
			return nil, err
		}
	}
	if o.Config.Namespace != "" {
		if err := c.Use(ctx, o.Config.Namespace, o.Config.Database); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
