package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"surreal-rpc/registry"
)

var errNoDiscovery = errors.New("discovery.etcd is not configured")

type EndpointsOptions struct {
	*RootOptions
	Weight  int
	Version string
	TTL     int64
}

func NewEndpointsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EndpointsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List and manage the endpoints registered for the service",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List endpoints of the configured service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := opts.registry()
			if err != nil {
				return err
			}
			defer release()

			endpoints, err := reg.Discover(cmd.Context(), opts.Config.Discovery.Service)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tWEIGHT\tVERSION")
			for _, ep := range endpoints {
				fmt.Fprintf(w, "%s\t%d\t%s\n", ep.URL, ep.Weight, ep.Version)
			}
			return w.Flush()
		},
	}

	register := &cobra.Command{
		Use:   "register <url>",
		Short: "Register an endpoint and keep its lease alive until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.etcd()
			if err != nil {
				return err
			}
			defer reg.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			service := opts.Config.Discovery.Service
			endpoint := registry.Endpoint{URL: args[0], Weight: opts.Weight, Version: opts.Version}
			if err := reg.Register(ctx, service, endpoint, opts.TTL); err != nil {
				return err
			}
			opts.Logger.Info("endpoint registered", zap.String("service", service), zap.String("url", args[0]))
			<-ctx.Done()
			// the lease would expire by itself; removing the key makes it immediate
			return reg.Deregister(cmd.Context(), service, args[0])
		},
	}
	register.Flags().IntVar(&opts.Weight, "weight", 1, "load balancing weight")
	register.Flags().StringVar(&opts.Version, "version", "", "version label")
	register.Flags().Int64Var(&opts.TTL, "ttl", 10, "lease TTL in seconds")

	deregister := &cobra.Command{
		Use:   "deregister <url>",
		Short: "Remove an endpoint registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.etcd()
			if err != nil {
				return err
			}
			defer reg.Close()
			return reg.Deregister(cmd.Context(), opts.Config.Discovery.Service, args[0])
		},
	}

	cmd.AddCommand(list, register, deregister)
	return cmd
}

func (o *EndpointsOptions) etcd() (*registry.EtcdRegistry, error) {
	d := o.Config.Discovery
	if len(d.Etcd) == 0 {
		return nil, errNoDiscovery
	}
	return registry.NewEtcdRegistry(d.Etcd, d.DialTimeout)
}
