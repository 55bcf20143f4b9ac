package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"surreal-rpc/message"
)

type QueryOptions struct {
	*RootOptions
	Params string
	Raw    bool
}

func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a query and print its statements",
		Long: `Run a query and print its statements.

Example:
  surrealctl query 'SELECT * FROM account WHERE name = $name' --params '{"name":"x"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Params, "params", "p", "{}", "query parameters as a JSON object")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print the result member verbatim")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, text string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(opts.Params), &params); err != nil {
		return fmt.Errorf("invalid --params JSON: %w", err)
	}

	ctx, cancel := commandContext(cmd, 0)
	defer cancel()
	c, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Query(ctx, text, params)
	if err != nil {
		return err
	}
	if opts.Raw {
		return printJSON(cmd.OutOrStdout(), resp.Result.Raw)
	}
	if err := printStatements(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	return resp.Err()
}

func printStatements(w io.Writer, resp *message.Response) error {
	if resp.Result.Kind != message.BodyStatements {
		return printJSON(w, resp.Result.Raw)
	}
	for i, st := range resp.Result.Statements {
		fmt.Fprintf(w, "-- statement %d: %s (%s)\n", i+1, st.Status, st.Time)
		if !st.OK() {
			fmt.Fprintln(w, st.Detail)
			continue
		}
		rows, err := json.Marshal(st.All())
		if err != nil {
			return err
		}
		if err := printJSON(w, rows); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

type SendOptions struct {
	*RootOptions
}

func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "send <method> [params]",
		Short: "Call any method with JSON params and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("invalid params JSON")
				}
				params = json.RawMessage(args[1])
			}

			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Send(ctx, args[0], params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Result.Raw)
		},
	}
}
