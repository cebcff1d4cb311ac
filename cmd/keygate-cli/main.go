package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/heysubinoy/keygate/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const defaultAddr = "localhost:3001"

type clientOptions struct {
	addr    string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "keygate-cli",
		Short:         "Read and write keygate entries over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := os.Getenv("KEYGATE_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "gRPC address of the keygate server ($KEYGATE_ADDR)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("WRITE_TOKEN"), "write token for set ($WRITE_TOKEN)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout")

	root.AddCommand(newGetCmd(opts), newSetCmd(opts), newHealthCmd(opts))
	return root
}

func (o *clientOptions) dial() (*grpc.ClientConn, error) {
	// passthrough resolver for a direct address connection
	conn, err := grpc.NewClient("passthrough:///"+o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

func newGetCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			value, err := api.NewEntriesClient(conn).Get(ctx, args[0])
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newSetCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "store value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			err = api.NewEntriesClient(conn).Set(ctx, opts.token, args[0], args[1])
			if status.Code(err) == codes.Unauthenticated {
				return fmt.Errorf("write rejected: check --token or WRITE_TOKEN")
			}
			if err != nil {
				return fmt.Errorf("set failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("set %q", args[0]))
			return nil
		},
	}
}

func newHealthCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "check that the server is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			return nil
		},
	}
}
