package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/heysubinoy/keygate/internal/api"
	"github.com/heysubinoy/keygate/internal/store"
	"github.com/heysubinoy/keygate/pkg/config"
	"github.com/heysubinoy/keygate/pkg/kv"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const (
	openTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "keygate",
		Short:        "Key-value gateway with token-gated writes",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_FILE")
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "keygate",
		Level: hclog.LevelFromString(cfg.LogLevel),
		Color: hclog.AutoColor,
	})

	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	m, err := metrics.New(metrics.DefaultConfig("keygate"), sink)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	backend, err := store.Open(openCtx, cfg.DBURL, store.Options{
		Table:  cfg.TableName,
		Logger: logger.Named("store"),
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	instrumented := store.NewInstrumentedStore(backend, m)
	var handle kv.Backend = instrumented
	if cfg.CacheSize > 0 {
		if handle, err = store.NewCachedStore(instrumented, cfg.CacheSize); err != nil {
			instrumented.Close()
			return err
		}
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	srv := api.NewServer(handle, cfg.WriteToken, api.Options{
		MaxValueBytes: cfg.MaxValueBytes,
		Metrics:       api.MetricsHandler(instrumented, sink),
		Logger:        logger.Named("http"),
	})

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
	}()
	logger.Info("listening", "url", "http://"+ln.Addr().String(), "store", backendName(backend))

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcLn, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpServer.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(api.UnaryLogger(logger.Named("grpc"))))
		api.RegisterGRPC(grpcServer, srv)
		go func() {
			if err := grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
		logger.Info("grpc listening", "addr", grpcLn.Addr().String())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return serveErr
}

func backendName(b kv.Backend) string {
	return fmt.Sprintf("%T", b)
}
