package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/psaab/bigsh/pkg/api"
	"github.com/psaab/bigsh/pkg/datastore"
)

type serveFlags struct {
	grpcListen  string
	httpsListen string
	tlsDir      string
	tokens      []string
}

func newServeCmd(a *app) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the running config over HTTP and the datastore over gRPC",
		Long: `Serve the running-config API on http_addr. With the file transport the
data file is also served on the datastore REST endpoints and, with
--grpc-listen, on the gRPC datastore service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&a.flags.HTTPAddr, "listen", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&f.grpcListen, "grpc-listen", "", "gRPC datastore listen address")
	cmd.Flags().StringVar(&f.httpsListen, "https-listen", "", "HTTPS listen address with a self-signed certificate")
	cmd.Flags().StringVar(&f.tlsDir, "tls-dir", "", "Directory keeping the self-signed certificate")
	cmd.Flags().StringSliceVar(&f.tokens, "api-token", nil, "Bearer token accepted by the API (repeatable)")
	return cmd
}

func (a *app) serve(parent context.Context, f serveFlags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	g, err := a.generator(b)
	if err != nil {
		return err
	}
	store, closeStore, err := a.snapshots()
	if err != nil {
		return err
	}
	defer closeStore()

	addr := a.flags.HTTPAddr
	if addr == "" {
		addr = a.settings.HTTPAddr
	}
	if addr == "" {
		addr = ":8080"
	}
	srv := api.NewServer(api.Config{
		Addr:       addr,
		HTTPSAddr:  f.httpsListen,
		TLSDir:     f.tlsDir,
		Auth:       api.NewAuthConfig(f.tokens...),
		Generator:  g,
		Querier:    b.querier,
		Data:       b.store,
		SchemaJSON: b.schemaJSON,
		Snapshots:  store,
		Logs:       a.logs,
		Metrics:    a.metrics,
		Options:    a.options(),
		Logger:     a.log,
	})

	var lis net.Listener
	if f.grpcListen != "" {
		if b.store == nil {
			return errors.New("--grpc-listen needs the file transport")
		}
		if lis, err = net.Listen("tcp", f.grpcListen); err != nil {
			return fmt.Errorf("grpc listen %s: %w", f.grpcListen, err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(ctx) })
	if lis != nil {
		gs := grpc.NewServer()
		datastore.NewGRPCServer(b.store, a.log).Register(gs)
		eg.Go(func() error {
			a.log.Info("gRPC datastore listening", "addr", f.grpcListen)
			return gs.Serve(lis)
		})
		eg.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	err = eg.Wait()
	a.writeMetrics()
	return err
}
