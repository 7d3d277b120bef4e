package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ltser-cli/internal/api"
	"github.com/sells-group/ltser-cli/internal/composite"
	"github.com/sells-group/ltser-cli/internal/provision"
)

var (
	servePort         int
	serveNoProvision  bool
	serveShutdownWait = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog, composites and provisioning over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat, _, err := loadCatalog("serve")
		if err != nil {
			return eris.Wrap(err, "serve")
		}

		ledger := openLedger(ctx)
		defer ledger.Close() //nolint:errcheck

		builder := composite.NewBuilder(ledger)
		opts := api.Options{
			Builder:        builder,
			Ledger:         ledger,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if !serveNoProvision {
			opts.Provisioner = provision.New(cat, newRegistry(cfg.DEIMS), builder, ledger)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewServer(cat, opts).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return runServer(ctx, srv)
	},
}

// runServer serves until ctx is canceled, then shuts srv down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownWait)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoProvision, "no-provision", false, "disable POST /sites")
	rootCmd.AddCommand(serveCmd)
}
