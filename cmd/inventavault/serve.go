package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/app"
	"github.com/joelkehle/inventavault/internal/httpapi"
	"github.com/joelkehle/inventavault/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, logger)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr: cfg.HTTPAddr,
				Handler: httpapi.NewServer(httpapi.Options{
					Machine:  a.Machine,
					PDF:      a.PDF,
					Ledger:   a.Ledger,
					Logger:   logger,
					Metrics:  a.Metrics,
					Gatherer: a.Registry,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("http_shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides INVENTAVAULT_HTTP_ADDR")
	return cmd
}
