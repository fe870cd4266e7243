package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/server"
	"github.com/chaos-io/rembg-cli/ui"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd(opts *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve background removal over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.setup(cmd, opts)
			if err != nil {
				return err
			}
			defer func() {
				_ = d.logger.Sync()
			}()

			if listen == "" {
				listen = d.cfg.Listen
			}
			if !opts.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := &http.Server{
				Addr:              listen,
				Handler:           server.NewRouter(server.NewHandler(d.remover, d.model, d.logger)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return a.serve(cmd.Context(), srv, d.logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, \":7001\")")
	return cmd
}

func (a *app) serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	_, _ = ui.Success.Fprintf(a.out, "Listening on %s\n", srv.Addr)
	logger.Info("server started", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down server")
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}
