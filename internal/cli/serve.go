package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"document-assistant/internal/server"
)

const shutdownTimeout = 10 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides APP_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	port := rt.cfg.App.Port
	if servePort != "" {
		port = servePort
	}
	srv := newServer(rt)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(port) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		rt.log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func newServer(rt *runtime) *server.Server {
	return server.New(rt.svc, rt.log, server.Options{
		AllowedOrigins: rt.cfg.App.CorsAllowedOrigins,
		MaxUploadBytes: rt.cfg.Upload.MaxBytes,
		Tracing:        rt.cfg.Otel.Enabled,
	})
}
