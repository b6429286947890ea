package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only status server",
	Long: `Serve pipeline state over HTTP. The API is strictly read-only: it
never evaluates, advances or resets anything.

Endpoints:
  GET /healthz
  GET /metrics
  GET /api/v1/namespaces
  GET /api/v1/namespaces/:name
  GET /api/v1/namespaces/:name/journal`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.NewServer(a.store, a.journal, a.checkpoints, a.logger, a.cfg.Server)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
