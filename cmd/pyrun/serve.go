package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the pyrun HTTP server with REST and WebSocket endpoints under /api.

Every request runs in its own runtime.

Examples:
  pyrun serve
  pyrun serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(engine, logger.WithPrefix("http"))

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
