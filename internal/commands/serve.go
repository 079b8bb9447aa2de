package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stocksync/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator status API",
	Long: `Serves the read-only status API: /health, /api/v1/progress,
/api/v1/sessions/{id} and /api/v1/gaps/{symbol}. Sync runs are started
from the CLI, not the API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	server := api.NewServer(deps.cfg, deps.logger, deps.mysql, deps.redis, deps.nats, deps.engine, deps.analyzer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
