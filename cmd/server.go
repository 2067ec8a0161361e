package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitlife/fitlife-sync/internal/di"
)

const shutdownTimeout = 30 * time.Second

var (
	port    string
	envFile string
	verbose bool
)

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the fitlife notification server",
	Long: `Start the HTTP server for push subscriptions, notification delivery and read state.

When FITLIFE_SCHEDULER_CRON is set the server also runs the due-notification
worker on that schedule.`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides FITLIFE_APP_PORT)")
	ServerCmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "Optional .env file to load")
	ServerCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	bindFlags(ServerCmd, "port", "verbose")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logg := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logg.Error(context.Background(), "failed to close resources", err)
		}
	}()

	if container.DueWorker != nil {
		container.DueWorker.Start(ctx)
		defer container.DueWorker.Stop()
	}

	addr := ":" + cfg.App.Port
	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "Starting fitlife-sync server")
		if err := container.HTTPServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	}

	logg.Info(context.Background(), "Shutdown signal received, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.HTTPServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logg.Info(shutdownCtx, "Server shutdown complete")
	return nil
}
