package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/michael/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling server",
	Long: `Starts the HTTP API and the background calendar sync loop, and
runs until interrupted. Pending migrations are applied at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, err := app.NewContainer(ctx, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		go container.Runner.Run(ctx)

		serverErr := make(chan error, 1)
		go func() {
			if err := container.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		select {
		case err := <-serverErr:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received")
		return container.Shutdown(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
