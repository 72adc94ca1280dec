// Package cli defines the michael command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/michael/pkg/observability"
)

var logger *slog.Logger

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "michael",
	Short: "Michael - self-hosted meeting scheduling",
	Long: `Michael is a single-tenant scheduling service. Participants share
their availability in plain language, Michael intersects it with the
host's weekly template and synced calendars, and offers bookable slots.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = observability.LoggerFromEnv()
	},
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
