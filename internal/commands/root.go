package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stocksync",
	Short: "Incremental daily market data synchronization",
	Long: `Keeps a local store of daily OHLCV bars synchronized with the
Financial Modeling Prep API.

Each symbol carries a watermark recording the date range already
persisted, so repeated runs fetch only the missing tail. Runs are
rate-limited, checkpointed and safe to interrupt: the next run resumes
from wherever the watermarks stand.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
