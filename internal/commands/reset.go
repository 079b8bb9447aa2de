package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stocksync/pkg/models"
)

var (
	resetSeries string
)

var resetCmd = &cobra.Command{
	Use:   "reset SYMBOL [SYMBOL...]",
	Short: "Clear the failure history for symbols",
	Long: `Resets the consecutive-error counter and failed status for the given
symbols so the next sync run retries them. Date bounds and record counts
are untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetSeries, "series", models.SeriesDailyOHLC, "Series type")

	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	symbols := make([]string, 0, len(args))
	for _, s := range args {
		symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := deps.engine.Reset(ctx, resetSeries, symbols); err != nil {
		return err
	}

	fmt.Printf("Reset %d symbol(s).\n", len(symbols))
	return nil
}
