package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stocksync/pkg/models"
)

var (
	progressSymbols string
	progressSeries  string
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show per-symbol synchronization progress",
	Long: `Prints the watermark view for the requested symbols: latest persisted
date, total records, how many days the symbol trails today and its error
count. Without --symbols every tracked symbol is listed.`,
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().StringVar(&progressSymbols, "symbols", "", "Comma-separated symbols to show (default: all)")
	progressCmd.Flags().StringVar(&progressSeries, "series", models.SeriesDailyOHLC, "Series type")

	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	var symbols []string
	for _, s := range strings.Split(progressSymbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := deps.engine.Progress(ctx, progressSeries, symbols)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No watermarks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSTATUS\tLATEST\tRECORDS\tBEHIND\tERRORS")
	for _, e := range entries {
		latest := "-"
		if !e.LatestDate.IsZero() {
			latest = models.FormatDate(e.LatestDate)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			e.Symbol, e.Status, latest, e.TotalRecords, e.DaysBehind, e.ErrorCount)
	}
	return w.Flush()
}
