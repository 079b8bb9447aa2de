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
	gapsFrom string
	gapsTo   string
)

var gapsCmd = &cobra.Command{
	Use:   "gaps SYMBOL [SYMBOL...]",
	Short: "Report missing trading days per symbol",
	Long: `Diffs the persisted dates of each symbol against the trading calendar
and prints the missing ranges. Defaults to the configured lookback window
ending today.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGaps,
}

func init() {
	gapsCmd.Flags().StringVar(&gapsFrom, "from", "", "Window start (YYYY-MM-DD)")
	gapsCmd.Flags().StringVar(&gapsTo, "to", "", "Window end (YYYY-MM-DD, defaults to today)")

	rootCmd.AddCommand(gapsCmd)
}

func runGaps(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	today := models.DateOnly(time.Now())
	start := today.AddDate(0, 0, -deps.cfg.Sync.LookbackDays)
	end := today

	if gapsFrom != "" {
		if start, err = models.ParseDate(gapsFrom); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}
	if gapsTo != "" {
		if end, err = models.ParseDate(gapsTo); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tCOVERAGE\tMISSING\tGAPS")
	for _, arg := range args {
		symbol := strings.ToUpper(strings.TrimSpace(arg))
		analysis, err := deps.analyzer.Analyze(ctx, symbol, start, end)
		if err != nil {
			return fmt.Errorf("gap analysis for %s failed: %w", symbol, err)
		}

		ranges := make([]string, 0, len(analysis.Gaps))
		for _, g := range analysis.Gaps {
			if g.StartDate.Equal(g.EndDate) {
				ranges = append(ranges, models.FormatDate(g.StartDate))
			} else {
				ranges = append(ranges, fmt.Sprintf("%s..%s",
					models.FormatDate(g.StartDate), models.FormatDate(g.EndDate)))
			}
		}
		detail := "-"
		if len(ranges) > 0 {
			detail = strings.Join(ranges, ", ")
		}
		fmt.Fprintf(w, "%s\t%.1f%%\t%d\t%s\n",
			symbol, analysis.CoveragePct, analysis.MissingDays, detail)
	}
	return w.Flush()
}
