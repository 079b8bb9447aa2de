package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	syncengine "github.com/stocksync/internal/sync"
	"github.com/stocksync/pkg/models"
)

// Sentinel errors mapped to process exit codes by main: partial failures
// exit 2, a run with no successful symbol exits 1.
var (
	ErrPartialSync = errors.New("some symbols failed to sync")
	ErrSyncFailed  = errors.New("no symbols synced")
)

var (
	syncSymbols      string
	syncSymbolsFile  string
	syncStartDate    string
	syncEndDate      string
	syncDaysBack     int
	syncForceRefresh bool
	syncFillGaps     bool
	syncRateLimit    int
	syncWorkers      int
	syncSeries       string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize daily bars for a set of symbols",
	Long: `Fetches missing daily OHLCV bars for the requested symbols.

Without explicit dates each symbol resumes from its watermark: only the
days after the last persisted date are fetched. New symbols start at the
default five-year horizon.

Examples:
  # Catch up two symbols from their watermarks
  stocksync sync --symbols AAPL,MSFT

  # Sync a universe from a file, five at a time
  stocksync sync --symbols-file sp500.txt --workers 5

  # Re-fetch an explicit range, ignoring watermarks
  stocksync sync --symbols AAPL --start-date 2024-01-01 --end-date 2024-06-30 --force-refresh

  # Backfill the last 90 days
  stocksync sync --symbols NVDA --days-back 90

  # Fill interior holes instead of extending the tail
  stocksync sync --symbols AAPL --fill-gaps`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncSymbols, "symbols", "", "Comma-separated symbols to sync (e.g. AAPL,MSFT)")
	syncCmd.Flags().StringVar(&syncSymbolsFile, "symbols-file", "", "File with one symbol per line")
	syncCmd.Flags().StringVar(&syncStartDate, "start-date", "", "Explicit range start (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncEndDate, "end-date", "", "Explicit range end (YYYY-MM-DD, defaults to today)")
	syncCmd.Flags().IntVar(&syncDaysBack, "days-back", 0, "Fetch the last N days instead of resuming from watermarks")
	syncCmd.Flags().BoolVar(&syncForceRefresh, "force-refresh", false, "Re-fetch the range even for complete or failed symbols")
	syncCmd.Flags().BoolVar(&syncFillGaps, "fill-gaps", false, "Fetch missing interior trading days instead of resuming from watermarks")
	syncCmd.Flags().IntVar(&syncRateLimit, "rate-limit", 0, "Override provider calls per minute")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0, "Override worker pool size")
	syncCmd.Flags().StringVar(&syncSeries, "series", models.SeriesDailyOHLC, "Series type to synchronize")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	symbols, err := resolveSymbols()
	if err != nil {
		return err
	}

	req := syncengine.Request{
		Symbols:      symbols,
		SeriesType:   syncSeries,
		ForceRefresh: syncForceRefresh,
		FillGaps:     syncFillGaps,
	}
	if syncFillGaps && (syncStartDate != "" || syncDaysBack > 0) {
		return fmt.Errorf("--fill-gaps resolves its own ranges; drop --start-date/--days-back")
	}

	if syncStartDate != "" && syncDaysBack > 0 {
		return fmt.Errorf("cannot specify both --start-date and --days-back")
	}
	if syncStartDate != "" {
		if req.StartDate, err = models.ParseDate(syncStartDate); err != nil {
			return fmt.Errorf("invalid --start-date: %w", err)
		}
	}
	if syncEndDate != "" {
		if req.EndDate, err = models.ParseDate(syncEndDate); err != nil {
			return fmt.Errorf("invalid --end-date: %w", err)
		}
	}
	if syncDaysBack > 0 {
		today := models.DateOnly(time.Now())
		req.StartDate = today.AddDate(0, 0, -syncDaysBack)
		req.EndDate = today
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.StartDate.After(req.EndDate) {
		return fmt.Errorf("start date %s is after end date %s", syncStartDate, syncEndDate)
	}

	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	if syncRateLimit > 0 {
		deps.cfg.Sync.CallsPerMinute = syncRateLimit
	}
	if syncWorkers > 0 {
		deps.cfg.Sync.Workers = syncWorkers
	}

	// SIGINT/SIGTERM interrupt the run between symbols; the session is
	// checkpointed as interrupted and the next run resumes from the
	// watermarks.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := deps.engine.Sync(ctx, req)
	if report != nil {
		printReport(deps.logger, report)
	}
	if err != nil {
		return err
	}

	switch {
	case report.NoneSucceeded():
		return ErrSyncFailed
	case !report.AllSucceeded():
		return ErrPartialSync
	}
	return nil
}

// resolveSymbols merges --symbols and --symbols-file into a deduplicated,
// uppercased list.
func resolveSymbols() ([]string, error) {
	seen := make(map[string]bool)
	var symbols []string

	add := func(raw string) {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" || strings.HasPrefix(sym, "#") || seen[sym] {
			return
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}

	for _, s := range strings.Split(syncSymbols, ",") {
		add(s)
	}

	if syncSymbolsFile != "" {
		f, err := os.Open(syncSymbolsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open symbols file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			add(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read symbols file: %w", err)
		}
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given: use --symbols or --symbols-file")
	}
	return symbols, nil
}

func printReport(log *logrus.Logger, report *syncengine.Report) {
	s := report.Session
	log.WithFields(logrus.Fields{
		"session":    s.SessionID,
		"status":     s.Status,
		"successful": s.SymbolsSuccessful,
		"failed":     s.SymbolsFailed,
		"records":    s.TotalRecordsFetched,
	}).Info("Run summary")

	for _, r := range report.Results {
		if r.Status == syncengine.ResultFailed || r.Status == syncengine.ResultSkipped {
			entry := log.WithField("symbol", r.Symbol).WithField("status", r.Status)
			if r.Err != nil {
				entry = entry.WithError(r.Err)
			}
			entry.Warn("Symbol did not sync")
		}
	}
}
