package gaps

import (
	"context"
	"time"

	"github.com/stocksync/internal/calendar"
	"github.com/stocksync/pkg/models"
)

// DateSource exposes the persisted trading dates for a symbol. The MySQL
// client satisfies it.
type DateSource interface {
	GetDates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error)
}

// Gap is a contiguous run of missing trading days for one symbol. Nearby
// gaps separated by at most the slack are coalesced so one fetch covers
// both.
type Gap struct {
	Symbol      string    `json:"symbol"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	MissingDays int       `json:"missing_days"`
}

// Analysis summarizes persisted coverage for one symbol over a window.
type Analysis struct {
	Symbol       string  `json:"symbol"`
	ExpectedDays int     `json:"expected_days"`
	ExistingDays int     `json:"existing_days"`
	MissingDays  int     `json:"missing_days"`
	Gaps         []Gap   `json:"gaps"`
	CoveragePct  float64 `json:"coverage_pct"`
}

// Analyzer diffs persisted dates against the trading calendar.
type Analyzer struct {
	dates DateSource
	slack int
}

// NewAnalyzer builds an analyzer. slackDays controls gap coalescing: two
// missing runs whose endpoints are more than slackDays calendar days apart
// stay separate gaps.
func NewAnalyzer(dates DateSource, slackDays int) *Analyzer {
	if slackDays < 0 {
		slackDays = 0
	}
	return &Analyzer{dates: dates, slack: slackDays}
}

// Analyze reports the missing trading days for a symbol within
// [start, end]. Dates persisted outside the window are ignored, and days
// the market was closed are never counted as missing.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, start, end time.Time) (Analysis, error) {
	expected := calendar.TradingDays(start, end)
	analysis := Analysis{Symbol: symbol, ExpectedDays: len(expected)}
	if len(expected) == 0 {
		analysis.CoveragePct = 100
		return analysis, nil
	}

	persisted, err := a.dates.GetDates(ctx, symbol, start, end)
	if err != nil {
		return Analysis{}, err
	}

	have := make(map[time.Time]struct{}, len(persisted))
	for _, d := range persisted {
		have[models.DateOnly(d)] = struct{}{}
	}

	var missing []time.Time
	for _, d := range expected {
		if _, ok := have[d]; !ok {
			missing = append(missing, d)
		}
	}

	analysis.ExistingDays = analysis.ExpectedDays - len(missing)
	analysis.MissingDays = len(missing)
	analysis.Gaps = a.coalesce(symbol, missing)
	analysis.CoveragePct = float64(analysis.ExistingDays) / float64(analysis.ExpectedDays) * 100
	return analysis, nil
}

// coalesce folds an ascending list of missing trading days into gaps,
// merging runs whose adjacent endpoints are within the slack.
func (a *Analyzer) coalesce(symbol string, missing []time.Time) []Gap {
	if len(missing) == 0 {
		return nil
	}

	gaps := []Gap{{Symbol: symbol, StartDate: missing[0], EndDate: missing[0], MissingDays: 1}}
	for _, d := range missing[1:] {
		last := &gaps[len(gaps)-1]
		between := int(d.Sub(last.EndDate).Hours() / 24)
		if between > a.slack {
			gaps = append(gaps, Gap{Symbol: symbol, StartDate: d, EndDate: d, MissingDays: 1})
			continue
		}
		last.EndDate = d
		last.MissingDays++
	}
	return gaps
}
