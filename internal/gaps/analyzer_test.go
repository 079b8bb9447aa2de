package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/stocksync/internal/calendar"
	"github.com/stocksync/pkg/models"
)

type fakeDates struct {
	dates []time.Time
	err   error
}

func (f *fakeDates) GetDates(_ context.Context, _ string, _, _ time.Time) ([]time.Time, error) {
	return f.dates, f.err
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// 2024-06-03 (Mon) through 2024-06-14 (Fri): ten trading days, no holidays.
const (
	winStart = "2024-06-03"
	winEnd   = "2024-06-14"
)

func TestAnalyzeNothingPersisted(t *testing.T) {
	a := NewAnalyzer(&fakeDates{}, 5)

	got, err := a.Analyze(context.Background(), "AAPL", day(winStart), day(winEnd))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.ExpectedDays != 10 || got.MissingDays != 10 || got.ExistingDays != 0 {
		t.Fatalf("counts = %d/%d/%d, want 10/10/0", got.ExpectedDays, got.MissingDays, got.ExistingDays)
	}
	if got.CoveragePct != 0 {
		t.Fatalf("coverage = %v, want 0", got.CoveragePct)
	}
	if len(got.Gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(got.Gaps))
	}
	g := got.Gaps[0]
	if !g.StartDate.Equal(day(winStart)) || !g.EndDate.Equal(day(winEnd)) || g.MissingDays != 10 {
		t.Fatalf("gap = %+v", g)
	}
}

func TestAnalyzeFullCoverage(t *testing.T) {
	a := NewAnalyzer(&fakeDates{dates: calendar.TradingDays(day(winStart), day(winEnd))}, 5)

	got, err := a.Analyze(context.Background(), "AAPL", day(winStart), day(winEnd))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.MissingDays != 0 || len(got.Gaps) != 0 {
		t.Fatalf("missing = %d, gaps = %d, want 0/0", got.MissingDays, len(got.Gaps))
	}
	if got.CoveragePct != 100 {
		t.Fatalf("coverage = %v, want 100", got.CoveragePct)
	}
}

func TestAnalyzeWeekendSpanMerges(t *testing.T) {
	// Persist the first three days; the remaining seven missing days span a
	// weekend but the three-day jump is within the slack, so one gap.
	persisted := []time.Time{day("2024-06-03"), day("2024-06-04"), day("2024-06-05")}
	a := NewAnalyzer(&fakeDates{dates: persisted}, 5)

	got, err := a.Analyze(context.Background(), "MSFT", day(winStart), day(winEnd))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.MissingDays != 7 {
		t.Fatalf("missing = %d, want 7", got.MissingDays)
	}
	if len(got.Gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(got.Gaps))
	}
	g := got.Gaps[0]
	if !g.StartDate.Equal(day("2024-06-06")) || !g.EndDate.Equal(day("2024-06-14")) || g.MissingDays != 7 {
		t.Fatalf("gap = %+v", g)
	}
}

func TestAnalyzeDistantGapsStaySeparate(t *testing.T) {
	// Everything persisted except two days three weeks apart.
	all := calendar.TradingDays(day("2024-06-03"), day("2024-06-28"))
	var persisted []time.Time
	for _, d := range all {
		if d.Equal(day("2024-06-04")) || d.Equal(day("2024-06-25")) {
			continue
		}
		persisted = append(persisted, d)
	}
	a := NewAnalyzer(&fakeDates{dates: persisted}, 5)

	got, err := a.Analyze(context.Background(), "NVDA", day("2024-06-03"), day("2024-06-28"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.MissingDays != 2 {
		t.Fatalf("missing = %d, want 2", got.MissingDays)
	}
	if len(got.Gaps) != 2 {
		t.Fatalf("gaps = %d, want 2", len(got.Gaps))
	}
	for i, want := range []string{"2024-06-04", "2024-06-25"} {
		g := got.Gaps[i]
		if !g.StartDate.Equal(day(want)) || !g.EndDate.Equal(day(want)) || g.MissingDays != 1 {
			t.Fatalf("gap[%d] = %+v, want single day %s", i, g, want)
		}
	}
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	a := NewAnalyzer(&fakeDates{}, 5)

	got, err := a.Analyze(context.Background(), "AAPL", day(winEnd), day(winStart))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.ExpectedDays != 0 || got.CoveragePct != 100 {
		t.Fatalf("expected = %d, coverage = %v", got.ExpectedDays, got.CoveragePct)
	}
}
