package models

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewWatermarkDefaults(t *testing.T) {
	now := date("2024-06-03")
	w := NewWatermark("AAPL", SeriesDailyOHLC, now)

	if w.FetchStatus != FetchStatusActive {
		t.Errorf("status = %q, want active", w.FetchStatus)
	}
	if !w.EarliestDate.Equal(w.LatestDate) {
		t.Error("new watermark should have earliest == latest")
	}
	want := now.AddDate(0, 0, -DefaultLookbackDays)
	if !w.LatestDate.Equal(want) {
		t.Errorf("lookback horizon = %s, want %s", FormatDate(w.LatestDate), FormatDate(want))
	}
	if w.ErrorCount != 0 || w.TotalRecords != 0 {
		t.Error("new watermark should start with zero counters")
	}
}

func TestAdvancedMonotonic(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	w := NewWatermark("AAPL", SeriesDailyOHLC, now)

	w = w.Advanced(date("2024-01-10"), 100, time.Time{}, now)
	if !w.LatestDate.Equal(date("2024-01-10")) {
		t.Fatalf("latest = %s, want 2024-01-10", FormatDate(w.LatestDate))
	}
	if w.TotalRecords != 100 {
		t.Fatalf("total = %d, want 100", w.TotalRecords)
	}

	// An older advance must not move latest_date backwards or shrink totals.
	w = w.Advanced(date("2023-12-01"), 50, time.Time{}, now)
	if !w.LatestDate.Equal(date("2024-01-10")) {
		t.Errorf("latest regressed to %s", FormatDate(w.LatestDate))
	}
	if w.TotalRecords != 150 {
		t.Errorf("total = %d, want 150", w.TotalRecords)
	}

	w = w.Advanced(date("2024-02-01"), -3, time.Time{}, now)
	if w.TotalRecords != 150 {
		t.Errorf("negative recordsAdded changed total to %d", w.TotalRecords)
	}
}

func TestAdvancedResetsErrors(t *testing.T) {
	now := time.Now().UTC()
	w := NewWatermark("MSFT", SeriesDailyOHLC, now)

	for i := 0; i < ErrorCeiling+2; i++ {
		w = w.WithError("provider timeout", now)
	}
	if !w.Tripped() {
		t.Fatal("expected circuit breaker tripped")
	}
	if w.FetchStatus != FetchStatusFailed {
		t.Fatalf("status = %q, want failed", w.FetchStatus)
	}

	w = w.Advanced(date("2024-03-01"), 10, time.Time{}, now)
	if w.ErrorCount != 0 {
		t.Errorf("error count = %d after success, want 0", w.ErrorCount)
	}
	if w.LastErrorMessage != "" {
		t.Errorf("error message not cleared: %q", w.LastErrorMessage)
	}
	if w.FetchStatus != FetchStatusActive {
		t.Errorf("status = %q after success, want active", w.FetchStatus)
	}
}

func TestAdvancedCompleteOnlyAtTarget(t *testing.T) {
	now := time.Now().UTC()
	w := NewWatermark("AMZN", SeriesDailyOHLC, now)
	target := date("2024-06-03")

	w = w.Advanced(date("2024-05-30"), 5, target, now)
	if w.FetchStatus != FetchStatusActive {
		t.Errorf("status = %q short of target, want active", w.FetchStatus)
	}

	w = w.Advanced(date("2024-06-03"), 2, target, now)
	if w.FetchStatus != FetchStatusComplete {
		t.Errorf("status = %q at target, want complete", w.FetchStatus)
	}
}

func TestWithErrorKeepsDateBounds(t *testing.T) {
	now := time.Now().UTC()
	w := NewWatermark("NVDA", SeriesDailyOHLC, now)
	w = w.Advanced(date("2024-01-10"), 20, time.Time{}, now)

	before := w.LatestDate
	w = w.WithError("no data returned", now)
	if !w.LatestDate.Equal(before) {
		t.Error("record_error must not move latest_date")
	}
	if w.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", w.ErrorCount)
	}
	if w.TotalRecords != 20 {
		t.Errorf("total records changed to %d", w.TotalRecords)
	}
}

func TestResetState(t *testing.T) {
	now := time.Now().UTC()
	w := NewWatermark("TSLA", SeriesDailyOHLC, now)
	for i := 0; i < ErrorCeiling; i++ {
		w = w.WithError("boom", now)
	}

	w = w.ResetState()
	if w.ErrorCount != 0 || w.FetchStatus != FetchStatusActive || w.LastErrorMessage != "" {
		t.Errorf("reset left %+v", w)
	}
}

func TestDaysBehind(t *testing.T) {
	w := Watermark{LatestDate: date("2024-01-10")}
	if got := w.DaysBehind(date("2024-01-15")); got != 5 {
		t.Errorf("days behind = %d, want 5", got)
	}
	if got := w.DaysBehind(date("2024-01-10")); got != 0 {
		t.Errorf("days behind = %d, want 0", got)
	}
	if got := (Watermark{}).DaysBehind(date("2024-01-15")); got != 0 {
		t.Errorf("zero watermark days behind = %d, want 0", got)
	}
}

func TestDateHelpers(t *testing.T) {
	ts := time.Date(2024, 3, 15, 22, 45, 11, 0, time.FixedZone("EST", -5*3600))
	d := DateOnly(ts)
	if d.Hour() != 0 || d.Location() != time.UTC {
		t.Errorf("DateOnly returned %v", d)
	}

	if _, err := ParseDate("2024-13-40"); err == nil {
		t.Error("expected error for invalid date")
	}
	parsed, err := ParseDate("2024-03-15")
	if err != nil {
		t.Fatal(err)
	}
	if FormatDate(parsed) != "2024-03-15" {
		t.Errorf("round trip = %s", FormatDate(parsed))
	}
}
