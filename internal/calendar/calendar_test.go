package calendar

import (
	"testing"
	"time"

	"github.com/stocksync/pkg/models"
)

func date(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTradingDaysExcludesWeekends(t *testing.T) {
	// 2024-06-03 is a Monday; the week has no holidays.
	days := TradingDays(date("2024-06-03"), date("2024-06-09"))
	if len(days) != 5 {
		t.Fatalf("got %d days, want 5", len(days))
	}
	for _, d := range days {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("weekend day %s returned as trading day", models.FormatDate(d))
		}
	}
}

func TestKnownHolidays(t *testing.T) {
	holidays := []string{
		"2024-01-01", // New Year's Day
		"2024-01-15", // MLK Day (3rd Monday of January)
		"2024-02-19", // Presidents' Day
		"2024-03-29", // Good Friday
		"2024-05-27", // Memorial Day
		"2024-06-19", // Juneteenth
		"2024-07-04", // Independence Day
		"2024-09-02", // Labor Day
		"2024-11-28", // Thanksgiving
		"2024-11-29", // day after Thanksgiving
		"2024-12-25", // Christmas
		"2021-09-06", // Labor Day 2021
		"2021-11-25", // Thanksgiving 2021
		"2021-04-02", // Good Friday 2021
	}
	for _, h := range holidays {
		if IsTradingDay(date(h)) {
			t.Errorf("%s should be a market holiday", h)
		}
	}
}

func TestJuneteenthOnlyFrom2021(t *testing.T) {
	// 2020-06-19 was a Friday and not yet a federal holiday.
	if !IsTradingDay(date("2020-06-19")) {
		t.Error("Juneteenth should not be observed before 2021")
	}
	if IsTradingDay(date("2023-06-19")) {
		t.Error("Juneteenth 2023 should be a holiday")
	}
}

func TestOrdinaryWeekdayIsTradingDay(t *testing.T) {
	for _, s := range []string{"2024-01-10", "2024-06-03", "2023-03-14"} {
		if !IsTradingDay(date(s)) {
			t.Errorf("%s should be a trading day", s)
		}
	}
}

func TestTradingDaysOrderedAndDeterministic(t *testing.T) {
	start, end := date("2024-01-01"), date("2024-12-31")
	first := TradingDays(start, end)
	second := TradingDays(start, end)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("non-deterministic at %d", i)
		}
		if i > 0 && !first[i].After(first[i-1]) {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}

	// A year has roughly 250 trading days; the approximate calendar should
	// land near that.
	if len(first) < 245 || len(first) > 255 {
		t.Errorf("2024 trading days = %d, want ~250", len(first))
	}
}

func TestTradingDaysEmptyAndInvertedRange(t *testing.T) {
	if days := TradingDays(date("2024-06-10"), date("2024-06-09")); days != nil {
		t.Errorf("inverted range returned %d days", len(days))
	}
	// Single-day range on a Saturday.
	if days := TradingDays(date("2024-06-08"), date("2024-06-08")); len(days) != 0 {
		t.Errorf("saturday range returned %d days", len(days))
	}
}

func TestTradingDaySetMatchesSlice(t *testing.T) {
	start, end := date("2024-03-01"), date("2024-03-31")
	days := TradingDays(start, end)
	set := TradingDaySet(start, end)
	if len(days) != len(set) {
		t.Fatalf("set size %d != slice size %d", len(set), len(days))
	}
	for _, d := range days {
		if _, ok := set[d]; !ok {
			t.Errorf("set missing %s", models.FormatDate(d))
		}
	}
}
