// Package calendar models the expected US trading-day calendar. It is an
// approximation: weekends are excluded exactly, exchange holidays via a
// small rule table (fixed dates plus floating holidays, Good Friday from an
// Easter computation). It may miss unannounced closures; the gap analyzer's
// slack threshold absorbs that imprecision.
package calendar

import (
	"time"

	"github.com/stocksync/pkg/models"
)

// TradingDays returns the ordered expected trading days in [start, end],
// both bounds inclusive and normalized to UTC midnight.
func TradingDays(start, end time.Time) []time.Time {
	start = models.DateOnly(start)
	end = models.DateOnly(end)
	if end.Before(start) {
		return nil
	}

	holidays := holidaysInRange(start, end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, ok := holidays[d]; ok {
			continue
		}
		days = append(days, d)
	}
	return days
}

// TradingDaySet returns the expected trading days in [start, end] as a set.
func TradingDaySet(start, end time.Time) map[time.Time]struct{} {
	days := TradingDays(start, end)
	set := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

// IsTradingDay reports whether the market is expected to produce data on
// the given date.
func IsTradingDay(d time.Time) bool {
	d = models.DateOnly(d)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, closed := marketHolidays(d.Year())[d]
	return !closed
}

// holidaysInRange collects the holiday sets of every year the range spans.
func holidaysInRange(start, end time.Time) map[time.Time]struct{} {
	all := make(map[time.Time]struct{})
	for year := start.Year(); year <= end.Year(); year++ {
		for d := range marketHolidays(year) {
			all[d] = struct{}{}
		}
	}
	return all
}

// marketHolidays returns the approximate US market holidays for a year.
func marketHolidays(year int) map[time.Time]struct{} {
	holidays := make(map[time.Time]struct{})
	add := func(d time.Time) { holidays[d] = struct{}{} }

	// Fixed dates.
	add(ymd(year, time.January, 1))   // New Year's Day
	add(ymd(year, time.July, 4))      // Independence Day
	add(ymd(year, time.December, 25)) // Christmas Day
	if year >= 2021 {
		add(ymd(year, time.June, 19)) // Juneteenth
	}

	// Floating holidays.
	add(nthWeekday(year, time.January, time.Monday, 3))    // MLK Day
	add(nthWeekday(year, time.February, time.Monday, 3))   // Presidents' Day
	add(lastWeekday(year, time.May, time.Monday))          // Memorial Day
	add(nthWeekday(year, time.September, time.Monday, 1))  // Labor Day

	thanksgiving := nthWeekday(year, time.November, time.Thursday, 4)
	add(thanksgiving)
	add(thanksgiving.AddDate(0, 0, 1)) // market closed the day after

	add(easter(year).AddDate(0, 0, -2)) // Good Friday

	return holidays
}

// nthWeekday returns the nth occurrence of a weekday in a month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := ymd(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last occurrence of a weekday in a month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := ymd(year, month, 1).AddDate(0, 1, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter computes the Gregorian Easter Sunday for a year (anonymous
// Gregorian algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return ymd(year, time.Month(month), day)
}

func ymd(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
