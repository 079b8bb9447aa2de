package models

import "time"

// Series types tracked by watermarks.
const (
	SeriesDailyOHLC = "daily-ohlc"
)

// Fetch status values for a watermark.
const (
	FetchStatusActive   = "active"
	FetchStatusComplete = "complete"
	FetchStatusFailed   = "failed"
)

// ErrorCeiling is the number of consecutive fetch failures after which a
// symbol is skipped until an explicit reset.
const ErrorCeiling = 5

// DefaultLookbackDays is the horizon used when a symbol has no watermark
// yet (roughly five years).
const DefaultLookbackDays = 5 * 365

// Watermark tracks synchronization progress for one (symbol, series_type)
// pair. EarliestDate..LatestDate is the inclusive interval known to be
// persisted; Version supports the store's compare-and-swap writes.
type Watermark struct {
	Symbol           string    `json:"symbol"`
	SeriesType       string    `json:"series_type"`
	EarliestDate     time.Time `json:"earliest_date"`
	LatestDate       time.Time `json:"latest_date"`
	LastFetchDate    time.Time `json:"last_fetch_date"`
	TotalRecords     int64     `json:"total_records"`
	FetchStatus      string    `json:"fetch_status"`
	ErrorCount       int       `json:"error_count"`
	LastErrorMessage string    `json:"last_error_message,omitempty"`
	Version          int64     `json:"-"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewWatermark returns the lazily-created initial state for a symbol: both
// date bounds sit at the default lookback horizon and the status is active.
func NewWatermark(symbol, seriesType string, now time.Time) Watermark {
	horizon := DateOnly(now).AddDate(0, 0, -DefaultLookbackDays)
	return Watermark{
		Symbol:       symbol,
		SeriesType:   seriesType,
		EarliestDate: horizon,
		LatestDate:   horizon,
		FetchStatus:  FetchStatusActive,
	}
}

// Advanced computes the state after a successful fetch. LatestDate and
// TotalRecords never decrease, the consecutive-error counter resets, and
// the status flips to complete only once LatestDate has reached targetEnd.
// A zero targetEnd leaves the symbol active.
func (w Watermark) Advanced(newLatest time.Time, recordsAdded int64, targetEnd, now time.Time) Watermark {
	next := w
	newLatest = DateOnly(newLatest)
	if newLatest.After(next.LatestDate) {
		next.LatestDate = newLatest
	}
	if next.EarliestDate.IsZero() || (!newLatest.IsZero() && newLatest.Before(next.EarliestDate)) {
		next.EarliestDate = newLatest
	}
	if recordsAdded > 0 {
		next.TotalRecords += recordsAdded
	}
	next.LastFetchDate = now
	next.ErrorCount = 0
	next.LastErrorMessage = ""
	if !targetEnd.IsZero() && !next.LatestDate.Before(DateOnly(targetEnd)) {
		next.FetchStatus = FetchStatusComplete
	} else {
		next.FetchStatus = FetchStatusActive
	}
	return next
}

// WithError computes the state after a failed fetch attempt. Date bounds
// are untouched; once the consecutive-error counter reaches the ceiling the
// symbol is marked failed.
func (w Watermark) WithError(message string, now time.Time) Watermark {
	next := w
	next.ErrorCount++
	next.LastErrorMessage = message
	next.LastFetchDate = now
	if next.ErrorCount >= ErrorCeiling {
		next.FetchStatus = FetchStatusFailed
	}
	return next
}

// ResetState clears the failure history so a chronically failed symbol can
// be retried.
func (w Watermark) ResetState() Watermark {
	next := w
	next.ErrorCount = 0
	next.LastErrorMessage = ""
	next.FetchStatus = FetchStatusActive
	return next
}

// Tripped reports whether the symbol-level circuit breaker is open.
func (w Watermark) Tripped() bool {
	return w.ErrorCount >= ErrorCeiling
}

// DaysBehind returns how many calendar days LatestDate trails today.
func (w Watermark) DaysBehind(today time.Time) int {
	if w.LatestDate.IsZero() {
		return 0
	}
	d := int(DateOnly(today).Sub(DateOnly(w.LatestDate)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ProgressEntry is the operator-facing view of a watermark.
type ProgressEntry struct {
	Symbol       string    `json:"symbol"`
	Status       string    `json:"status"`
	LatestDate   time.Time `json:"latest_date"`
	TotalRecords int64     `json:"total_records"`
	DaysBehind   int       `json:"days_behind"`
	ErrorCount   int       `json:"error_count"`
}

// Progress projects the watermark into its reporting shape.
func (w Watermark) Progress(today time.Time) ProgressEntry {
	return ProgressEntry{
		Symbol:       w.Symbol,
		Status:       w.FetchStatus,
		LatestDate:   w.LatestDate,
		TotalRecords: w.TotalRecords,
		DaysBehind:   w.DaysBehind(today),
		ErrorCount:   w.ErrorCount,
	}
}
