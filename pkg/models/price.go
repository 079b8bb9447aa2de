package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for market dates.
const DateLayout = "2006-01-02"

// PriceBar represents one daily OHLCV row for a symbol. The natural key is
// (symbol, date); every other field is replaceable by a later write.
type PriceBar struct {
	Symbol           string    `json:"symbol"`
	Date             time.Time `json:"date"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	Close            float64   `json:"close"`
	AdjClose         float64   `json:"adjClose"`
	Volume           int64     `json:"volume"`
	UnadjustedVolume int64     `json:"unadjustedVolume"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"changePercent"`
	VWAP             float64   `json:"vwap"`
	Label            string    `json:"label,omitempty"`
	ChangeOverTime   float64   `json:"changeOverTime"`
}

// Validate checks that the bar carries a usable natural key.
func (b *PriceBar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("price bar missing symbol")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("price bar for %s has no date", b.Symbol)
	}
	return nil
}

// DateOnly normalizes a timestamp to UTC midnight, the granularity all
// market dates are compared at.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD market date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a market date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
