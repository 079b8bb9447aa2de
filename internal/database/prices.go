package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stocksync/pkg/models"
)

const priceColumns = `symbol, date, open, high, low, close, adj_close, volume,
	unadjusted_volume, price_change, change_percent, vwap, label, change_over_time`

const priceUpdateClause = `open = VALUES(open), high = VALUES(high), low = VALUES(low),
	close = VALUES(close), adj_close = VALUES(adj_close), volume = VALUES(volume),
	unadjusted_volume = VALUES(unadjusted_volume), price_change = VALUES(price_change),
	change_percent = VALUES(change_percent), vwap = VALUES(vwap), label = VALUES(label),
	change_over_time = VALUES(change_over_time), cached_at = CURRENT_TIMESTAMP`

// UpsertBars persists a batch of daily bars in a single statement. Re-fetched
// rows overwrite the previously stored values for the same (symbol, date) key,
// so replaying a range never duplicates rows. The whole batch fails as a unit;
// callers fall back to UpsertBar to salvage the valid rows.
func (mc *MySQLClient) UpsertBars(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*14)
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return fmt.Errorf("invalid bar at index %d: %w", i, err)
		}
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, barArgs(&bars[i])...)
	}

	query := fmt.Sprintf(`INSERT INTO historical_prices_daily (%s) VALUES %s
		ON DUPLICATE KEY UPDATE %s`,
		priceColumns, strings.Join(placeholders, ", "), priceUpdateClause)

	if _, err := mc.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %d bars: %w", len(bars), err)
	}

	return nil
}

// UpsertBar persists a single daily bar. Used as the row-by-row fallback when
// a batch upsert fails.
func (mc *MySQLClient) UpsertBar(ctx context.Context, bar models.PriceBar) error {
	if err := bar.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO historical_prices_daily (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE %s`, priceColumns, priceUpdateClause)

	if _, err := mc.db.ExecContext(ctx, query, barArgs(&bar)...); err != nil {
		return fmt.Errorf("failed to upsert bar %s/%s: %w",
			bar.Symbol, models.FormatDate(bar.Date), err)
	}

	return nil
}

// GetDates returns the distinct dates already persisted for a symbol within
// [start, end], ascending. Gap analysis diffs this against the trading
// calendar.
func (mc *MySQLClient) GetDates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	query := `SELECT DISTINCT date FROM historical_prices_daily
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`

	rows, err := mc.db.QueryContext(ctx, query,
		symbol, models.FormatDate(start), models.FormatDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query dates for %s: %w", symbol, err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date for %s: %w", symbol, err)
		}
		dates = append(dates, models.DateOnly(d))
	}

	return dates, rows.Err()
}

func barArgs(b *models.PriceBar) []interface{} {
	return []interface{}{
		b.Symbol,
		models.FormatDate(b.Date),
		b.Open,
		b.High,
		b.Low,
		b.Close,
		b.AdjClose,
		b.Volume,
		b.UnadjustedVolume,
		b.Change,
		b.ChangePercent,
		b.VWAP,
		b.Label,
		b.ChangeOverTime,
	}
}
