package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stocksync/pkg/models"
)

// casAttempts bounds the optimistic-lock retry loop for watermark writes.
// The loop only ever loses a race to another worker updating the same
// symbol, so contention is brief.
const casAttempts = 3

// ErrWatermarkConflict is returned when a watermark write keeps losing the
// version race.
var ErrWatermarkConflict = errors.New("watermark version conflict")

const watermarkColumns = `symbol, series_type, earliest_date, latest_date, last_fetch_date,
	total_records, fetch_status, error_count, last_error_message, version, updated_at`

// GetWatermark loads a watermark. The second return value reports whether a
// row exists.
func (mc *MySQLClient) GetWatermark(ctx context.Context, symbol, seriesType string) (models.Watermark, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM fetch_watermarks WHERE symbol = ? AND series_type = ?`,
		watermarkColumns)

	w, err := scanWatermark(mc.db.QueryRowContext(ctx, query, symbol, seriesType))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Watermark{}, false, nil
	}
	if err != nil {
		return models.Watermark{}, false, fmt.Errorf("failed to get watermark %s/%s: %w", symbol, seriesType, err)
	}
	return w, true, nil
}

// GetOrCreateWatermark loads the watermark for a symbol, lazily inserting the
// default-horizon row on first sight. Read failures fail open: the caller
// gets an in-memory default so a degraded store never halts a run, at the
// cost of potentially re-fetching covered ranges.
func (mc *MySQLClient) GetOrCreateWatermark(ctx context.Context, symbol, seriesType string, now time.Time) (models.Watermark, error) {
	w, found, err := mc.GetWatermark(ctx, symbol, seriesType)
	if err != nil {
		mc.logger.WithError(err).WithField("symbol", symbol).
			Warn("Watermark read failed, using default horizon")
		return models.NewWatermark(symbol, seriesType, now), nil
	}
	if found {
		return w, nil
	}

	fresh := models.NewWatermark(symbol, seriesType, now)
	insert := fmt.Sprintf(`INSERT INTO fetch_watermarks (%s)
		VALUES (?, ?, ?, ?, NULL, 0, ?, 0, '', 0, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE symbol = symbol`, watermarkColumns)

	if _, err := mc.db.ExecContext(ctx, insert,
		symbol, seriesType,
		models.FormatDate(fresh.EarliestDate), models.FormatDate(fresh.LatestDate),
		fresh.FetchStatus); err != nil {
		mc.logger.WithError(err).WithField("symbol", symbol).
			Warn("Watermark insert failed, using default horizon")
		return fresh, nil
	}

	// Re-read so concurrent creators converge on the stored row and version.
	w, found, err = mc.GetWatermark(ctx, symbol, seriesType)
	if err != nil || !found {
		return fresh, nil
	}
	return w, nil
}

// AdvanceWatermark applies a successful fetch to the stored watermark using
// compare-and-swap on the version column, so concurrent workers never
// regress LatestDate or TotalRecords.
func (mc *MySQLClient) AdvanceWatermark(ctx context.Context, symbol, seriesType string, newLatest time.Time, recordsAdded int64, targetEnd, now time.Time) (models.Watermark, error) {
	return mc.casWatermark(ctx, symbol, seriesType, now, func(w models.Watermark) models.Watermark {
		return w.Advanced(newLatest, recordsAdded, targetEnd, now)
	})
}

// RecordWatermarkError bumps the consecutive-error counter for a symbol,
// marking it failed once the ceiling is hit.
func (mc *MySQLClient) RecordWatermarkError(ctx context.Context, symbol, seriesType, message string, now time.Time) (models.Watermark, error) {
	return mc.casWatermark(ctx, symbol, seriesType, now, func(w models.Watermark) models.Watermark {
		return w.WithError(message, now)
	})
}

// ResetWatermark clears the failure history so a failed symbol is retried on
// the next run.
func (mc *MySQLClient) ResetWatermark(ctx context.Context, symbol, seriesType string, now time.Time) (models.Watermark, error) {
	return mc.casWatermark(ctx, symbol, seriesType, now, func(w models.Watermark) models.Watermark {
		return w.ResetState()
	})
}

// ListWatermarks returns the watermarks for the given symbols, or all
// watermarks of the series when symbols is empty. Symbols without a row are
// simply absent from the result.
func (mc *MySQLClient) ListWatermarks(ctx context.Context, seriesType string, symbols []string) ([]models.Watermark, error) {
	query := fmt.Sprintf(`SELECT %s FROM fetch_watermarks WHERE series_type = ?`, watermarkColumns)
	args := []interface{}{seriesType}

	if len(symbols) > 0 {
		query += fmt.Sprintf(" AND symbol IN (?%s)", strings.Repeat(", ?", len(symbols)-1))
		for _, s := range symbols {
			args = append(args, s)
		}
	}
	query += " ORDER BY symbol ASC"

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}
	defer rows.Close()

	var out []models.Watermark
	for rows.Next() {
		w, err := scanWatermark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (mc *MySQLClient) casWatermark(ctx context.Context, symbol, seriesType string, now time.Time, transition func(models.Watermark) models.Watermark) (models.Watermark, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		w, err := mc.GetOrCreateWatermark(ctx, symbol, seriesType, now)
		if err != nil {
			return models.Watermark{}, err
		}

		next := transition(w)

		res, err := mc.db.ExecContext(ctx, `UPDATE fetch_watermarks
			SET earliest_date = ?, latest_date = ?, last_fetch_date = ?,
				total_records = ?, fetch_status = ?, error_count = ?,
				last_error_message = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE symbol = ? AND series_type = ? AND version = ?`,
			models.FormatDate(next.EarliestDate), models.FormatDate(next.LatestDate),
			nullTime(next.LastFetchDate), next.TotalRecords, next.FetchStatus,
			next.ErrorCount, next.LastErrorMessage,
			symbol, seriesType, w.Version)
		if err != nil {
			return models.Watermark{}, fmt.Errorf("failed to update watermark %s/%s: %w", symbol, seriesType, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return models.Watermark{}, err
		}
		if affected == 1 {
			next.Version = w.Version + 1
			next.UpdatedAt = now
			return next, nil
		}

		mc.logger.WithFields(map[string]interface{}{
			"symbol":  symbol,
			"attempt": attempt + 1,
		}).Debug("Watermark version race, retrying")
	}

	return models.Watermark{}, fmt.Errorf("%w: %s/%s", ErrWatermarkConflict, symbol, seriesType)
}

// nullTime maps the zero time to SQL NULL. last_fetch_date is NULL for a
// symbol that has never been fetched, and strict mode rejects a zero date.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatermark(row rowScanner) (models.Watermark, error) {
	var (
		w         models.Watermark
		lastFetch sql.NullTime
		lastErr   sql.NullString
	)
	if err := row.Scan(&w.Symbol, &w.SeriesType, &w.EarliestDate, &w.LatestDate,
		&lastFetch, &w.TotalRecords, &w.FetchStatus, &w.ErrorCount,
		&lastErr, &w.Version, &w.UpdatedAt); err != nil {
		return models.Watermark{}, err
	}
	if lastFetch.Valid {
		w.LastFetchDate = lastFetch.Time
	}
	if lastErr.Valid {
		w.LastErrorMessage = lastErr.String
	}
	w.EarliestDate = models.DateOnly(w.EarliestDate)
	w.LatestDate = models.DateOnly(w.LatestDate)
	return w, nil
}
