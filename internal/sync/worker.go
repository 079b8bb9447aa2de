package sync

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stocksync/pkg/models"
)

// ErrNoData marks a provider response that succeeded at the HTTP level but
// carried no rows. Watermarks treat it as a fetch error so chronically empty
// symbols eventually trip the breaker, without conflating it with transport
// failures.
var ErrNoData = errors.New("provider returned no data")

// fetchResult is the outcome of one rate-limited fetch-and-persist pass over
// a date range.
type fetchResult struct {
	records  int64
	latest   time.Time
	apiCalls int64
}

// syncRange fetches [start, end] for one symbol and persists whatever came
// back. The limiter is acquired before the provider call, never for skipped
// symbols. Persistence tries the batch upsert first and falls back to
// row-by-row so one malformed bar does not discard the rest of the response.
func (e *Engine) syncRange(ctx context.Context, symbol string, start, end time.Time) (fetchResult, error) {
	var res fetchResult

	if err := e.limiter.Wait(ctx); err != nil {
		return res, err
	}
	res.apiCalls = 1

	bars, err := e.source.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		return res, err
	}
	if len(bars) == 0 {
		return res, ErrNoData
	}

	persisted, err := e.persistBars(ctx, symbol, bars)
	if err != nil {
		return res, err
	}

	res.records = persisted
	for _, b := range bars {
		if b.Date.After(res.latest) {
			res.latest = b.Date
		}
	}
	return res, nil
}

// persistBars writes a batch, salvaging individual rows when the batch
// statement fails. It returns the number of rows actually persisted; zero
// persisted rows after a failed batch is reported as an error.
func (e *Engine) persistBars(ctx context.Context, symbol string, bars []models.PriceBar) (int64, error) {
	err := e.prices.UpsertBars(ctx, bars)
	if err == nil {
		return int64(len(bars)), nil
	}
	e.logger.WithError(err).WithFields(logrus.Fields{
		"symbol": symbol,
		"bars":   len(bars),
	}).Warn("Batch upsert failed, retrying row by row")

	var persisted int64
	var lastErr error
	for i := range bars {
		if err := e.prices.UpsertBar(ctx, bars[i]); err != nil {
			lastErr = err
			e.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": symbol,
				"date":   models.FormatDate(bars[i].Date),
			}).Warn("Row upsert failed, skipping bar")
			continue
		}
		persisted++
	}

	if persisted == 0 {
		return 0, lastErr
	}
	return persisted, nil
}
