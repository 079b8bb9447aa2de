package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stocksync/internal/gaps"
	"github.com/stocksync/internal/provider"
	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

// PriceStore persists daily bars. The MySQL client satisfies it.
type PriceStore interface {
	UpsertBars(ctx context.Context, bars []models.PriceBar) error
	UpsertBar(ctx context.Context, bar models.PriceBar) error
}

// WatermarkStore tracks per-symbol sync progress.
type WatermarkStore interface {
	GetOrCreateWatermark(ctx context.Context, symbol, seriesType string, now time.Time) (models.Watermark, error)
	AdvanceWatermark(ctx context.Context, symbol, seriesType string, newLatest time.Time, recordsAdded int64, targetEnd, now time.Time) (models.Watermark, error)
	RecordWatermarkError(ctx context.Context, symbol, seriesType, message string, now time.Time) (models.Watermark, error)
	ResetWatermark(ctx context.Context, symbol, seriesType string, now time.Time) (models.Watermark, error)
	ListWatermarks(ctx context.Context, seriesType string, symbols []string) ([]models.Watermark, error)
}

// SessionStore persists orchestrator sessions and checkpoints.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.SyncSession) error
	CheckpointSession(ctx context.Context, s *models.SyncSession) error
}

// RateLimiter gates provider calls.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// GapAnalyzer reports missing trading days per symbol. Satisfied by
// gaps.Analyzer; only used in gap-fill mode.
type GapAnalyzer interface {
	Analyze(ctx context.Context, symbol string, start, end time.Time) (gaps.Analysis, error)
}

// SnapshotCache stores the operator-facing progress snapshot. Optional.
type SnapshotCache interface {
	StoreProgress(ctx context.Context, seriesType string, entries []models.ProgressEntry) error
}

// EventSink publishes session and symbol lifecycle events. Optional.
type EventSink interface {
	SessionEvent(ctx context.Context, event string, s *models.SyncSession) error
	SymbolEvent(ctx context.Context, event, symbol string, w models.Watermark) error
}

// Symbol outcome statuses reported per run.
const (
	ResultSynced  = "synced"  // fetched and persisted new rows
	ResultCurrent = "current" // already covered, no API call made
	ResultSkipped = "skipped" // circuit breaker open, no API call made
	ResultFailed  = "failed"  // fetch or persist error recorded
)

// SymbolResult is the per-symbol outcome of a run.
type SymbolResult struct {
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	Records int64  `json:"records"`
	Calls   int64  `json:"api_calls"`
	Err     error  `json:"-"`
}

// Report summarizes one orchestrator run.
type Report struct {
	Session *models.SyncSession
	Results []SymbolResult
}

// AllSucceeded reports whether every requested symbol ended synced or
// current.
func (r *Report) AllSucceeded() bool {
	return r.Session.SymbolsFailed == 0 && r.Session.SymbolsProcessed > 0
}

// NoneSucceeded reports whether no symbol made progress.
func (r *Report) NoneSucceeded() bool {
	return r.Session.SymbolsSuccessful == 0
}

// FailedSymbols lists the symbols that did not sync, for operator follow-up.
func (r *Report) FailedSymbols() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status == ResultFailed || res.Status == ResultSkipped {
			out = append(out, res.Symbol)
		}
	}
	return out
}

// Request describes one sync run. A zero StartDate/EndDate means resume from
// each symbol's watermark up to today; ForceRefresh re-fetches the explicit
// range even for tripped symbols. FillGaps switches range resolution from
// watermark-resume to gap analysis over the symbol's whole window.
type Request struct {
	Symbols      []string
	SeriesType   string
	StartDate    time.Time
	EndDate      time.Time
	ForceRefresh bool
	FillGaps     bool
}

// Engine orchestrates incremental synchronization: per-symbol range
// resolution, rate-limited fetching, watermark advancement and checkpointed
// session tracking. All collaborators are injected.
type Engine struct {
	prices   PriceStore
	marks    WatermarkStore
	sessions SessionStore
	source   provider.Source
	limiter  RateLimiter
	analyzer GapAnalyzer
	cache    SnapshotCache
	events   EventSink
	cfg      *config.SyncConfig
	logger   *logrus.Entry
	now      func() time.Time
}

// Deps bundles the engine's collaborators. Analyzer, Cache and Events may be
// nil; Analyzer is only required for gap-fill runs.
type Deps struct {
	Prices   PriceStore
	Marks    WatermarkStore
	Sessions SessionStore
	Source   provider.Source
	Limiter  RateLimiter
	Analyzer GapAnalyzer
	Cache    SnapshotCache
	Events   EventSink
	Config   *config.SyncConfig
	Logger   *logrus.Logger
}

// New builds an Engine.
func New(d Deps) *Engine {
	return &Engine{
		prices:   d.Prices,
		marks:    d.Marks,
		sessions: d.Sessions,
		source:   d.Source,
		limiter:  d.Limiter,
		analyzer: d.Analyzer,
		cache:    d.Cache,
		events:   d.Events,
		cfg:      d.Config,
		logger:   d.Logger.WithField("component", "sync"),
		now:      time.Now,
	}
}

// runState accumulates per-symbol outcomes and the session counters. The
// mutex covers the pool path; the sequential path runs single-threaded.
type runState struct {
	mu      sync.Mutex
	results []SymbolResult
	fatal   error
}

// Sync runs one session over the requested symbols. Symbols are processed
// independently: one failure never aborts the run. Cancellation is honored
// between symbols and inside the limiter wait; an interrupted session keeps
// its last checkpoint so the next run resumes from the watermarks.
//
// A failed checkpoint write aborts the run: once the session's own
// bookkeeping cannot be persisted the run's accounting is no longer
// trustworthy. The error is returned alongside the report.
func (e *Engine) Sync(ctx context.Context, req Request) (*Report, error) {
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}
	if req.SeriesType == "" {
		req.SeriesType = models.SeriesDailyOHLC
	}
	if req.FillGaps && e.analyzer == nil {
		return nil, fmt.Errorf("gap-fill requested but no analyzer configured")
	}

	session := &models.SyncSession{
		SessionID:        uuid.New().String(),
		SeriesType:       req.SeriesType,
		SymbolsRequested: req.Symbols,
		Status:           models.SessionStatusRunning,
		StartTime:        e.now(),
	}
	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	e.publishSessionEvent(ctx, "started", session)

	e.logger.WithFields(logrus.Fields{
		"session": session.SessionID,
		"symbols": len(req.Symbols),
		"series":  req.SeriesType,
	}).Info("Sync session started")

	state := &runState{}
	if e.cfg.Workers > 1 {
		e.runPool(ctx, req, session, state)
	} else {
		e.runSequential(ctx, req, session, state)
	}

	switch {
	case state.fatal != nil:
		session.Status = models.SessionStatusFailed
	case ctx.Err() != nil:
		session.Status = models.SessionStatusInterrupted
	case session.SymbolsSuccessful == 0:
		session.Status = models.SessionStatusFailed
	default:
		session.Status = models.SessionStatusCompleted
	}
	session.EndTime = e.now()

	// Final checkpoint uses a fresh context so an interrupted run still
	// records where it stopped.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.sessions.CheckpointSession(flushCtx, session); err != nil {
		e.logger.WithError(err).Warn("Failed to write final session checkpoint")
	}
	e.publishSessionEvent(flushCtx, session.Status, session)
	e.snapshotProgress(flushCtx, req.SeriesType, req.Symbols)

	elapsed := session.Elapsed(e.now())
	fields := logrus.Fields{
		"session":    session.SessionID,
		"status":     session.Status,
		"successful": session.SymbolsSuccessful,
		"failed":     session.SymbolsFailed,
		"records":    session.TotalRecordsFetched,
		"api_calls":  session.TotalAPICalls,
		"elapsed":    elapsed.Round(time.Millisecond),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		fields["records_per_sec"] = float64(session.TotalRecordsFetched) / secs
	}
	e.logger.WithFields(fields).Info("Sync session finished")

	return &Report{Session: session, Results: state.results}, state.fatal
}

func (e *Engine) runSequential(ctx context.Context, req Request, session *models.SyncSession, state *runState) {
	for i, symbol := range req.Symbols {
		if ctx.Err() != nil {
			return
		}

		res := e.syncSymbol(ctx, req, symbol)
		state.results = append(state.results, res)
		if err := e.recordResult(ctx, session, res); err != nil {
			state.fatal = err
			return
		}

		if res.Status == ResultSynced && i < len(req.Symbols)-1 && e.cfg.SymbolPause > 0 {
			select {
			case <-time.After(e.cfg.SymbolPause):
			case <-ctx.Done():
			}
		}
	}
}

// runPool fans the symbol list over a bounded worker pool. Workers share one
// limiter, so the aggregate request rate stays within budget regardless of
// pool size.
func (e *Engine) runPool(ctx context.Context, req Request, session *models.SyncSession, state *runState) {
	jobs := make(chan string)
	var wg sync.WaitGroup

	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				state.mu.Lock()
				stop := state.fatal != nil
				state.mu.Unlock()
				if stop || ctx.Err() != nil {
					return
				}

				res := e.syncSymbol(ctx, req, symbol)

				state.mu.Lock()
				state.results = append(state.results, res)
				if err := e.recordResult(ctx, session, res); err != nil && state.fatal == nil {
					state.fatal = err
				}
				state.mu.Unlock()
			}
		}()
	}

	for _, symbol := range req.Symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
}

// syncSymbol processes a single symbol: resolve the fetch range from the
// watermark (or the explicit request), honor the circuit breaker, fetch,
// persist and advance. All failure paths record a watermark error.
func (e *Engine) syncSymbol(ctx context.Context, req Request, symbol string) SymbolResult {
	now := e.now()
	today := models.DateOnly(now)
	log := e.logger.WithField("symbol", symbol)

	w, err := e.marks.GetOrCreateWatermark(ctx, symbol, req.SeriesType, now)
	if err != nil {
		return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: err}
	}

	if w.Tripped() && !req.ForceRefresh {
		log.WithField("error_count", w.ErrorCount).
			Warn("Circuit breaker open, skipping symbol")
		return SymbolResult{Symbol: symbol, Status: ResultSkipped}
	}

	if req.FillGaps {
		return e.fillGaps(ctx, req, symbol, w, today, now, log)
	}

	start, end := e.resolveRange(req, w, today)
	if start.After(end) {
		// Already current; flip to complete without spending an API call.
		if _, err := e.marks.AdvanceWatermark(ctx, symbol, req.SeriesType, w.LatestDate, 0, today, now); err != nil {
			log.WithError(err).Warn("Failed to mark current symbol complete")
		}
		log.Debug("Symbol already current")
		return SymbolResult{Symbol: symbol, Status: ResultCurrent}
	}

	res, err := e.syncRange(ctx, symbol, start, end)
	if err != nil {
		return e.failSymbol(ctx, req, symbol, res, err, now, log.WithFields(logrus.Fields{
			"start": models.FormatDate(start),
			"end":   models.FormatDate(end),
		}))
	}

	updated, err := e.marks.AdvanceWatermark(ctx, symbol, req.SeriesType, res.latest, res.records, end, now)
	if err != nil {
		log.WithError(err).Warn("Failed to advance watermark")
		return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: err, Records: res.records, Calls: res.apiCalls}
	}
	e.publishSymbolEvent(ctx, "synced", symbol, updated)

	log.WithFields(logrus.Fields{
		"records": res.records,
		"latest":  models.FormatDate(updated.LatestDate),
		"status":  updated.FetchStatus,
	}).Info("Symbol synced")
	return SymbolResult{Symbol: symbol, Status: ResultSynced, Records: res.records, Calls: res.apiCalls}
}

// fillGaps resolves the ranges to fetch from the gap analyzer instead of the
// watermark tail: each missing run over the symbol's window costs one
// provider call. A symbol whose coverage already meets the configured
// threshold is classified complete without any call, which absorbs false
// "missing" days produced by the approximate holiday table.
func (e *Engine) fillGaps(ctx context.Context, req Request, symbol string, w models.Watermark, today, now time.Time, log *logrus.Entry) SymbolResult {
	start := models.DateOnly(w.EarliestDate)
	if start.IsZero() {
		start = today.AddDate(0, 0, -e.cfg.LookbackDays)
	}

	analysis, err := e.analyzer.Analyze(ctx, symbol, start, today)
	if err != nil {
		return e.failSymbol(ctx, req, symbol, fetchResult{}, err, now, log)
	}

	if len(analysis.Gaps) == 0 || analysis.CoveragePct >= e.cfg.CompleteCoveragePct {
		// Target the watermark's own latest so the status flips to complete
		// even when the tail has not reached today.
		if _, err := e.marks.AdvanceWatermark(ctx, symbol, req.SeriesType, w.LatestDate, 0, w.LatestDate, now); err != nil {
			log.WithError(err).Warn("Failed to mark covered symbol complete")
		}
		log.WithField("coverage_pct", analysis.CoveragePct).Debug("Coverage already sufficient")
		return SymbolResult{Symbol: symbol, Status: ResultCurrent}
	}

	var total fetchResult
	for _, g := range analysis.Gaps {
		if ctx.Err() != nil {
			return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: ctx.Err(),
				Records: total.records, Calls: total.apiCalls}
		}

		res, err := e.syncRange(ctx, symbol, g.StartDate, g.EndDate)
		total.apiCalls += res.apiCalls
		if err != nil {
			total.records += res.records
			return e.failSymbol(ctx, req, symbol, total, err, now, log.WithFields(logrus.Fields{
				"gap_start": models.FormatDate(g.StartDate),
				"gap_end":   models.FormatDate(g.EndDate),
			}))
		}
		total.records += res.records
		if res.latest.After(total.latest) {
			total.latest = res.latest
		}
	}

	updated, err := e.marks.AdvanceWatermark(ctx, symbol, req.SeriesType, total.latest, total.records, today, now)
	if err != nil {
		log.WithError(err).Warn("Failed to advance watermark")
		return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: err, Records: total.records, Calls: total.apiCalls}
	}
	e.publishSymbolEvent(ctx, "synced", symbol, updated)

	log.WithFields(logrus.Fields{
		"gaps":    len(analysis.Gaps),
		"records": total.records,
	}).Info("Gaps filled")
	return SymbolResult{Symbol: symbol, Status: ResultSynced, Records: total.records, Calls: total.apiCalls}
}

// failSymbol records a watermark error for a failed fetch and builds the
// failed result. Context cancellation is not recorded against the symbol.
func (e *Engine) failSymbol(ctx context.Context, req Request, symbol string, res fetchResult, cause error, now time.Time, log *logrus.Entry) SymbolResult {
	if ctx.Err() != nil {
		return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: ctx.Err(),
			Records: res.records, Calls: res.apiCalls}
	}

	updated, err := e.marks.RecordWatermarkError(ctx, symbol, req.SeriesType, cause.Error(), now)
	if err != nil {
		log.WithError(err).Warn("Failed to record watermark error")
	} else {
		e.publishSymbolEvent(ctx, "failed", symbol, updated)
	}

	log.WithError(cause).Warn("Symbol sync failed")
	return SymbolResult{Symbol: symbol, Status: ResultFailed, Err: cause,
		Records: res.records, Calls: res.apiCalls}
}

// resolveRange picks the fetch window for a symbol. Explicit request dates
// win; otherwise the run resumes from the day after the watermark up to
// today.
func (e *Engine) resolveRange(req Request, w models.Watermark, today time.Time) (time.Time, time.Time) {
	if !req.StartDate.IsZero() {
		end := models.DateOnly(req.EndDate)
		if end.IsZero() {
			end = today
		}
		return models.DateOnly(req.StartDate), end
	}

	start := models.DateOnly(w.LatestDate).AddDate(0, 0, 1)
	if w.TotalRecords == 0 {
		// Never fetched; start at the horizon itself rather than the day
		// after it.
		start = models.DateOnly(w.EarliestDate)
	}
	return start, today
}

// recordResult folds a symbol outcome into the running session and writes a
// checkpoint every few symbols. A checkpoint write failure is returned so
// the run aborts (see Sync). Pool callers hold the state mutex.
func (e *Engine) recordResult(ctx context.Context, session *models.SyncSession, res SymbolResult) error {
	session.SymbolsProcessed++
	switch res.Status {
	case ResultSynced, ResultCurrent:
		session.SymbolsSuccessful++
	default:
		session.SymbolsFailed++
	}
	session.TotalRecordsFetched += res.Records
	session.TotalAPICalls += res.Calls

	if e.cfg.CheckpointEvery > 0 && session.SymbolsProcessed%e.cfg.CheckpointEvery == 0 {
		if err := e.sessions.CheckpointSession(ctx, session); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session checkpoint failed: %w", err)
		}
		e.publishSessionEvent(ctx, "checkpoint", session)
		e.snapshotProgress(ctx, session.SeriesType, session.SymbolsRequested)
	}
	return nil
}

// Progress returns the operator-facing view of the requested symbols'
// watermarks and refreshes the snapshot cache.
func (e *Engine) Progress(ctx context.Context, seriesType string, symbols []string) ([]models.ProgressEntry, error) {
	if seriesType == "" {
		seriesType = models.SeriesDailyOHLC
	}
	marks, err := e.marks.ListWatermarks(ctx, seriesType, symbols)
	if err != nil {
		return nil, err
	}

	today := models.DateOnly(e.now())
	entries := make([]models.ProgressEntry, 0, len(marks))
	for _, w := range marks {
		entries = append(entries, w.Progress(today))
	}

	if e.cache != nil {
		if err := e.cache.StoreProgress(ctx, seriesType, entries); err != nil {
			e.logger.WithError(err).Warn("Failed to cache progress snapshot")
		}
	}
	return entries, nil
}

// Reset clears the failure history for the given symbols so they are retried
// on the next run.
func (e *Engine) Reset(ctx context.Context, seriesType string, symbols []string) error {
	if seriesType == "" {
		seriesType = models.SeriesDailyOHLC
	}
	now := e.now()
	for _, symbol := range symbols {
		if _, err := e.marks.ResetWatermark(ctx, symbol, seriesType, now); err != nil {
			return fmt.Errorf("failed to reset %s: %w", symbol, err)
		}
		e.logger.WithField("symbol", symbol).Info("Watermark reset")
	}
	return nil
}

func (e *Engine) snapshotProgress(ctx context.Context, seriesType string, symbols []string) {
	if e.cache == nil {
		return
	}
	if _, err := e.Progress(ctx, seriesType, symbols); err != nil {
		e.logger.WithError(err).Warn("Failed to refresh progress snapshot")
	}
}

func (e *Engine) publishSessionEvent(ctx context.Context, event string, s *models.SyncSession) {
	if e.events == nil {
		return
	}
	if err := e.events.SessionEvent(ctx, event, s); err != nil {
		e.logger.WithError(err).WithField("event", event).Debug("Failed to publish session event")
	}
}

func (e *Engine) publishSymbolEvent(ctx context.Context, event, symbol string, w models.Watermark) {
	if e.events == nil {
		return
	}
	if err := e.events.SymbolEvent(ctx, event, symbol, w); err != nil {
		e.logger.WithError(err).WithField("event", event).Debug("Failed to publish symbol event")
	}
}
