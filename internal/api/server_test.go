package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	syncengine "github.com/stocksync/internal/sync"
	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

type fakeMarkStore struct {
	marks     []models.Watermark
	requested [][]string
}

func (f *fakeMarkStore) GetOrCreateWatermark(_ context.Context, symbol, series string, now time.Time) (models.Watermark, error) {
	return models.NewWatermark(symbol, series, now), nil
}

func (f *fakeMarkStore) AdvanceWatermark(_ context.Context, _, _ string, _ time.Time, _ int64, _, _ time.Time) (models.Watermark, error) {
	return models.Watermark{}, nil
}

func (f *fakeMarkStore) RecordWatermarkError(_ context.Context, _, _, _ string, _ time.Time) (models.Watermark, error) {
	return models.Watermark{}, nil
}

func (f *fakeMarkStore) ResetWatermark(_ context.Context, _, _ string, _ time.Time) (models.Watermark, error) {
	return models.Watermark{}, nil
}

func (f *fakeMarkStore) ListWatermarks(_ context.Context, _ string, symbols []string) ([]models.Watermark, error) {
	f.requested = append(f.requested, symbols)
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []models.Watermark
	for _, w := range f.marks {
		if len(symbols) == 0 || want[w.Symbol] {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeSnapshots struct {
	entries []models.ProgressEntry
	err     error
}

func (f *fakeSnapshots) GetProgress(_ context.Context, _ string, _ []string) ([]models.ProgressEntry, error) {
	return f.entries, f.err
}

type progressResponse struct {
	Count   int                    `json:"count"`
	Entries []models.ProgressEntry `json:"entries"`
}

func testServer(t *testing.T, marks *fakeMarkStore, snapshots SnapshotReader) *Server {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	engine := syncengine.New(syncengine.Deps{
		Marks:  marks,
		Config: &config.SyncConfig{},
		Logger: log,
	})

	s := NewServer(&config.Config{}, log, nil, nil, nil, engine, nil)
	s.snapshots = snapshots
	return s
}

func getProgress(t *testing.T, s *Server, url string) progressResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestProgressServedFromSnapshotWithStoreFallback(t *testing.T) {
	marks := &fakeMarkStore{marks: []models.Watermark{
		{Symbol: "AAPL", SeriesType: models.SeriesDailyOHLC, FetchStatus: models.FetchStatusActive, TotalRecords: 1},
		{Symbol: "MSFT", SeriesType: models.SeriesDailyOHLC, FetchStatus: models.FetchStatusActive, TotalRecords: 2},
	}}
	// Snapshot covers AAPL only; MSFT must come from the watermark store.
	snapshots := &fakeSnapshots{entries: []models.ProgressEntry{
		{Symbol: "AAPL", Status: models.FetchStatusComplete, TotalRecords: 99},
	}}

	s := testServer(t, marks, snapshots)
	resp := getProgress(t, s, "/api/v1/progress?symbols=AAPL,MSFT")

	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	byCount := map[string]int64{}
	for _, e := range resp.Entries {
		byCount[e.Symbol] = e.TotalRecords
	}
	// AAPL carries the cached value, proving it was not re-read from the
	// store.
	if byCount["AAPL"] != 99 || byCount["MSFT"] != 2 {
		t.Fatalf("entries = %v", byCount)
	}
	if len(marks.requested) != 1 || len(marks.requested[0]) != 1 || marks.requested[0][0] != "MSFT" {
		t.Fatalf("store queried with %v, want only the snapshot miss", marks.requested)
	}
}

func TestProgressSnapshotErrorFallsBackToStore(t *testing.T) {
	marks := &fakeMarkStore{marks: []models.Watermark{
		{Symbol: "AAPL", SeriesType: models.SeriesDailyOHLC, FetchStatus: models.FetchStatusActive, TotalRecords: 1},
	}}
	snapshots := &fakeSnapshots{err: errors.New("redis down")}

	s := testServer(t, marks, snapshots)
	resp := getProgress(t, s, "/api/v1/progress?symbols=AAPL")

	if resp.Count != 1 || resp.Entries[0].Symbol != "AAPL" || resp.Entries[0].TotalRecords != 1 {
		t.Fatalf("entries = %v", resp.Entries)
	}
}

func TestProgressUnfilteredBypassesSnapshot(t *testing.T) {
	marks := &fakeMarkStore{marks: []models.Watermark{
		{Symbol: "AAPL", SeriesType: models.SeriesDailyOHLC, FetchStatus: models.FetchStatusActive, TotalRecords: 1},
	}}
	// A snapshot hit here would be wrong: the cache cannot enumerate every
	// tracked symbol.
	snapshots := &fakeSnapshots{entries: []models.ProgressEntry{
		{Symbol: "STALE", TotalRecords: 42},
	}}

	s := testServer(t, marks, snapshots)
	resp := getProgress(t, s, "/api/v1/progress")

	if resp.Count != 1 || resp.Entries[0].Symbol != "AAPL" {
		t.Fatalf("entries = %v", resp.Entries)
	}
}
