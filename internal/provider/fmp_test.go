package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

func newTestClient(serverURL string) *FMPClient {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewFMPClient(&config.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	}, logger)
}

func TestFetchDailyParsesAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		if got := r.URL.Query().Get("from"); got != "2024-01-08" {
			t.Errorf("from = %q", got)
		}
		w.Write([]byte(`{
			"symbol": "AAPL",
			"historical": [
				{"date": "2024-01-10", "open": 184.35, "high": 186.4, "low": 183.92, "close": 186.19, "adjClose": 185.7, "volume": 46792900, "vwap": 185.5},
				{"date": "2024-01-09", "open": 183.92, "high": 185.15, "low": 182.73, "close": 185.14, "adjClose": 184.65, "volume": 42841800, "vwap": 184.2},
				{"date": "not-a-date", "open": 1, "close": 1},
				{"date": "2024-01-08", "open": 182.09, "high": 185.6, "low": 181.5, "close": 185.56, "adjClose": 185.07, "volume": 59144500, "vwap": 184.1}
			]
		}`))
	}))
	defer srv.Close()

	bars, err := newTestClient(srv.URL).FetchDaily(context.Background(),
		"AAPL", mustDate(t, "2024-01-08"), mustDate(t, "2024-01-10"))
	if err != nil {
		t.Fatal(err)
	}

	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3 (malformed row skipped)", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			t.Fatal("bars not sorted ascending by date")
		}
	}
	if bars[0].Symbol != "AAPL" || bars[0].Close != 185.56 {
		t.Errorf("first bar = %+v", bars[0])
	}
}

func TestFetchDailyEmptyRangeIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "AAPL", "historical": []}`))
	}))
	defer srv.Close()

	bars, err := newTestClient(srv.URL).FetchDaily(context.Background(),
		"AAPL", mustDate(t, "2024-01-06"), mustDate(t, "2024-01-07"))
	if err != nil {
		t.Fatalf("empty range should not error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("got %d bars, want 0", len(bars))
	}
}

func TestFetchDailyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchDaily(context.Background(),
		"AAPL", mustDate(t, "2024-01-08"), mustDate(t, "2024-01-10"))

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", perr.StatusCode)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
