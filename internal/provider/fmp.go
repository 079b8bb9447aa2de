package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

// FMPClient fetches daily historical bars from the Financial Modeling Prep
// API. It is a stateless request/response mapper; rate limiting and retry
// policy live with the caller.
type FMPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// fmpHistoricalResponse mirrors the historical-price-full payload.
type fmpHistoricalResponse struct {
	Symbol     string     `json:"symbol"`
	Historical []fmpPrice `json:"historical"`
}

type fmpPrice struct {
	Date             string  `json:"date"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	AdjClose         float64 `json:"adjClose"`
	Volume           int64   `json:"volume"`
	UnadjustedVolume int64   `json:"unadjustedVolume"`
	Change           float64 `json:"change"`
	ChangePercent    float64 `json:"changePercent"`
	VWAP             float64 `json:"vwap"`
	Label            string  `json:"label"`
	ChangeOverTime   float64 `json:"changeOverTime"`
}

// NewFMPClient creates a new FMP API client.
func NewFMPClient(cfg *config.ProviderConfig, logger *logrus.Logger) *FMPClient {
	return &FMPClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger.WithField("component", "fmp"),
	}
}

// FetchDaily fetches daily bars for a symbol over [start, end] inclusive.
// An empty range at the provider yields (nil, nil), not an error.
func (c *FMPClient) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	endpoint := fmt.Sprintf("%s/historical-price-full/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ProviderError{Endpoint: "historical-price-full", Err: err}
	}

	q := req.URL.Query()
	q.Set("from", models.FormatDate(start))
	q.Set("to", models.FormatDate(end))
	q.Set("apikey", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Endpoint: "historical-price-full", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Endpoint: "historical-price-full", StatusCode: resp.StatusCode}
	}

	var payload fmpHistoricalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ProviderError{Endpoint: "historical-price-full", Err: fmt.Errorf("decoding response: %w", err)}
	}

	bars := make([]models.PriceBar, 0, len(payload.Historical))
	for _, p := range payload.Historical {
		d, err := models.ParseDate(p.Date)
		if err != nil {
			c.logger.WithError(err).WithField("symbol", symbol).Warn("Skipping bar with unparseable date")
			continue
		}
		bars = append(bars, models.PriceBar{
			Symbol:           symbol,
			Date:             d,
			Open:             p.Open,
			High:             p.High,
			Low:              p.Low,
			Close:            p.Close,
			AdjClose:         p.AdjClose,
			Volume:           p.Volume,
			UnadjustedVolume: p.UnadjustedVolume,
			Change:           p.Change,
			ChangePercent:    p.ChangePercent,
			VWAP:             p.VWAP,
			Label:            p.Label,
			ChangeOverTime:   p.ChangeOverTime,
		})
	}

	// FMP returns newest-first; callers expect ascending dates.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return bars, nil
}
