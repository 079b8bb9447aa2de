package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/stocksync/pkg/models"
)

// Source is the external daily-bar data source. Implementations return the
// bars for [start, end] inclusive, an empty slice when the provider
// genuinely has no data for the range, and a *ProviderError on transport or
// authorization failure.
type Source interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
}

// ProviderError describes a transport-level failure talking to the external
// data provider.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: %v", e.Endpoint, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
