package collector

import (
	"context"
	"sort"
	"strings"
	"time"

	"StockDashboard/internal/model"
)

// Fetcher retrieves daily bars and quote snapshots from a market data provider.
// Provider failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (*model.Series, error)
	FetchQuote(ctx context.Context, symbol string) (*model.QuoteSnapshot, error)
	Name() string
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// newSeries sorts bars by date, keeps the last bar of any duplicated date and
// drops bars outside [start, end].
func newSeries(symbol string, start, end time.Time, bars []model.OHLCV) *model.Series {
	start, end = model.Day(start), model.Day(end)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	points := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		b.Date = model.Day(b.Date)
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		if n := len(points); n > 0 && points[n-1].Date.Equal(b.Date) {
			points[n-1] = b
			continue
		}
		points = append(points, b)
	}
	return &model.Series{Symbol: symbol, Start: start, End: end, Points: points}
}
