package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"StockDashboard/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price    float64
	Bars     []model.OHLCV
	Quote    *model.QuoteSnapshot
	Err      error
	QuoteErr error

	calls      atomic.Int64
	quoteCalls atomic.Int64
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many times Fetch has been invoked.
func (m *MockFetcher) Calls() int64 { return m.calls.Load() }

// QuoteCalls returns how many times FetchQuote has been invoked.
func (m *MockFetcher) QuoteCalls() int64 { return m.quoteCalls.Load() }

func (m *MockFetcher) Fetch(_ context.Context, symbol string, start, end time.Time) (*model.Series, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	bars := m.Bars
	if bars == nil {
		bars = generateMockBars(m.Price, start, end)
	} else {
		bars = append([]model.OHLCV(nil), bars...)
	}
	return newSeries(symbol, start, end, bars), nil
}

func (m *MockFetcher) FetchQuote(_ context.Context, symbol string) (*model.QuoteSnapshot, error) {
	m.quoteCalls.Add(1)
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	if m.Quote != nil {
		q := *m.Quote
		return &q, nil
	}
	price := m.Price
	prev := m.Price * 0.99
	q := &model.QuoteSnapshot{Symbol: symbol, DisplayName: symbol, LastPrice: model.NewNullDecimal(&price)}
	q.FillChange(model.NewNullDecimal(&prev))
	return q, nil
}

// generateMockBars produces one bar per weekday in [start, end].
func generateMockBars(basePrice float64, start, end time.Time) []model.OHLCV {
	var bars []model.OHLCV
	i := 0
	for d := model.Day(start); !d.After(model.Day(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := basePrice * (1 + float64(i%40-20)*0.001)
		bars = append(bars, model.OHLCV{
			Date:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
		i++
	}
	return bars
}

// Collector wraps a provider and enforces the Fetcher contract: symbols are
// normalized and every failure surfaces as a *FetchError, including panics
// raised by the provider.
type Collector struct {
	Fetcher Fetcher
	logger  zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher) *Collector {
	return &Collector{
		Fetcher: fetcher,
		logger:  log.With().Str("component", "collector").Str("provider", fetcher.Name()).Logger(),
	}
}

func (c *Collector) Name() string { return c.Fetcher.Name() }

// Fetch retrieves daily bars for symbol in [start, end].
func (c *Collector) Fetch(ctx context.Context, symbol string, start, end time.Time) (series *model.Series, err error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	defer c.recoverPanic(symbol, &err)

	series, err = c.Fetcher.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, c.classify(symbol, err)
	}
	if series == nil {
		series = newSeries(symbol, start, end, nil)
	}
	series.Symbol = symbol
	c.logger.Info().Str("symbol", symbol).Int("bars", series.Len()).Msg("series fetched")
	return series, nil
}

// FetchQuote retrieves a best-effort quote snapshot for symbol.
func (c *Collector) FetchQuote(ctx context.Context, symbol string) (quote *model.QuoteSnapshot, err error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	defer c.recoverPanic(symbol, &err)

	quote, err = c.Fetcher.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, c.classify(symbol, err)
	}
	if quote == nil {
		return nil, newFetchError(NotFound, symbol, fmt.Errorf("%s returned no quote", c.Fetcher.Name()))
	}
	if quote.DisplayName == "" {
		quote.DisplayName = symbol
	}
	quote.Symbol = symbol
	return quote, nil
}

func (c *Collector) classify(symbol string, err error) error {
	if _, ok := KindOf(err); ok {
		return err
	}
	c.logger.Warn().Err(err).Str("symbol", symbol).Msg("unclassified provider error")
	return newFetchError(NetworkFailure, symbol, err)
}

func (c *Collector) recoverPanic(symbol string, err *error) {
	if r := recover(); r != nil {
		c.logger.Error().Interface("panic", r).Str("symbol", symbol).Msg("provider panicked")
		*err = newFetchError(UpstreamMalformed, symbol, fmt.Errorf("provider panic: %v", r))
	}
}
