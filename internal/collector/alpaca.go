package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"StockDashboard/internal/model"
)

// alpacaMarketData is the subset of *marketdata.Client used by AlpacaFetcher.
type alpacaMarketData interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market data API.
type AlpacaFetcher struct {
	client alpacaMarketData
	feed   marketdata.Feed
	logger zerolog.Logger
	now    func() time.Time
}

// NewAlpacaFetcher creates a fetcher authenticated with the given key pair.
// An empty feed selects the free IEX feed.
func NewAlpacaFetcher(apiKey, apiSecret, baseURL, feed string) *AlpacaFetcher {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return newAlpacaFetcher(client, feed)
}

func newAlpacaFetcher(client alpacaMarketData, feed string) *AlpacaFetcher {
	f := marketdata.Feed(feed)
	if f == "" {
		f = marketdata.IEX
	}
	return &AlpacaFetcher{
		client: client,
		feed:   f,
		logger: log.With().Str("component", "alpaca").Logger(),
		now:    time.Now,
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

// Fetch returns split and dividend adjusted daily bars within [start, end].
func (f *AlpacaFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (*model.Series, error) {
	start, end = model.Day(start), model.Day(end)
	if start.After(end) {
		f.logger.Warn().Str("symbol", symbol).Time("start", start).Time("end", end).Msg("start after end, returning empty series")
		return newSeries(symbol, start, end, nil), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(NetworkFailure, symbol, err)
	}

	raw, err := f.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Feed:       f.feed,
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("symbol", symbol).Msg("get bars failed")
		return nil, classifyAlpacaError(symbol, err)
	}

	bars := make([]model.OHLCV, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, model.OHLCV{
			Date:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	f.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("fetched daily bars")
	return newSeries(symbol, start, end, bars), nil
}

// FetchQuote derives the quote from the latest trade and the previous daily bar.
func (f *AlpacaFetcher) FetchQuote(ctx context.Context, symbol string) (*model.QuoteSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(NetworkFailure, symbol, err)
	}
	snap, err := f.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: f.feed})
	if err != nil {
		f.logger.Warn().Err(err).Str("symbol", symbol).Msg("get snapshot failed")
		return nil, classifyAlpacaError(symbol, err)
	}
	if snap == nil {
		return nil, newFetchError(NotFound, symbol, errors.New("alpaca: no snapshot returned"))
	}

	q := &model.QuoteSnapshot{
		Symbol:      symbol,
		DisplayName: symbol,
		Currency:    "USD",
		FetchedAt:   f.now(),
	}
	switch {
	case snap.LatestTrade != nil:
		q.LastPrice = decimal.NewNullDecimal(decimal.NewFromFloat(snap.LatestTrade.Price))
	case snap.DailyBar != nil:
		q.LastPrice = decimal.NewNullDecimal(decimal.NewFromFloat(snap.DailyBar.Close))
	}
	if snap.PrevDailyBar != nil {
		q.FillChange(decimal.NewNullDecimal(decimal.NewFromFloat(snap.PrevDailyBar.Close)))
	}
	if info, err := json.Marshal(snap); err == nil {
		q.Info = info
	}
	return q, nil
}

func classifyAlpacaError(symbol string, err error) *FetchError {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(NetworkFailure, symbol, err)
	}

	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusNotFound, code == http.StatusUnprocessableEntity:
			return newFetchError(NotFound, symbol, err)
		case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return newFetchError(NetworkFailure, symbol, err)
		default:
			return newFetchError(UpstreamMalformed, symbol, err)
		}
	}

	// non-JSON error bodies come back as plain "<body> (HTTP <code>)" errors
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "invalid symbol"):
		return newFetchError(NotFound, symbol, err)
	case strings.Contains(msg, "(http 5"), strings.Contains(msg, "(http 429)"):
		return newFetchError(NetworkFailure, symbol, err)
	default:
		return newFetchError(UpstreamMalformed, symbol, err)
	}
}
