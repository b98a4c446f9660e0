package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"StockDashboard/internal/model"
)

// DefaultYahooBaseURL is the public Yahoo Finance chart host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	Retry     RetryPolicy
	SymbolMap map[string]string // maps dashboard symbol to Yahoo ticker

	logger zerolog.Logger
	now    func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(baseURL, proxyURL string, timeout time.Duration) *YahooFetcher {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooFetcher{
		BaseURL: baseURL,
		Client:  NewHTTPClient(proxyURL, timeout),
		Retry:   DefaultRetryPolicy,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
		logger: log.With().Str("component", "yahoo").Logger(),
		now:    time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooResult struct {
	Meta       json.RawMessage `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type yahooMeta struct {
	Symbol             string   `json:"symbol"`
	Currency           string   `json:"currency"`
	ShortName          string   `json:"shortName"`
	LongName           string   `json:"longName"`
	GMTOffset          int64    `json:"gmtoffset"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"previousClose"`
	ChartPreviousClose *float64 `json:"chartPreviousClose"`
}

// Fetch returns split and dividend adjusted daily bars within [start, end].
func (f *YahooFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (*model.Series, error) {
	start, end = model.Day(start), model.Day(end)
	if start.After(end) {
		f.logger.Warn().Str("symbol", symbol).Time("start", start).Time("end", end).Msg("start after end, returning empty series")
		return newSeries(symbol, start, end, nil), nil
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=%s&includeAdjustedClose=true",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), start.Unix(), end.AddDate(0, 0, 1).Unix(), url.QueryEscape("div|split"))

	result, meta, err := f.fetchChart(ctx, symbol, u)
	if err != nil {
		return nil, err
	}
	bars, err := chartBars(result, meta.GMTOffset)
	if err != nil {
		return nil, newFetchError(UpstreamMalformed, symbol, err)
	}
	f.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("fetched daily bars")
	return newSeries(symbol, start, end, bars), nil
}

// FetchQuote reads the latest price, previous close and names from the chart metadata.
func (f *YahooFetcher) FetchQuote(ctx context.Context, symbol string) (*model.QuoteSnapshot, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)))

	result, meta, err := f.fetchChart(ctx, symbol, u)
	if err != nil {
		return nil, err
	}

	q := &model.QuoteSnapshot{
		Symbol:      symbol,
		DisplayName: symbol,
		LastPrice:   model.NewNullDecimal(meta.RegularMarketPrice),
		Currency:    meta.Currency,
		FetchedAt:   f.now(),
		Info:        result.Meta,
	}
	if meta.ShortName != "" {
		q.DisplayName = meta.ShortName
	} else if meta.LongName != "" {
		q.DisplayName = meta.LongName
	}
	prev := meta.PreviousClose
	if prev == nil {
		prev = meta.ChartPreviousClose
	}
	q.FillChange(model.NewNullDecimal(prev))
	return q, nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, endpoint string) (*yahooResult, *yahooMeta, error) {
	body, err := getWithRetry(ctx, f.Client, endpoint, f.Retry, f.logger)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			f.logger.Info().Str("symbol", symbol).Msg("symbol not found")
		} else {
			f.logger.Warn().Err(err).Str("symbol", symbol).Msg("chart request failed")
		}
		return nil, nil, classifyHTTPError(symbol, err)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, nil, newFetchError(UpstreamMalformed, symbol, fmt.Errorf("yahoo decode: %w", err))
	}
	if chart.Chart.Error != nil {
		apiErr := fmt.Errorf("yahoo api error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
		if chart.Chart.Error.Code == "Not Found" {
			return nil, nil, newFetchError(NotFound, symbol, apiErr)
		}
		return nil, nil, newFetchError(UpstreamMalformed, symbol, apiErr)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil, newFetchError(NotFound, symbol, errors.New("yahoo: no data returned"))
	}

	result := &chart.Chart.Result[0]
	meta := &yahooMeta{}
	if len(result.Meta) > 0 {
		if err := json.Unmarshal(result.Meta, meta); err != nil {
			return nil, nil, newFetchError(UpstreamMalformed, symbol, fmt.Errorf("yahoo decode meta: %w", err))
		}
	}
	return result, meta, nil
}

// chartBars converts the columnar chart payload into bars, scaling open, high
// and low by the adjusted-close ratio. Bars with a missing price are skipped.
func chartBars(result *yahooResult, gmtOffset int64) ([]model.OHLCV, error) {
	n := len(result.Timestamp)
	if n == 0 {
		return nil, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, errors.New("yahoo: quote indicators missing")
	}
	quote := result.Indicators.Quote[0]
	for name, col := range map[string][]*float64{
		"open": quote.Open, "high": quote.High, "low": quote.Low, "close": quote.Close, "volume": quote.Volume,
	} {
		if len(col) != n {
			return nil, fmt.Errorf("yahoo: %s has %d values, want %d", name, len(col), n)
		}
	}
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
		if len(adj) != n {
			return nil, fmt.Errorf("yahoo: adjclose has %d values, want %d", len(adj), n)
		}
	}

	bars := make([]model.OHLCV, 0, n)
	for i, ts := range result.Timestamp {
		o, h, l, c := quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i]
		if o == nil || h == nil || l == nil || c == nil {
			continue // skip null bars (holidays etc.)
		}
		factor := 1.0
		if adj != nil && adj[i] != nil && *c != 0 {
			factor = *adj[i] / *c
		}
		var volume int64
		if v := quote.Volume[i]; v != nil && *v > 0 {
			volume = int64(*v)
		}
		bars = append(bars, model.OHLCV{
			Date:   time.Unix(ts+gmtOffset, 0).UTC(),
			Open:   *o * factor,
			High:   *h * factor,
			Low:    *l * factor,
			Close:  *c * factor,
			Volume: volume,
		})
	}
	return bars, nil
}
