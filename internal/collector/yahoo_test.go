package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockDashboard/internal/model"
)

const chartFixture = `{"chart":{"result":[{
  "meta":{"currency":"USD","symbol":"AAPL","shortName":"Apple Inc.","gmtoffset":-18000,
          "regularMarketPrice":185.5,"chartPreviousClose":184.25},
  "timestamp":[1704205800,1704292200,1704378600,1704465000],
  "indicators":{
    "quote":[{"open":[187.15,184.22,182.15,null],"high":[188.44,185.88,183.09,null],
              "low":[183.89,183.43,180.88,null],"close":[185.64,184.25,181.91,null],
              "volume":[82488700,58414500,71983600,null]}],
    "adjclose":[{"adjclose":[184.0,182.5,180.2,null]}]}
}],"error":null}}`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestYahoo(t *testing.T, handler http.HandlerFunc) (*YahooFetcher, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	f := NewYahooFetcher(srv.URL, "", 5*time.Second)
	f.Retry = RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxElapsedTime: time.Second}
	return f, &hits
}

func TestYahooFetcher_Fetch(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1704067200", r.URL.Query().Get("period1"))
		assert.Equal(t, "1704499200", r.URL.Query().Get("period2"))
		_, _ = w.Write([]byte(chartFixture))
	})

	series, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	require.Equal(t, 3, series.Len())

	first := series.Points[0]
	assert.Equal(t, day(2024, 1, 2), first.Date)
	assert.InDelta(t, 184.0, first.Close, 1e-9)
	assert.InDelta(t, 187.15*184.0/185.64, first.Open, 1e-9)
	assert.InDelta(t, 188.44*184.0/185.64, first.High, 1e-9)
	assert.InDelta(t, 183.89*184.0/185.64, first.Low, 1e-9)
	assert.Equal(t, int64(82488700), first.Volume)
	assert.Equal(t, day(2024, 1, 4), series.Points[2].Date)
}

func TestYahooFetcher_ClipsToRequestedRange(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartFixture))
	})

	series, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 3), day(2024, 1, 3))
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, day(2024, 1, 3), series.Points[0].Date)
}

func TestYahooFetcher_UnknownSymbol(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	_, err := f.Fetch(context.Background(), "ZZZZINVALID", day(2024, 1, 1), day(2024, 1, 31))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = f.FetchQuote(context.Background(), "ZZZZINVALID")
	assert.True(t, IsNotFound(err))
}

func TestYahooFetcher_ChartErrorInBody(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`))
	})

	_, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, UpstreamMalformed, kind)
}

func TestYahooFetcher_MalformedBody(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>nope</html>`))
	})

	_, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, UpstreamMalformed, kind)
}

func TestYahooFetcher_MisalignedColumns(t *testing.T) {
	body := strings.Replace(chartFixture, `"close":[185.64,184.25,181.91,null]`, `"close":[185.64]`, 1)
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	_, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	kind, _ := KindOf(err)
	assert.Equal(t, UpstreamMalformed, kind)
}

func TestYahooFetcher_RetriesServerErrors(t *testing.T) {
	f, hits := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, NetworkFailure, kind)
	assert.Equal(t, int32(3), hits.Load())
}

func TestYahooFetcher_RecoversAfterTransientError(t *testing.T) {
	var n atomic.Int32
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(chartFixture))
	})

	series, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, series.Len())
}

func TestYahooFetcher_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	f := NewYahooFetcher(srv.URL, "", time.Second)
	f.Retry = RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond}

	_, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, NetworkFailure, kind)
}

func TestYahooFetcher_StartAfterEnd(t *testing.T) {
	f, hits := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartFixture))
	})

	series, err := f.Fetch(context.Background(), "AAPL", day(2024, 2, 1), day(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, series.Empty())
	assert.Equal(t, int32(0), hits.Load())
}

func TestYahooFetcher_NoBarsInRange(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL"},"indicators":{"quote":[{}]}}],"error":null}}`))
	})

	series, err := f.Fetch(context.Background(), "AAPL", day(2024, 1, 6), day(2024, 1, 7))
	require.NoError(t, err)
	assert.True(t, series.Empty())
}

func TestYahooFetcher_FetchQuote(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		_, _ = w.Write([]byte(chartFixture))
	})
	f.now = func() time.Time { return day(2024, 1, 5) }

	q, err := f.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", q.DisplayName)
	assert.Equal(t, "USD", q.Currency)
	require.True(t, q.LastPrice.Valid)
	assert.Equal(t, "185.5", q.LastPrice.Decimal.String())
	require.True(t, q.Change.Valid)
	assert.Equal(t, "1.25", q.Change.Decimal.String())
	require.True(t, q.ChangePercent.Valid)
	assert.InDelta(t, 1.25/184.25*100, q.ChangePercent.Decimal.InexactFloat64(), 1e-9)
	assert.Contains(t, string(q.Info), "Apple Inc.")
	assert.Equal(t, day(2024, 1, 5), q.FetchedAt)
}

func TestYahooFetcher_FetchQuotePartial(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"XYZ"}}],"error":null}}`))
	})

	q, err := f.FetchQuote(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", q.DisplayName)
	assert.False(t, q.LastPrice.Valid)
	assert.False(t, q.Change.Valid)
	assert.False(t, q.ChangePercent.Valid)
}

func TestYahooFetcher_SymbolMap(t *testing.T) {
	f, _ := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/^GSPC", r.URL.Path)
		_, _ = w.Write([]byte(chartFixture))
	})

	_, err := f.FetchQuote(context.Background(), "SPX")
	require.NoError(t, err)
}

func TestChartBars_SkipsNullBars(t *testing.T) {
	var result yahooResult
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":[0,86400],"indicators":{"quote":[{
		"open":[10,null],"high":[10,null],"low":[10,null],"close":[10,null],"volume":[null,null]}]}}`), &result))

	bars, err := chartBars(&result, 0)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, model.Day(time.Unix(0, 0)), bars[0].Date)
	assert.Equal(t, 10.0, bars[0].Close)
	assert.Equal(t, int64(0), bars[0].Volume)
}
