package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/config"
	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/model"
	"StockDashboard/internal/scheduler"
)

var testNow = time.Date(2024, time.March, 29, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mock *collector.MockFetcher, withRefresher bool) *Server {
	t.Helper()
	cfg := config.Default()
	fetcher := collector.NewCollector(mock)
	svc := dashboard.NewService(fetcher, cfg.Dashboard.SummaryRows, cfg.Dashboard.TableRows)
	hub := NewHub()

	deps := Deps{Config: cfg, Runner: svc, Fetcher: fetcher, Hub: hub}
	if withRefresher {
		r := scheduler.NewRefresher(context.Background(), svc, hub.Publish, nil)
		t.Cleanup(func() { _ = r.SetInterval(0) })
		deps.Refresher = r
	}
	s := New(deps)
	s.now = func() time.Time { return testNow }
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)

	rec := do(t, s, http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mock", body["provider"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc123", rec.Header().Get(requestIDHeader))
}

func TestGetConfig(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)

	rec := do(t, s, http.MethodGet, "/api/config", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2024-03-29", body["end"])
	assert.Equal(t, "2023-03-30", body["start"])
	assert.Contains(t, body["tickers"], "AAPL")
	assert.EqualValues(t, config.MaxRefreshSeconds, body["max_refresh_seconds"])
}

func TestGetBundle(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/bundle?symbol=aapl&start=2024-01-01&end=2024-03-29&sma=true&ema=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, mock.QuoteCalls())
	var resp struct {
		Notice string `json:"notice"`
		Bundle struct {
			Title string `json:"title"`
		} `json:"bundle"`
		Chart chartResponse `json:"chart"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Empty(t, resp.Notice)
	assert.Equal(t, "AAPL Price Chart", resp.Bundle.Title)
	assert.Equal(t, "Date", resp.Chart.XLabel)
	assert.Equal(t, "Price (USD)", resp.Chart.YLabel)
	require.Len(t, resp.Chart.Lines, 3)
	assert.Equal(t, model.PriceLineName, resp.Chart.Lines[0].Name)
	assert.Equal(t, "SMA 20", resp.Chart.Lines[1].Name)
	assert.Equal(t, "EMA 20", resp.Chart.Lines[2].Name)

	closes := len(resp.Chart.Lines[0].Points)
	require.Greater(t, closes, 20)
	assert.Len(t, resp.Chart.Lines[1].Points, closes-19)
	assert.Len(t, resp.Chart.Lines[2].Points, closes)
}

func TestGetBundle_NotFound(t *testing.T) {
	mock := &collector.MockFetcher{
		Price: 100,
		Err:   &collector.FetchError{Kind: collector.NotFound, Symbol: "ZZZZ"},
	}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/bundle?symbol=ZZZZ", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "No data found for ZZZZ.", body["notice"])
}

func TestGetBundle_UpstreamFailure(t *testing.T) {
	mock := &collector.MockFetcher{
		Price: 100,
		Err:   &collector.FetchError{Kind: collector.NetworkFailure, Symbol: "AAPL", Err: errors.New("connection reset")},
	}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/bundle?symbol=AAPL", "")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "AAPL: Error loading data", body["notice"])
}

func TestGetBundle_BadQuery(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)

	for _, q := range []string{
		"start=yesterday",
		"end=2024-13-01",
		"sma=maybe",
		"sma_window=0",
		"ema_window=x",
	} {
		rec := do(t, s, http.MethodGet, "/api/bundle?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetExport(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/export?symbol=msft&start=2024-02-01&end=2024-03-29&sma=true&ema=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="MSFT_data.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Date,Open,High,Low,Close,Volume,SMA 20,EMA 20\n"))

	// a download only needs the series
	assert.EqualValues(t, 1, mock.Calls())
	assert.EqualValues(t, 0, mock.QuoteCalls())
}

func TestGetExport_EmptySeries(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100, Bars: []model.OHLCV{}}, false)

	rec := do(t, s, http.MethodGet, "/api/export?symbol=AAPL", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No data found for AAPL.", decode(t, rec)["notice"])
}

func TestGetQuote_Partial(t *testing.T) {
	mock := &collector.MockFetcher{
		Price: 100,
		Quote: &model.QuoteSnapshot{Symbol: "AAPL", DisplayName: "Apple Inc."},
	}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/quote?symbol=AAPL", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Apple Inc. (AAPL)", body["label"])
	assert.Equal(t, "N/A", body["price"])
	assert.Equal(t, "N/A", body["delta"])
}

func TestGetQuote_Failure(t *testing.T) {
	mock := &collector.MockFetcher{
		Price:    100,
		QuoteErr: &collector.FetchError{Kind: collector.UpstreamMalformed, Symbol: "AAPL"},
	}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/quote?symbol=aapl", "")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "AAPL: Error loading data", decode(t, rec)["notice"])
}

func TestGetInfo(t *testing.T) {
	mock := &collector.MockFetcher{
		Price: 100,
		Quote: &model.QuoteSnapshot{Symbol: "AAPL", Info: json.RawMessage(`{"longName":"Apple Inc."}`)},
	}
	s := newTestServer(t, mock, false)

	rec := do(t, s, http.MethodGet, "/api/info?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"longName":"Apple Inc."}`, rec.Body.String())

	mock.Quote = &model.QuoteSnapshot{Symbol: "AAPL"}
	rec = do(t, s, http.MethodGet, "/api/info?symbol=AAPL", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutSettings_NoRefresher(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)

	rec := do(t, s, http.MethodPut, "/api/settings", `{"refresh_seconds":10}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPutSettings(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, true)

	rec := do(t, s, http.MethodPut, "/api/settings", `{"symbol":"nvda","show_ema":true,"ema_window":10,"refresh_seconds":10}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, s.refresher.Interval())
	p := s.refresher.Params()
	assert.Equal(t, "NVDA", p.Symbol)
	assert.True(t, p.ShowEMA)
	assert.Equal(t, 10, p.EMAWindow)

	// settings trigger one immediate refresh that is published to the hub
	assert.Eventually(t, func() bool { return s.hub.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	msg, ok := s.hub.Latest().(refreshMessage)
	require.True(t, ok)
	assert.Equal(t, "refresh", msg.Type)
	assert.Equal(t, "NVDA", msg.Data.Params.Symbol)
}

func TestPutSettings_Invalid(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, true)

	rec := do(t, s, http.MethodPut, "/api/settings", `{"refresh_seconds":301}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/settings", `{"start":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	hub.Publish(&dashboard.Result{Bundle: &model.RenderBundle{Symbol: "AAPL"}})
	assert.NotNil(t, hub.Latest())
	assert.Equal(t, 0, hub.Connections())

	cancel()
	<-done
}

type wsRefresh struct {
	Type string `json:"type"`
	Data struct {
		Params struct {
			Symbol string `json:"symbol"`
		} `json:"params"`
		Chart chartResponse `json:"chart"`
	} `json:"data"`
}

func startHub(t *testing.T, s *Server) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts, cancel
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func refreshResult(symbol string) *dashboard.Result {
	return &dashboard.Result{
		Params: dashboard.Params{Symbol: symbol},
		Bundle: &model.RenderBundle{Title: symbol + " Price Chart", Symbol: symbol},
	}
}

func TestWebSocket_LatestOnConnectThenBroadcast(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)
	ts, _ := startHub(t, s)

	s.hub.Publish(refreshResult("AAPL"))
	conn := dialWS(t, ts)

	var first wsRefresh
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "refresh", first.Type)
	assert.Equal(t, "AAPL", first.Data.Params.Symbol)
	assert.Equal(t, "AAPL Price Chart", first.Data.Chart.Title)
	assert.Equal(t, 1, s.hub.Connections())

	s.hub.Publish(refreshResult("MSFT"))

	var second wsRefresh
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "refresh", second.Type)
	assert.Equal(t, "MSFT", second.Data.Params.Symbol)
}

func TestWebSocket_FansOutToAllClients(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)
	ts, _ := startHub(t, s)

	s.hub.Publish(refreshResult("AAPL"))
	conns := []*websocket.Conn{dialWS(t, ts), dialWS(t, ts)}
	for _, c := range conns {
		var msg wsRefresh
		require.NoError(t, c.ReadJSON(&msg))
	}

	s.hub.Publish(refreshResult("NVDA"))
	for _, c := range conns {
		var msg wsRefresh
		require.NoError(t, c.ReadJSON(&msg))
		assert.Equal(t, "NVDA", msg.Data.Params.Symbol)
	}
}

func TestWebSocket_ClosedAfterHubStops(t *testing.T) {
	s := newTestServer(t, &collector.MockFetcher{Price: 100}, false)
	ts, cancel := startHub(t, s)

	s.hub.Publish(refreshResult("AAPL"))
	open := dialWS(t, ts)
	var msg wsRefresh
	require.NoError(t, open.ReadJSON(&msg))

	cancel()
	<-s.hub.done

	// connected clients are closed
	_, _, err := open.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived))

	// new clients are refused instead of blocking
	late := dialWS(t, ts)
	_, _, err = late.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Equal(t, 0, s.hub.Connections())
}
