package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/config"
	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/model"
	"StockDashboard/internal/view"
)

// Axis labels of the price chart.
const (
	xAxisLabel = "Date"
	yAxisLabel = "Price (USD)"
)

type chartPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type chartLine struct {
	Name   string       `json:"name"`
	Kind   string       `json:"kind"`
	Points []chartPoint `json:"points"`
}

type chartResponse struct {
	Title  string      `json:"title"`
	XLabel string      `json:"x_label"`
	YLabel string      `json:"y_label"`
	Lines  []chartLine `json:"lines"`
}

type quoteResponse struct {
	Quote *model.QuoteSnapshot `json:"quote"`
	Label string               `json:"label"`
	Price string               `json:"price"`
	Delta string               `json:"delta"`
}

type bundleResponse struct {
	*dashboard.Result
	Chart     chartResponse  `json:"chart"`
	QuoteView *quoteResponse `json:"quote_view,omitempty"`
	Summary   string         `json:"summary"`
}

type refreshMessage struct {
	Type string          `json:"type"`
	Data *bundleResponse `json:"data"`
}

type settingsRequest struct {
	Symbol         string `json:"symbol"`
	Start          string `json:"start"`
	End            string `json:"end"`
	ShowSMA        *bool  `json:"show_sma"`
	ShowEMA        *bool  `json:"show_ema"`
	SMAWindow      int    `json:"sma_window"`
	EMAWindow      int    `json:"ema_window"`
	RefreshSeconds int    `json:"refresh_seconds"`
	Rolling        bool   `json:"rolling"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Notice string `json:"notice,omitempty"`
}

func newChart(bundle *model.RenderBundle) chartResponse {
	chart := chartResponse{
		Title:  bundle.Title,
		XLabel: xAxisLabel,
		YLabel: yAxisLabel,
	}
	lines := append([]model.IndicatorSeries{bundle.Primary}, bundle.Overlays...)
	for _, l := range lines {
		defined := l.Defined()
		line := chartLine{Name: l.Name, Kind: string(l.Kind), Points: make([]chartPoint, 0, len(defined))}
		for _, p := range defined {
			line.Points = append(line.Points, chartPoint{Date: p.Date.Format(model.DateLayout), Value: p.Value})
		}
		chart.Lines = append(chart.Lines, line)
	}
	return chart
}

func newQuoteResponse(q *model.QuoteSnapshot) *quoteResponse {
	if q == nil {
		return nil
	}
	return &quoteResponse{
		Quote: q,
		Label: view.QuoteLabel(q),
		Price: view.FormatPrice(q.LastPrice),
		Delta: view.FormatDelta(q.Change, q.ChangePercent),
	}
}

func newBundleResponse(res *dashboard.Result) *bundleResponse {
	return &bundleResponse{
		Result:    res,
		Chart:     newChart(res.Bundle),
		QuoteView: newQuoteResponse(res.Quote),
		Summary:   view.FormatSummary(res.Bundle),
	}
}

func newRefreshMessage(res *dashboard.Result) refreshMessage {
	return refreshMessage{Type: "refresh", Data: newBundleResponse(res)}
}

// fetchStatus maps a fetch failure to an HTTP status.
func fetchStatus(err error) int {
	kind, ok := collector.KindOf(err)
	switch {
	case !ok:
		if errors.Is(err, collector.ErrEmptySymbol) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case kind == collector.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) defaultParams() dashboard.Params {
	return dashboard.DefaultParams(s.cfg.Dashboard, s.now())
}

// parseParams reads run parameters from the query string on top of the
// configured defaults.
func (s *Server) parseParams(c *gin.Context) (dashboard.Params, error) {
	p := s.defaultParams()
	if v := c.Query("symbol"); v != "" {
		p.Symbol = v
	}

	var err error
	if v := c.Query("start"); v != "" {
		if p.Start, err = time.Parse(model.DateLayout, v); err != nil {
			return p, fmt.Errorf("invalid start date %q", v)
		}
	}
	if v := c.Query("end"); v != "" {
		if p.End, err = time.Parse(model.DateLayout, v); err != nil {
			return p, fmt.Errorf("invalid end date %q", v)
		}
	}
	if v := c.Query("sma"); v != "" {
		if p.ShowSMA, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("invalid sma flag %q", v)
		}
	}
	if v := c.Query("ema"); v != "" {
		if p.ShowEMA, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("invalid ema flag %q", v)
		}
	}
	if v := c.Query("sma_window"); v != "" {
		if p.SMAWindow, err = strconv.Atoi(v); err != nil || p.SMAWindow <= 0 {
			return p, fmt.Errorf("invalid sma_window %q", v)
		}
	}
	if v := c.Query("ema_window"); v != "" {
		if p.EMAWindow, err = strconv.Atoi(v); err != nil || p.EMAWindow <= 0 {
			return p, fmt.Errorf("invalid ema_window %q", v)
		}
	}

	p = p.Normalize()
	return p, p.Validate()
}

// run performs one dashboard run and writes the error response itself when
// the run produced nothing to render.
func (s *Server) run(c *gin.Context, withQuote bool) (*dashboard.Result, bool) {
	p, err := s.parseParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}
	p.SkipQuote = !withQuote
	res, err := s.runner.Run(c.Request.Context(), p)
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		if res != nil {
			resp.Notice = res.Notice
		}
		c.JSON(fetchStatus(err), resp)
		return nil, false
	}
	return res, true
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"provider":    s.fetcher.Name(),
		"connections": s.hub.Connections(),
		"time":        s.now().UTC(),
	})
}

func (s *Server) getConfig(c *gin.Context) {
	interval := s.cfg.Dashboard.RefreshSeconds
	if s.refresher != nil {
		interval = s.refresher.Interval()
	}
	p := s.defaultParams()
	c.JSON(http.StatusOK, gin.H{
		"tickers":             s.cfg.Dashboard.Tickers,
		"defaults":            p,
		"start":               p.Start.Format(model.DateLayout),
		"end":                 p.End.Format(model.DateLayout),
		"summary_rows":        s.cfg.Dashboard.SummaryRows,
		"table_rows":          s.cfg.Dashboard.TableRows,
		"refresh_seconds":     interval,
		"max_refresh_seconds": config.MaxRefreshSeconds,
		"provider":            s.fetcher.Name(),
	})
}

func (s *Server) getQuote(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.cfg.Dashboard.Symbol)
	q, err := s.fetcher.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		sym := collector.NormalizeSymbol(symbol)
		c.JSON(fetchStatus(err), errorResponse{Error: err.Error(), Notice: view.Notice(sym, err)})
		return
	}
	c.JSON(http.StatusOK, newQuoteResponse(q))
}

func (s *Server) getInfo(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.cfg.Dashboard.Symbol)
	q, err := s.fetcher.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(fetchStatus(err), errorResponse{Error: err.Error()})
		return
	}
	if len(q.Info) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{Error: "No company info available."})
		return
	}
	c.Data(http.StatusOK, "application/json", q.Info)
}

func (s *Server) getBundle(c *gin.Context) {
	res, ok := s.run(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newBundleResponse(res))
}

func (s *Server) getExport(c *gin.Context) {
	res, ok := s.run(c, false)
	if !ok {
		return
	}
	if len(res.Bundle.Primary.Points) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{Error: "empty series", Notice: res.Notice})
		return
	}
	exp := res.Bundle.Export
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	c.Data(http.StatusOK, exp.MIMEType, exp.Data)
}

func (s *Server) putSettings(c *gin.Context) {
	if s.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "auto-refresh is not available"})
		return
	}

	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	p := s.refresher.Params()
	if p.Symbol == "" {
		p = s.defaultParams()
	}
	if req.Symbol != "" {
		p.Symbol = req.Symbol
	}
	var err error
	if req.Start != "" {
		if p.Start, err = time.Parse(model.DateLayout, req.Start); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid start date %q", req.Start)})
			return
		}
	}
	if req.End != "" {
		if p.End, err = time.Parse(model.DateLayout, req.End); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid end date %q", req.End)})
			return
		}
	}
	if req.ShowSMA != nil {
		p.ShowSMA = *req.ShowSMA
	}
	if req.ShowEMA != nil {
		p.ShowEMA = *req.ShowEMA
	}
	if req.SMAWindow > 0 {
		p.SMAWindow = req.SMAWindow
	}
	if req.EMAWindow > 0 {
		p.EMAWindow = req.EMAWindow
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.refresher.SetInterval(req.RefreshSeconds); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.refresher.SetParams(p, req.Rolling)
	go func() { _, _ = s.refresher.RunNow() }()

	s.logger.Info().Str("symbol", p.Symbol).Int("refresh_seconds", req.RefreshSeconds).Msg("settings updated")
	c.JSON(http.StatusOK, gin.H{
		"params":          p,
		"refresh_seconds": s.refresher.Interval(),
		"rolling":         req.Rolling,
	})
}
