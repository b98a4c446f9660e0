// Package dashboard runs one complete refresh: quote, series, indicators and
// the render bundle for a set of user parameters.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/config"
	"StockDashboard/internal/model"
	"StockDashboard/internal/pipeline"
	"StockDashboard/internal/view"
)

// Params are the user-adjustable inputs of a run.
type Params struct {
	Symbol    string    `json:"symbol"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ShowSMA   bool      `json:"show_sma"`
	ShowEMA   bool      `json:"show_ema"`
	SMAWindow int       `json:"sma_window"`
	EMAWindow int       `json:"ema_window"`

	// SkipQuote leaves Result.Quote unset, for callers that only need the series.
	SkipQuote bool `json:"-"`
}

// DefaultParams derives the initial parameters from configuration, ending today.
func DefaultParams(cfg config.Dashboard, today time.Time) Params {
	end := model.Day(today)
	return Params{
		Symbol:    cfg.Symbol,
		Start:     end.AddDate(0, 0, -cfg.LookbackDays),
		End:       end,
		ShowSMA:   cfg.ShowSMA,
		ShowEMA:   cfg.ShowEMA,
		SMAWindow: cfg.SMAWindow,
		EMAWindow: cfg.EMAWindow,
	}
}

// Normalize upper-cases the symbol and fills unset windows.
func (p Params) Normalize() Params {
	p.Symbol = collector.NormalizeSymbol(p.Symbol)
	if p.SMAWindow == 0 {
		p.SMAWindow = pipeline.DefaultWindow
	}
	if p.EMAWindow == 0 {
		p.EMAWindow = pipeline.DefaultWindow
	}
	return p
}

// Validate rejects parameters that cannot describe a run.
func (p Params) Validate() error {
	if p.Symbol == "" {
		return collector.ErrEmptySymbol
	}
	if p.SMAWindow < 0 || p.EMAWindow < 0 {
		return fmt.Errorf("indicator windows must not be negative")
	}
	return nil
}

// Options converts the toggles into pipeline options.
func (p Params) Options(tableRows int) pipeline.Options {
	opts := pipeline.Options{TableRows: tableRows}
	if p.ShowSMA {
		opts.SMAWindow = p.SMAWindow
	}
	if p.ShowEMA {
		opts.EMAWindow = p.EMAWindow
	}
	return opts
}

// Result is the outcome of one run. Bundle is always set; notices carry the
// user-facing text for quote and series failures.
type Result struct {
	Params      Params               `json:"params"`
	Quote       *model.QuoteSnapshot `json:"quote,omitempty"`
	QuoteNotice string               `json:"quote_notice,omitempty"`
	Bundle      *model.RenderBundle  `json:"bundle"`
	Notice      string               `json:"notice,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Service runs the fetch and pipeline sequence.
type Service struct {
	Fetcher     collector.Fetcher
	SummaryRows int
	TableRows   int

	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a Service over an already wrapped fetcher.
func NewService(fetcher collector.Fetcher, summaryRows, tableRows int) *Service {
	return &Service{
		Fetcher:     fetcher,
		SummaryRows: summaryRows,
		TableRows:   tableRows,
		logger:      log.With().Str("component", "dashboard").Logger(),
		now:         time.Now,
	}
}

// Run fetches the quote (unless p.SkipQuote) and the series and builds the
// bundle. A quote failure
// only sets QuoteNotice. A NotFound series yields an empty bundle with a
// notice and no error. Other fetch failures return the error together with a
// result carrying an empty bundle and the error notice.
func (s *Service) Run(ctx context.Context, p Params) (*Result, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Params: p, GeneratedAt: s.now()}

	if !p.SkipQuote {
		quote, err := s.Fetcher.FetchQuote(ctx, p.Symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("quote unavailable")
			res.QuoteNotice = view.Notice(p.Symbol, err)
		} else {
			res.Quote = quote
		}
	}

	series, fetchErr := s.Fetcher.Fetch(ctx, p.Symbol, p.Start, p.End)
	if fetchErr != nil {
		res.Notice = view.Notice(p.Symbol, fetchErr)
		series = &model.Series{Symbol: p.Symbol, Start: model.Day(p.Start), End: model.Day(p.End)}
	} else if series.Empty() {
		res.Notice = view.NoDataNotice(p.Symbol)
	}

	bundle, err := pipeline.BuildBundle(series, p.Options(s.TableRows), s.SummaryRows)
	if err != nil {
		return nil, fmt.Errorf("build bundle: %w", err)
	}
	res.Bundle = bundle

	if fetchErr != nil && !collector.IsNotFound(fetchErr) {
		s.logger.Error().Err(fetchErr).Str("symbol", p.Symbol).Msg("series fetch failed")
		return res, fetchErr
	}
	s.logger.Info().Str("symbol", p.Symbol).Int("bars", series.Len()).Int("overlays", len(bundle.Overlays)).Msg("dashboard refreshed")
	return res, nil
}
