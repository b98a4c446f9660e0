// Package pipeline turns a fetched daily series into everything a chart,
// summary panel and table view need: the close line, moving-average
// overlays, tail windows and a CSV export. It performs no I/O and is
// deterministic for identical inputs.
package pipeline

import (
	"fmt"

	"StockDashboard/internal/calculator"
	"StockDashboard/internal/export"
	"StockDashboard/internal/model"
)

const (
	// DefaultWindow is the SMA and EMA window the dashboard offers.
	DefaultWindow = 20
	// DefaultTailRows is the size of the summary window.
	DefaultTailRows = 3
	// DefaultTableRows is the size of the table view.
	DefaultTableRows = 60
)

// Options selects the overlays and the table size. A zero window disables
// the corresponding indicator.
type Options struct {
	SMAWindow int
	EMAWindow int
	TableRows int
}

// Validate rejects option values no caller should ever produce.
func (o Options) Validate() error {
	if o.SMAWindow < 0 {
		return fmt.Errorf("sma window must not be negative, got %d", o.SMAWindow)
	}
	if o.EMAWindow < 0 {
		return fmt.Errorf("ema window must not be negative, got %d", o.EMAWindow)
	}
	if o.TableRows < 0 {
		return fmt.Errorf("table rows must not be negative, got %d", o.TableRows)
	}
	return nil
}

// Title returns the chart title for a symbol.
func Title(symbol string) string {
	return symbol + " Price Chart"
}

// BuildBundle computes the enabled indicators over series and assembles the
// render bundle. tailRows sizes the summary tail. An empty series yields a
// well-formed bundle with empty lines and a header-only export.
func BuildBundle(series *model.Series, opts Options, tailRows int) (*model.RenderBundle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if tailRows < 0 {
		return nil, fmt.Errorf("tail rows must not be negative, got %d", tailRows)
	}
	if series == nil {
		series = &model.Series{}
	}

	overlays, err := Overlays(series, opts)
	if err != nil {
		return nil, err
	}

	data, err := export.Encode(series, overlays)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	return &model.RenderBundle{
		Title:  Title(series.Symbol),
		Symbol: series.Symbol,
		Primary: model.IndicatorSeries{
			Name:   model.PriceLineName,
			Kind:   model.KindPrice,
			Points: calculator.ClosePoints(series.Points),
		},
		Overlays: overlays,
		Tail:     series.Tail(tailRows),
		Table:    buildTable(series, overlays, opts.TableRows),
		Stats:    rangeStats(series),
		Export: model.Export{
			Filename: export.Filename(series.Symbol),
			MIMEType: model.ExportMIMEType,
			Data:     data,
		},
	}, nil
}

// Overlays computes the enabled indicator lines, SMA first.
func Overlays(series *model.Series, opts Options) ([]model.IndicatorSeries, error) {
	overlays := make([]model.IndicatorSeries, 0, 2)
	if opts.SMAWindow > 0 {
		points, err := calculator.SMA(series.Points, opts.SMAWindow)
		if err != nil {
			return nil, fmt.Errorf("compute sma: %w", err)
		}
		overlays = append(overlays, model.IndicatorSeries{
			Name:   model.IndicatorName(model.KindSMA, opts.SMAWindow),
			Kind:   model.KindSMA,
			Window: opts.SMAWindow,
			Points: points,
		})
	}
	if opts.EMAWindow > 0 {
		points, err := calculator.EMA(series.Points, opts.EMAWindow)
		if err != nil {
			return nil, fmt.Errorf("compute ema: %w", err)
		}
		overlays = append(overlays, model.IndicatorSeries{
			Name:   model.IndicatorName(model.KindEMA, opts.EMAWindow),
			Kind:   model.KindEMA,
			Window: opts.EMAWindow,
			Points: points,
		})
	}
	return overlays, nil
}

func buildTable(series *model.Series, overlays []model.IndicatorSeries, rows int) model.Table {
	from := model.TailStart(series.Len(), rows)
	table := model.Table{
		Columns: export.Columns(overlays),
		Rows:    make([]model.TableRow, 0, series.Len()-from),
	}
	for i := from; i < series.Len(); i++ {
		row := model.TableRow{OHLCV: series.Points[i], Indicators: make([]*float64, len(overlays))}
		for j, o := range overlays {
			if p := o.Points[i]; p.Valid {
				v := p.Value
				row.Indicators[j] = &v
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func rangeStats(series *model.Series) *model.RangeStats {
	if series.Empty() {
		return nil
	}
	high, low, err := calculator.RecentRange(series.Points, calculator.TradingDaysPerYear)
	if err != nil {
		return nil
	}
	last := series.Points[series.Len()-1].Close
	pos, err := calculator.RangePosition(last, high, low)
	if err != nil {
		return nil
	}
	return &model.RangeStats{High: high, Low: low, LastClose: last, Position: pos}
}
