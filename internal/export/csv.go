// Package export renders a series and its indicator lines as CSV and reads
// such exports back.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"StockDashboard/internal/model"
)

var baseColumns = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// Filename returns the download name for a symbol's export.
func Filename(symbol string) string {
	return symbol + "_data.csv"
}

// Columns returns the header row for the given indicator lines.
func Columns(overlays []model.IndicatorSeries) []string {
	cols := make([]string, 0, len(baseColumns)+len(overlays))
	cols = append(cols, baseColumns...)
	for _, o := range overlays {
		cols = append(cols, o.Name)
	}
	return cols
}

// WriteCSV writes every bar in date order followed by one column per overlay.
// Undefined indicator values are written as empty cells.
func WriteCSV(w io.Writer, series *model.Series, overlays []model.IndicatorSeries) error {
	n := series.Len()
	for _, o := range overlays {
		if len(o.Points) != n {
			return fmt.Errorf("overlay %q has %d points, series has %d", o.Name, len(o.Points), n)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(overlays)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		b := series.Points[i]
		row := []string{
			b.Date.Format(model.DateLayout),
			f(b.Open),
			f(b.High),
			f(b.Low),
			f(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		for _, o := range overlays {
			if p := o.Points[i]; p.Valid {
				row = append(row, f(p.Value))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Encode renders the export into memory.
func Encode(series *model.Series, overlays []model.IndicatorSeries) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, series, overlays); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses an export produced by WriteCSV.
func ReadCSV(r io.Reader, symbol string) (*model.Series, []model.IndicatorSeries, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read csv: missing header")
	}
	header := records[0]
	if len(header) < len(baseColumns) {
		return nil, nil, fmt.Errorf("read csv: header has %d columns, want at least %d", len(header), len(baseColumns))
	}
	for i, col := range baseColumns {
		if header[i] != col {
			return nil, nil, fmt.Errorf("read csv: column %d is %q, want %q", i, header[i], col)
		}
	}

	overlays := make([]model.IndicatorSeries, 0, len(header)-len(baseColumns))
	for _, name := range header[len(baseColumns):] {
		kind, window := parseIndicatorName(name)
		overlays = append(overlays, model.IndicatorSeries{Name: name, Kind: kind, Window: window})
	}

	series := &model.Series{Symbol: symbol, Points: make([]model.OHLCV, 0, len(records)-1)}
	for line, rec := range records[1:] {
		bar, err := parseBar(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: row %d: %w", line+2, err)
		}
		series.Points = append(series.Points, bar)
		for j := range overlays {
			cell := rec[len(baseColumns)+j]
			p := model.Point{Date: bar.Date}
			if cell != "" {
				if p.Value, err = strconv.ParseFloat(cell, 64); err != nil {
					return nil, nil, fmt.Errorf("read csv: row %d: %s: %w", line+2, overlays[j].Name, err)
				}
				p.Valid = true
			}
			overlays[j].Points = append(overlays[j].Points, p)
		}
	}
	if n := len(series.Points); n > 0 {
		series.Start = series.Points[0].Date
		series.End = series.Points[n-1].Date
	}
	return series, overlays, nil
}

func parseBar(rec []string) (model.OHLCV, error) {
	var (
		bar model.OHLCV
		err error
	)
	if bar.Date, err = time.Parse(model.DateLayout, rec[0]); err != nil {
		return bar, err
	}
	prices := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
	for i, dst := range prices {
		if *dst, err = strconv.ParseFloat(rec[i+1], 64); err != nil {
			return bar, fmt.Errorf("%s: %w", baseColumns[i+1], err)
		}
	}
	if bar.Volume, err = strconv.ParseInt(rec[5], 10, 64); err != nil {
		return bar, fmt.Errorf("Volume: %w", err)
	}
	return bar, nil
}

func parseIndicatorName(name string) (model.IndicatorKind, int) {
	prefix, num, ok := strings.Cut(name, " ")
	if !ok {
		return "", 0
	}
	window, err := strconv.Atoi(num)
	if err != nil {
		return "", 0
	}
	switch prefix {
	case "SMA":
		return model.KindSMA, window
	case "EMA":
		return model.KindEMA, window
	}
	return "", 0
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
