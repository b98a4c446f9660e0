// Package view renders quotes, bundles and fetch failures as the short text
// shown to users.
package view

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/model"
)

// Unavailable is shown in place of a missing quote field.
const Unavailable = "N/A"

// NoDataNotice is shown when a symbol has no bars in the requested range.
func NoDataNotice(symbol string) string {
	return fmt.Sprintf("No data found for %s.", symbol)
}

// ErrorNotice is shown when loading a symbol failed.
func ErrorNotice(symbol string) string {
	return fmt.Sprintf("%s: Error loading data", symbol)
}

// Notice maps a fetch failure to its user-facing text.
func Notice(symbol string, err error) string {
	if err == nil {
		return ""
	}
	if collector.IsNotFound(err) {
		return NoDataNotice(symbol)
	}
	return ErrorNotice(symbol)
}

// FormatPrice renders a price as "$123.45" or N/A.
func FormatPrice(price decimal.NullDecimal) string {
	if !price.Valid {
		return Unavailable
	}
	return "$" + price.Decimal.StringFixed(2)
}

// FormatDelta renders "1.23 (0.45%)", or N/A unless both parts are known.
func FormatDelta(change, percent decimal.NullDecimal) string {
	if !change.Valid || !percent.Valid {
		return Unavailable
	}
	return fmt.Sprintf("%s (%s%%)", change.Decimal.StringFixed(2), percent.Decimal.StringFixed(2))
}

// QuoteLabel renders "Apple Inc. (AAPL)".
func QuoteLabel(q *model.QuoteSnapshot) string {
	name := q.DisplayName
	if name == "" {
		name = q.Symbol
	}
	return fmt.Sprintf("%s (%s)", name, q.Symbol)
}

// FormatQuote formats a quote snapshot for terminal output.
func FormatQuote(q *model.QuoteSnapshot) string {
	var b strings.Builder
	b.WriteString(QuoteLabel(q) + "\n")
	b.WriteString(fmt.Sprintf("Price:  %s\n", FormatPrice(q.LastPrice)))
	b.WriteString(fmt.Sprintf("Change: %s\n", FormatDelta(q.Change, q.ChangePercent)))
	if !q.FetchedAt.IsZero() {
		b.WriteString(fmt.Sprintf("As of:  %s\n", q.FetchedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatSummary formats the summary panel of a bundle: the tail rows, the
// latest indicator values and the recent range.
func FormatSummary(bundle *model.RenderBundle) string {
	var b strings.Builder
	b.WriteString(bundle.Title + "\n\n")

	if len(bundle.Tail) == 0 {
		b.WriteString(NoDataNotice(bundle.Symbol) + "\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Key Indicators (last %d days):\n", len(bundle.Tail)))
	b.WriteString(fmt.Sprintf("%-10s %10s %10s %10s %10s %12s\n", "Date", "Open", "High", "Low", "Close", "Volume"))
	for _, r := range bundle.Tail {
		b.WriteString(fmt.Sprintf("%-10s %10.2f %10.2f %10.2f %10.2f %12d\n",
			r.Date.Format(model.DateLayout), r.Open, r.High, r.Low, r.Close, r.Volume))
	}

	for _, o := range bundle.Overlays {
		if p, ok := o.Latest(); ok {
			b.WriteString(fmt.Sprintf("%s: %.2f\n", o.Name, p.Value))
		} else {
			b.WriteString(fmt.Sprintf("%s: %s\n", o.Name, Unavailable))
		}
	}
	if s := bundle.Stats; s != nil {
		b.WriteString(fmt.Sprintf("Range: %.2f - %.2f (position %.0f%%)\n", s.Low, s.High, s.Position*100))
	}
	return b.String()
}
