package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is a best-effort latest quote. Any numeric field may be
// missing; callers render missing values as unavailable.
type QuoteSnapshot struct {
	Symbol        string              `json:"symbol"`
	DisplayName   string              `json:"display_name"`
	LastPrice     decimal.NullDecimal `json:"last_price"`
	Change        decimal.NullDecimal `json:"change"`
	ChangePercent decimal.NullDecimal `json:"change_percent"`
	Currency      string              `json:"currency,omitempty"`
	FetchedAt     time.Time           `json:"fetched_at"`

	// Info is the provider's descriptive record, passed through untouched.
	Info json.RawMessage `json:"-"`
}

// NewNullDecimal wraps an optional float.
func NewNullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

// FillChange derives Change and ChangePercent from the last price and the
// previous close when both are known.
func (q *QuoteSnapshot) FillChange(prevClose decimal.NullDecimal) {
	if !q.LastPrice.Valid || !prevClose.Valid {
		return
	}
	change := q.LastPrice.Decimal.Sub(prevClose.Decimal)
	q.Change = decimal.NewNullDecimal(change)
	if prevClose.Decimal.IsZero() {
		return
	}
	q.ChangePercent = decimal.NewNullDecimal(change.Div(prevClose.Decimal).Mul(decimal.NewFromInt(100)))
}
