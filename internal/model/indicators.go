package model

import (
	"fmt"
	"time"
)

// IndicatorKind identifies how an indicator line was derived.
type IndicatorKind string

const (
	KindPrice IndicatorKind = "price"
	KindSMA   IndicatorKind = "sma"
	KindEMA   IndicatorKind = "ema"
)

// Point is one value of a derived line. Valid is false while the indicator
// is still warming up and has no value for Date.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Valid bool      `json:"valid"`
}

// IndicatorSeries is a named line sharing the date domain of its source series.
type IndicatorSeries struct {
	Name   string        `json:"name"`
	Kind   IndicatorKind `json:"kind"`
	Window int           `json:"window,omitempty"`
	Points []Point       `json:"points"`
}

// IndicatorName returns the display name of an indicator line, e.g. "SMA 20".
func IndicatorName(kind IndicatorKind, window int) string {
	switch kind {
	case KindSMA:
		return fmt.Sprintf("SMA %d", window)
	case KindEMA:
		return fmt.Sprintf("EMA %d", window)
	default:
		return PriceLineName
	}
}

// PriceLineName is the display name of the primary close price line.
const PriceLineName = "Close Price"

// Defined returns only the points that carry a value.
func (s IndicatorSeries) Defined() []Point {
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if p.Valid {
			out = append(out, p)
		}
	}
	return out
}

// Latest returns the most recent defined value.
func (s IndicatorSeries) Latest() (Point, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Valid {
			return s.Points[i], true
		}
	}
	return Point{}, false
}
