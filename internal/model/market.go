package model

import (
	"time"
)

// DateLayout is the calendar-date format used on the wire and in exports.
const DateLayout = "2006-01-02"

// OHLCV represents a single daily bar. Prices are split and dividend adjusted.
type OHLCV struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series holds the daily bars of one symbol for a requested date range.
// Points are strictly increasing by date and lie within [Start, End].
type Series struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Points []OHLCV   `json:"points"`
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Empty reports whether the series has no bars.
func (s *Series) Empty() bool { return s.Len() == 0 }

// Tail returns the most recent n bars, or all bars when fewer exist.
func (s *Series) Tail(n int) []OHLCV {
	from := TailStart(s.Len(), n)
	out := make([]OHLCV, s.Len()-from)
	copy(out, s.Points[from:])
	return out
}

// TailStart returns the index of the first row of an n-row tail window.
func TailStart(length, n int) int {
	if n <= 0 {
		return length
	}
	if n >= length {
		return 0
	}
	return length - n
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
