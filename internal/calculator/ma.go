package calculator

import (
	"fmt"

	"StockDashboard/internal/model"
)

// SMA returns the trailing simple moving average of closes for every bar,
// kept as a running window sum. Bars before index window-1 have no value.
func SMA(bars []model.OHLCV, window int) ([]model.Point, error) {
	if window <= 0 {
		return nil, fmt.Errorf("sma window must be positive, got %d", window)
	}
	points := make([]model.Point, len(bars))
	var sum float64
	for i, b := range bars {
		points[i].Date = b.Date
		sum += b.Close
		if i >= window {
			sum -= bars[i-window].Close
		}
		if i < window-1 {
			continue
		}
		points[i].Value = sum / float64(window)
		points[i].Valid = true
	}
	return points, nil
}

// EMA returns the exponential moving average of closes seeded with the first
// close: ema[0] = close[0], ema[i] = a*close[i] + (1-a)*ema[i-1], a = 2/(window+1).
func EMA(bars []model.OHLCV, window int) ([]model.Point, error) {
	if window <= 0 {
		return nil, fmt.Errorf("ema window must be positive, got %d", window)
	}
	alpha := 2.0 / float64(window+1)
	points := make([]model.Point, len(bars))
	var prev float64
	for i, b := range bars {
		v := b.Close
		if i > 0 {
			v = alpha*b.Close + (1-alpha)*prev
		}
		points[i] = model.Point{Date: b.Date, Value: v, Valid: true}
		prev = v
	}
	return points, nil
}

// ClosePoints maps every bar to its close, all defined.
func ClosePoints(bars []model.OHLCV) []model.Point {
	points := make([]model.Point, len(bars))
	for i, b := range bars {
		points[i] = model.Point{Date: b.Date, Value: b.Close, Valid: true}
	}
	return points
}
