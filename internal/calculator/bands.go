package calculator

import (
	"fmt"
	"math"
)

// Bands is a Bollinger envelope series.
type Bands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger computes SMA(period) +/- multiplier * population std-dev over closes.
func Bollinger(closes []float64, period int, multiplier float64) (*Bands, error) {
	mid, err := SMA(closes, period)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	sd, err := StdDev(closes, period)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	b := &Bands{Middle: mid, Upper: nanSeries(len(closes)), Lower: nanSeries(len(closes))}
	for i := range closes {
		if math.IsNaN(mid[i]) || math.IsNaN(sd[i]) {
			continue
		}
		b.Upper[i] = mid[i] + multiplier*sd[i]
		b.Lower[i] = mid[i] - multiplier*sd[i]
	}
	return b, nil
}

// BandSpan returns (upper - lower) / close for every row, NaN where any input is missing
// or the close is not positive.
func BandSpan(upper, lower, closes []float64) []float64 {
	out := nanSeries(len(closes))
	for i := range closes {
		if i >= len(upper) || i >= len(lower) || closes[i] <= 0 {
			continue
		}
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) {
			continue
		}
		out[i] = (upper[i] - lower[i]) / closes[i]
	}
	return out
}

// Add returns a[i] + b[i], NaN when either side is NaN.
func Add(a, b []float64) []float64 {
	out := nanSeries(len(a))
	for i := range a {
		if i < len(b) {
			out[i] = a[i] + b[i]
		}
	}
	return out
}
