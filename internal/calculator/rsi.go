package calculator

import (
	"fmt"
	"math"
)

// RSI computes a rolling RSI from the simple average of gains and losses over the last
// period close-to-close changes. It needs period+1 closes, so the first period entries are NaN.
// A flat window yields 50; a window without losses yields 100.
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: %w", ErrInvalidPeriod)
	}
	out := nanSeries(len(closes))
	for i := period; i < len(closes); i++ {
		var gain, loss float64
		valid := true
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if math.IsNaN(change) {
				valid = false
				break
			}
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		if !valid {
			continue
		}
		switch {
		case gain == 0 && loss == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		default:
			rs := (gain / float64(period)) / (loss / float64(period))
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out, nil
}
