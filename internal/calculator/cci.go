package calculator

import (
	"fmt"
	"math"
)

// cciConstant is Lambert's scaling factor.
const cciConstant = 0.015

// TypicalPrice returns (high + low + close) / 3 for each bar.
func TypicalPrice(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	return out
}

// CCI computes the Commodity Channel Index over period bars of typical price.
// A window with zero mean absolute deviation yields 0.
func CCI(highs, lows, closes []float64, period int) ([]float64, error) {
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return nil, fmt.Errorf("cci: mismatched input lengths")
	}
	tp := TypicalPrice(highs, lows, closes)
	mean, err := SMA(tp, period)
	if err != nil {
		return nil, fmt.Errorf("cci: %w", err)
	}
	out := nanSeries(len(tp))
	for i := period - 1; i < len(tp); i++ {
		if math.IsNaN(mean[i]) {
			continue
		}
		mad := 0.0
		for j := i - period + 1; j <= i; j++ {
			mad += math.Abs(tp[j] - mean[i])
		}
		mad /= float64(period)
		if mad == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - mean[i]) / (cciConstant * mad)
	}
	return out, nil
}
