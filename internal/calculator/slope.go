package calculator

import (
	"fmt"
	"math"
)

// Slope returns the ordinary least-squares slope of y against x = 0..len(y)-1.
// It needs at least two points.
func Slope(y []float64) (float64, error) {
	n := len(y)
	if n < 2 {
		return math.NaN(), fmt.Errorf("slope: need at least 2 points, got %d", n)
	}
	xMean := float64(n-1) / 2
	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	return num / den, nil
}

// RollingSlope applies Slope over a trailing window of up to window values ending at each
// index. Only the finite values at the tail of the window are used; fewer than two gives NaN.
func RollingSlope(values []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("rolling slope: window must be at least 2, got %d", window)
	}
	out := nanSeries(len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		tail := i + 1
		for tail > start && isFinite(values[tail-1]) {
			tail--
		}
		// values[tail:i+1] is the finite run ending at i.
		if i+1-tail < 2 {
			continue
		}
		s, err := Slope(values[tail : i+1])
		if err != nil {
			continue
		}
		out[i] = s
	}
	return out, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
