package calculator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPeriod is returned when a rolling window length is not usable.
var ErrInvalidPeriod = errors.New("period must be positive")

// SMA computes the rolling simple moving average over period values.
// The first period-1 entries are NaN, as is any window containing NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: %w", ErrInvalidPeriod)
	}
	out := nanSeries(len(values))
	sum := 0.0
	valid := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			sum += v
			valid++
		}
		if i >= period {
			if old := values[i-period]; !math.IsNaN(old) {
				sum -= old
				valid--
			}
		}
		if i >= period-1 && valid == period {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// StdDev computes the rolling population standard deviation over period values.
func StdDev(values []float64, period int) ([]float64, error) {
	mean, err := SMA(values, period)
	if err != nil {
		return nil, err
	}
	out := nanSeries(len(values))
	for i := period - 1; i < len(values); i++ {
		if math.IsNaN(mean[i]) {
			continue
		}
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean[i]
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out, nil
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
