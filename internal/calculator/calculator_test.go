package calculator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlope_Linear(t *testing.T) {
	tests := []struct {
		name      string
		intercept float64
		slope     float64
		n         int
	}{
		{"two points", 10, 2.5, 2},
		{"rising", 100, 0.75, 3},
		{"falling", 42000, -13.125, 10},
		{"flat", 7, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := make([]float64, tt.n)
			for i := range y {
				y[i] = tt.intercept + tt.slope*float64(i)
			}
			got, err := Slope(y)
			require.NoError(t, err)
			assert.InDelta(t, tt.slope, got, 1e-9)
		})
	}
}

func TestSlope_TooShort(t *testing.T) {
	_, err := Slope([]float64{1})
	assert.Error(t, err)
}

func TestRollingSlope_SkipsLeadingNaN(t *testing.T) {
	nan := math.NaN()
	values := []float64{nan, nan, 1, 3, 5, 7}
	got, err := RollingSlope(values, 3)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]), "single observation has no slope")
	assert.InDelta(t, 2.0, got[3], 1e-12, "two observations are enough")
	assert.InDelta(t, 2.0, got[4], 1e-12)
	assert.InDelta(t, 2.0, got[5], 1e-12)
}

func TestRollingSlope_InvalidWindow(t *testing.T) {
	_, err := RollingSlope([]float64{1, 2}, 1)
	assert.Error(t, err)
}

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.InDelta(t, 3.0, got[3], 1e-12)
	assert.InDelta(t, 4.0, got[4], 1e-12)

	_, err = SMA([]float64{1}, 0)
	assert.True(t, errors.Is(err, ErrInvalidPeriod))
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	b, err := Bollinger(closes, 8, 2)
	require.NoError(t, err)
	// mean 5, population std-dev 2
	assert.InDelta(t, 5.0, b.Middle[7], 1e-12)
	assert.InDelta(t, 9.0, b.Upper[7], 1e-12)
	assert.InDelta(t, 1.0, b.Lower[7], 1e-12)
	assert.True(t, math.IsNaN(b.Upper[6]))

	span := BandSpan(b.Upper, b.Lower, closes)
	assert.InDelta(t, 8.0/9.0, span[7], 1e-12)
	assert.True(t, math.IsNaN(span[0]))
}

func TestCCI(t *testing.T) {
	highs := []float64{11, 12, 13, 14}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{10, 11, 12, 13}
	got, err := CCI(highs, lows, closes, 3)
	require.NoError(t, err)
	// typical prices 10, 11, 12, 13; window [11 12 13] mean 12, MAD 2/3
	assert.InDelta(t, 1/(0.015*2.0/3.0), got[3], 1e-9)
	assert.True(t, math.IsNaN(got[1]))

	flat, err := CCI([]float64{5, 5, 5}, []float64{5, 5, 5}, []float64{5, 5, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, flat[2])
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"only gains", []float64{1, 2, 3, 4}, 100},
		{"flat", []float64{3, 3, 3, 3}, 50},
		{"balanced", []float64{10, 12, 10, 12}, 100 - 100/(1+2.0)},
		{"only losses", []float64{4, 3, 2, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.closes, 3)
			require.NoError(t, err)
			assert.True(t, math.IsNaN(got[2]), "needs period+1 closes")
			assert.InDelta(t, tt.want, got[3], 1e-9)
		})
	}
}
