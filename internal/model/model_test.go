package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframe_NextBoundary(t *testing.T) {
	tests := []struct {
		tf   string
		now  time.Time
		want time.Time
	}{
		{"1h", time.Date(2024, 4, 2, 13, 37, 12, 0, time.UTC), time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC)},
		{"1h", time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC), time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)},
		{"15m", time.Date(2024, 4, 2, 13, 44, 59, 0, time.UTC), time.Date(2024, 4, 2, 13, 45, 0, 0, time.UTC)},
		{"4h", time.Date(2024, 4, 2, 13, 0, 0, 0, time.UTC), time.Date(2024, 4, 2, 16, 0, 0, 0, time.UTC)},
		{"1d", time.Date(2024, 4, 2, 23, 59, 0, 0, time.UTC), time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)},
		// 2024-04-03 is a Wednesday; weekly klines open on Monday.
		{"1w", time.Date(2024, 4, 3, 10, 0, 0, 0, time.UTC), time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tf, err := ParseTimeframe(tt.tf)
		require.NoError(t, err)
		assert.Equal(t, tt.want, tf.NextBoundary(tt.now), "%s at %s", tt.tf, tt.now)
	}
}

func TestParseTimeframe_Unsupported(t *testing.T) {
	_, err := ParseTimeframe("1M")
	assert.Error(t, err)
}

func bar(open time.Time, price float64) Bar {
	p := decimal.NewFromFloat(price)
	return Bar{OpenTime: open, CloseTime: open.Add(time.Hour), Open: p, High: p, Low: p, Close: p}
}

func TestValidateSeries(t *testing.T) {
	t0 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	ok := []Bar{bar(t0, 10), bar(t0.Add(time.Hour), 11)}
	assert.NoError(t, ValidateSeries(ok))

	dup := []Bar{bar(t0, 10), bar(t0, 11)}
	assert.Error(t, ValidateSeries(dup))

	zero := []Bar{bar(t0, 0)}
	assert.Error(t, ValidateSeries(zero))
}

func TestClosed_DropsFormingBar(t *testing.T) {
	t0 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{bar(t0, 1), bar(t0.Add(time.Hour), 2), bar(t0.Add(2*time.Hour), 3)}
	got := Closed(bars, t0.Add(2*time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(time.Hour), got[1].OpenTime)
	assert.Len(t, Closed(bars, t0.Add(3*time.Hour)), 3)
}

func TestWatermark_CloneIsDeep(t *testing.T) {
	w := &Watermark{Universe: []string{"BTCUSDT"}, Opportunities: map[string]Opportunity{"BTCUSDT": {Pair: "BTCUSDT"}}}
	c := w.Clone()
	c.Universe[0] = "ETHUSDT"
	delete(c.Opportunities, "BTCUSDT")
	assert.Equal(t, "BTCUSDT", w.Universe[0])
	assert.Contains(t, w.Opportunities, "BTCUSDT")
}
