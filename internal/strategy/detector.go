package strategy

import (
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Detect returns a snapshot when the last row of series is in pre-burst condition, nil otherwise.
// Rows with insufficient data never produce a signal. The snapshot price defaults to the last close;
// callers may replace it with a live quote.
func Detect(series *model.Series, at time.Time) *model.Signal {
	last, ok := series.Last()
	if !ok || last.Condition != model.ConditionOn {
		return nil
	}
	return &model.Signal{
		Pair:     series.Pair,
		Time:     at,
		Price:    last.Bar.Close,
		Close:    last.Close,
		Upper:    last.Upper,
		Lower:    last.Lower,
		CCI:      last.CCI,
		RSI:      last.RSI,
		SlopeSum: last.SlopeSum,
		BandSpan: last.BandSpan,
	}
}

// WithPrice returns a copy of sig carrying price.
func WithPrice(sig *model.Signal, price decimal.Decimal) *model.Signal {
	c := *sig
	c.Price = price
	return &c
}
